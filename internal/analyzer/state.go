// internal/analyzer/state.go
package analyzer

import (
	"github.com/repcoach/engine/internal/pose"
	"github.com/repcoach/engine/pkg/core"
)

// minAngleSentinel is the reset value of the per-rep minimum tracker.
// 180 is the largest angle JointAngle can produce, so any real sample
// replaces it.
const minAngleSentinel = 180.0

// TrackerState is the debounced two-phase machine's state.
type TrackerState struct {
	Phase        core.Phase `json:"phase"`
	UpStreak     int        `json:"up_streak"`
	DownStreak   int        `json:"down_streak"`
	RepStartTime float64    `json:"rep_start_time"`
	MinAngle     float64    `json:"min_angle"`
}

// newTrackerState starts in the up phase with the min tracker parked at
// its sentinel.
func newTrackerState() TrackerState {
	return TrackerState{
		Phase:    core.PhaseUp,
		MinAngle: minAngleSentinel,
	}
}

// State is the complete serializable engine state of one analyzer.
// Pushup and squat share the struct; each uses the fields it needs.
type State struct {
	FrameIndex uint          `json:"frame_index"`
	RepCount   int           `json:"rep_count"`
	Tracker    TrackerState  `json:"tracker"`
	Smooth     pose.Smoother `json:"smooth"`

	// Pushup: body-line violation episode and praise streak.
	StraightnessActive bool `json:"straightness_active"`
	GoodStreak         int  `json:"good_streak"`

	// Squat: lowest hip position this rep (image y grows downward, so
	// the maximum y is the deepest point) and per-rep knee cue latch.
	MaxHipY      float64 `json:"max_hip_y"`
	KneeCueGiven bool    `json:"knee_cue_given"`
}

// newState builds the initial state for the given smoothing alpha.
func newState(alpha float64) State {
	return State{
		Tracker: newTrackerState(),
		Smooth:  pose.NewSmoother(alpha),
	}
}

// RepWindow captures the measurements of one completed down phase,
// handed to the finalization rules when the tracker returns to up.
type RepWindow struct {
	StartTime float64
	EndTime   float64
	Duration  float64
	MinAngle  float64
}
