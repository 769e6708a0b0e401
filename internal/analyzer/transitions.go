// internal/analyzer/transitions.go
package analyzer

import "github.com/repcoach/engine/pkg/core"

// Transition reports which phase flip, if any, a frame caused.
type Transition uint8

const (
	TransitionNone    Transition = iota
	TransitionDescend            // up -> down: a rep attempt begins
	TransitionAscend             // down -> up: the attempt finalizes
)

// classify reads one primary angle against the rep threshold. Angles at
// the threshold read high.
func classify(threshold, angle float64) core.Classification {
	if angle < threshold {
		return core.ClassificationLow
	}
	return core.ClassificationHigh
}

// classificationFor names the reading consistent with holding a phase,
// used when a frame could not be classified.
func classificationFor(p core.Phase) core.Classification {
	if p == core.PhaseDown {
		return core.ClassificationLow
	}
	return core.ClassificationHigh
}

// advance folds one classified frame into the tracker. Pure: the input
// state is returned updated, never mutated in place. angle is the raw
// primary angle used for depth tracking; now is the frame's relative
// time. On an ascend the returned window carries the finalized rep
// measurements and the tracker's per-rep fields are reset.
func advance(cfg Config, st TrackerState, cls core.Classification, angle, now float64) (TrackerState, Transition, *RepWindow) {
	switch cls {
	case core.ClassificationLow:
		st.DownStreak++
		st.UpStreak = 0
	case core.ClassificationHigh:
		st.UpStreak++
		st.DownStreak = 0
	}

	switch st.Phase {
	case core.PhaseUp:
		if st.DownStreak >= cfg.DebounceFrames {
			st.Phase = core.PhaseDown
			st.RepStartTime = now
			// Depth tracking starts from this first accepted low
			// frame, not from the sentinel.
			st.MinAngle = angle
			return st, TransitionDescend, nil
		}

	case core.PhaseDown:
		if angle < st.MinAngle {
			st.MinAngle = angle
		}
		if st.UpStreak >= cfg.DebounceFrames {
			window := &RepWindow{
				StartTime: st.RepStartTime,
				EndTime:   now,
				Duration:  now - st.RepStartTime,
				MinAngle:  st.MinAngle,
			}
			st.Phase = core.PhaseUp
			st.RepStartTime = 0
			st.MinAngle = minAngleSentinel
			return st, TransitionAscend, window
		}
	}

	return st, TransitionNone, nil
}
