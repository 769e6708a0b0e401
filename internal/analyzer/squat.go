// internal/analyzer/squat.go
package analyzer

import (
	"github.com/repcoach/engine/internal/pose"
	"github.com/repcoach/engine/pkg/core"
)

// Squat analyzes a front-view squat stream. The primary angle is the
// average of both knee angles (hip-knee-ankle); depth is judged by how
// far the hips sink relative to the knees, and knee tracking is checked
// once per descent.
//
// Squats run on raw angles; SmoothingAlpha does not apply here.
type Squat struct {
	cfg   Config
	state State
}

// NewSquat creates a squat analyzer with the given tuning.
func NewSquat(cfg Config) *Squat {
	return &Squat{
		cfg:   cfg,
		state: newState(0),
	}
}

// Exercise identifies this analyzer.
func (s *Squat) Exercise() core.Exercise {
	return core.ExerciseSquat
}

// State returns a copy of the current engine state.
func (s *Squat) State() State {
	return s.state
}

// SetState replaces the engine state.
func (s *Squat) SetState(st State) {
	s.state = st
}

// Reset returns all state to initial values in one step.
func (s *Squat) Reset() {
	s.state = newState(0)
}

// ProcessFrame folds one frame into the session. A missing required
// landmark aborts before any state changes.
func (s *Squat) ProcessFrame(f core.Frame) (core.FrameResult, error) {
	if name, missing := pose.FirstMissing(f, pose.RequiredLandmarks(core.ExerciseSquat)); missing {
		return core.FrameResult{}, &core.MissingLandmarkError{Landmark: name, FrameIndex: s.state.FrameIndex}
	}

	st := s.state
	idx := st.FrameIndex
	st.FrameIndex++

	var feedback []core.FeedbackEvent
	emit := func(kind core.FeedbackKind, msg string) {
		feedback = append(feedback, core.FeedbackEvent{
			Kind:         kind,
			Message:      msg,
			FrameIndex:   idx,
			RelativeTime: f.RelativeTime,
		})
	}

	goodForm := true

	lHip := f.Landmarks[pose.LeftHip]
	rHip := f.Landmarks[pose.RightHip]
	lKnee := f.Landmarks[pose.LeftKnee]
	rKnee := f.Landmarks[pose.RightKnee]
	lAnkle := f.Landmarks[pose.LeftAnkle]
	rAnkle := f.Landmarks[pose.RightAnkle]

	leftAngle, errL := pose.JointAngle(lHip, lKnee, lAnkle)
	rightAngle, errR := pose.JointAngle(rHip, rKnee, rAnkle)
	if errL != nil || errR != nil {
		// Unclassifiable knee geometry: the phase machine holds
		// position for this frame.
		s.state = st
		return core.FrameResult{
			FrameIndex:     idx,
			RelativeTime:   f.RelativeTime,
			Classification: classificationFor(st.Tracker.Phase),
			Phase:          st.Tracker.Phase,
			RepCount:       st.RepCount,
			GoodForm:       goodForm,
		}, nil
	}

	angle := (leftAngle + rightAngle) / 2
	avgHipY := (lHip.Y + rHip.Y) / 2
	avgKneeY := (lKnee.Y + rKnee.Y) / 2

	// Standing reads strictly above the up threshold.
	cls := core.ClassificationLow
	if angle > s.cfg.SquatUpThreshold {
		cls = core.ClassificationHigh
	}

	tracker, transition, window := advance(s.cfg, st.Tracker, cls, angle, f.RelativeTime)
	st.Tracker = tracker

	var completed *core.Rep
	switch transition {
	case TransitionDescend:
		st.MaxHipY = avgHipY
		st.KneeCueGiven = false

	case TransitionNone:
		// Image y grows downward, so the running maximum is the
		// deepest point reached.
		if st.Tracker.Phase == core.PhaseDown && avgHipY > st.MaxHipY {
			st.MaxHipY = avgHipY
		}

	case TransitionAscend:
		if st.MaxHipY < avgKneeY {
			goodForm = false
			emit(core.FeedbackDepth, core.MsgGoDeeperSquat)
		} else {
			st.RepCount++
			completed = &core.Rep{
				Index:     st.RepCount,
				StartTime: window.StartTime,
				EndTime:   window.EndTime,
				Duration:  window.Duration,
				MinAngle:  window.MinAngle,
			}
		}
		st.MaxHipY = 0
		st.KneeCueGiven = false
	}

	// Knee tracking is judged during the descent, once per rep.
	if st.Tracker.Phase == core.PhaseDown && !st.KneeCueGiven {
		if ratio, res := kneeRatio(f); res.Valid {
			switch {
			case ratio < s.cfg.KneeRatioMin:
				goodForm = false
				emit(core.FeedbackKneeTracking, core.MsgKneesOut)
				st.KneeCueGiven = true
			case ratio > s.cfg.KneeRatioMax:
				goodForm = false
				emit(core.FeedbackKneeTracking, core.MsgKneesTooWide)
				st.KneeCueGiven = true
			}
		}
	}

	s.state = st

	return core.FrameResult{
		FrameIndex:     idx,
		RelativeTime:   f.RelativeTime,
		Angle:          angle,
		Classification: cls,
		Phase:          st.Tracker.Phase,
		RepCount:       st.RepCount,
		GoodForm:       goodForm,
		NewFeedback:    feedback,
		CompletedRep:   completed,
	}, nil
}
