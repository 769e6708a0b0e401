// internal/analyzer/pushup.go
package analyzer

import (
	"github.com/repcoach/engine/internal/pose"
	"github.com/repcoach/engine/pkg/core"
)

// Pushup analyzes a side-view pushup stream. The primary angle is the
// right elbow (shoulder-elbow-wrist); form rules watch the body line and
// elbow flare.
type Pushup struct {
	cfg   Config
	state State
}

// NewPushup creates a pushup analyzer with the given tuning.
func NewPushup(cfg Config) *Pushup {
	return &Pushup{
		cfg:   cfg,
		state: newState(cfg.SmoothingAlpha),
	}
}

// Exercise identifies this analyzer.
func (p *Pushup) Exercise() core.Exercise {
	return core.ExercisePushup
}

// State returns a copy of the current engine state.
func (p *Pushup) State() State {
	return p.state
}

// SetState replaces the engine state.
func (p *Pushup) SetState(st State) {
	p.state = st
}

// Reset returns all state to initial values in one step.
func (p *Pushup) Reset() {
	p.state = newState(p.cfg.SmoothingAlpha)
}

// ProcessFrame folds one frame into the session.
//
// Rule evaluation order is fixed: body line, elbow flare, then the phase
// machine with its depth and tempo checks, praise last. A missing
// required landmark aborts before any state changes.
func (p *Pushup) ProcessFrame(f core.Frame) (core.FrameResult, error) {
	if name, missing := pose.FirstMissing(f, pose.RequiredLandmarks(core.ExercisePushup)); missing {
		return core.FrameResult{}, &core.MissingLandmarkError{Landmark: name, FrameIndex: p.state.FrameIndex}
	}

	st := p.state
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

	// Body line: one cue per violation episode. The episode latch
	// clears as soon as the line recovers.
	if res := checkStraightness(p.cfg, f); res.Valid {
		if res.Violated {
			goodForm = false
			if !st.StraightnessActive {
				emit(core.FeedbackStraightness, core.MsgKeepBackStraight)
				st.StraightnessActive = true
			}
		} else {
			st.StraightnessActive = false
		}
	}

	// Elbow flare cues every qualifying frame, deliberately undebounced.
	if res := checkElbowFlare(p.cfg, f); res.Valid && res.Violated {
		goodForm = false
		emit(core.FeedbackElbowFlare, core.MsgTuckElbows)
	}

	raw, err := pose.JointAngle(
		f.Landmarks[pose.RightShoulder],
		f.Landmarks[pose.RightElbow],
		f.Landmarks[pose.RightWrist],
	)
	if err != nil {
		// Unclassifiable elbow geometry: the phase machine holds
		// position and the streaks freeze for this frame.
		st.GoodStreak = praiseStreak(p.cfg, st.GoodStreak, goodForm, emit)
		p.state = st
		return core.FrameResult{
			FrameIndex:     idx,
			RelativeTime:   f.RelativeTime,
			Classification: classificationFor(st.Tracker.Phase),
			Phase:          st.Tracker.Phase,
			RepCount:       st.RepCount,
			GoodForm:       goodForm,
			NewFeedback:    feedback,
		}, nil
	}

	smoothed := st.Smooth.Apply(raw)
	cls := classify(p.cfg.RepThreshold, smoothed)

	tracker, transition, window := advance(p.cfg, st.Tracker, cls, raw, f.RelativeTime)
	st.Tracker = tracker

	var completed *core.Rep
	if transition == TransitionAscend {
		if window.MinAngle > p.cfg.DepthThreshold {
			goodForm = false
			emit(core.FeedbackDepth, core.MsgGoDeeperPushup)
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
		if window.Duration < p.cfg.MinRepSeconds && window.StartTime != 0 {
			goodForm = false
			emit(core.FeedbackTempo, core.MsgSlowDown)
		}
	}

	st.GoodStreak = praiseStreak(p.cfg, st.GoodStreak, goodForm, emit)
	p.state = st

	return core.FrameResult{
		FrameIndex:     idx,
		RelativeTime:   f.RelativeTime,
		Angle:          smoothed,
		Classification: cls,
		Phase:          st.Tracker.Phase,
		RepCount:       st.RepCount,
		GoodForm:       goodForm,
		NewFeedback:    feedback,
		CompletedRep:   completed,
	}, nil
}

// praiseStreak advances the clean-frame streak and emits the praise cue
// when the configured run is reached. Disabled when PraiseStreak is 0.
func praiseStreak(cfg Config, streak int, goodForm bool, emit func(core.FeedbackKind, string)) int {
	if cfg.PraiseStreak <= 0 {
		return 0
	}
	if !goodForm {
		return 0
	}
	streak++
	if streak >= cfg.PraiseStreak {
		emit(core.FeedbackPraise, core.MsgGreatForm)
		return 0
	}
	return streak
}
