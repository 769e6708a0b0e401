// Package analyzer implements the per-frame exercise engine: a debounced
// two-phase rep tracker plus exercise-specific form rules. Analyzers are
// deterministic and single-goroutine; every mutation happens inside
// ProcessFrame and all state is plain serializable data, so a session can
// be checkpointed, transferred, and resumed mid-stream.
package analyzer

import (
	"fmt"

	"github.com/repcoach/engine/pkg/core"
)

// Analyzer consumes one frame at a time and produces rep counts and
// coaching cues. Implementations are not safe for concurrent use; the
// caller owns serialization.
type Analyzer interface {
	// Exercise identifies which analyzer this is.
	Exercise() core.Exercise

	// ProcessFrame folds one frame into the session. On a missing
	// required landmark it returns *core.MissingLandmarkError and
	// leaves all state untouched.
	ProcessFrame(f core.Frame) (core.FrameResult, error)

	// State returns a copy of the current engine state.
	State() State

	// SetState replaces the engine state, e.g. when resuming a
	// checkpointed session.
	SetState(State)

	// Reset returns all state to initial values in one step.
	Reset()
}

// New builds the analyzer for an exercise.
func New(ex core.Exercise, cfg Config) (Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid analyzer config: %w", err)
	}

	switch ex {
	case core.ExercisePushup:
		return NewPushup(cfg), nil
	case core.ExerciseSquat:
		return NewSquat(cfg), nil
	default:
		return nil, fmt.Errorf("no analyzer for exercise %q", ex)
	}
}
