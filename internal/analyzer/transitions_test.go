package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repcoach/engine/pkg/core"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		angle    float64
		expected core.Classification
	}{
		{"well above", 170, core.ClassificationHigh},
		{"exactly at threshold", 150, core.ClassificationHigh},
		{"just below", 149.999, core.ClassificationLow},
		{"deep", 40, core.ClassificationLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, classify(150, tt.angle))
		})
	}
}

func TestAdvance_DebounceGatesDescend(t *testing.T) {
	cfg := DefaultConfig() // debounce 4
	st := newTrackerState()

	// Three low frames are not enough.
	for i := 0; i < 3; i++ {
		var tr Transition
		st, tr, _ = advance(cfg, st, core.ClassificationLow, 90, float64(i)*0.1)
		assert.Equal(t, TransitionNone, tr)
		assert.Equal(t, core.PhaseUp, st.Phase)
	}

	// The fourth fires the transition.
	st, tr, window := advance(cfg, st, core.ClassificationLow, 90, 0.3)
	assert.Equal(t, TransitionDescend, tr)
	assert.Nil(t, window)
	assert.Equal(t, core.PhaseDown, st.Phase)
	assert.Equal(t, 0.3, st.RepStartTime)
	assert.Equal(t, 90.0, st.MinAngle, "depth tracking seeds from the entry frame")
}

func TestAdvance_OpposingFrameResetsStreak(t *testing.T) {
	cfg := DefaultConfig()
	st := newTrackerState()

	// 3 low, 1 high, 3 low: never four in a row.
	seq := []core.Classification{
		core.ClassificationLow, core.ClassificationLow, core.ClassificationLow,
		core.ClassificationHigh,
		core.ClassificationLow, core.ClassificationLow, core.ClassificationLow,
	}
	for i, cls := range seq {
		var tr Transition
		st, tr, _ = advance(cfg, st, cls, 90, float64(i)*0.1)
		assert.Equal(t, TransitionNone, tr)
	}
	assert.Equal(t, core.PhaseUp, st.Phase)
	assert.Equal(t, 3, st.DownStreak)
}

func TestAdvance_AscendFinalizesWindow(t *testing.T) {
	cfg := DefaultConfig()
	st := newTrackerState()

	// Down at t=0.3 via four low frames.
	for i := 0; i < 4; i++ {
		st, _, _ = advance(cfg, st, core.ClassificationLow, 95, float64(i)*0.1)
	}
	require.Equal(t, core.PhaseDown, st.Phase)

	// Deeper sample while down.
	st, _, _ = advance(cfg, st, core.ClassificationLow, 82, 0.4)
	assert.Equal(t, 82.0, st.MinAngle)

	// Four highs finalize at t=1.5.
	var window *RepWindow
	var tr Transition
	for i := 0; i < 4; i++ {
		st, tr, window = advance(cfg, st, core.ClassificationHigh, 170, 1.2+float64(i)*0.1)
	}
	require.Equal(t, TransitionAscend, tr)
	require.NotNil(t, window)

	assert.Equal(t, 0.3, window.StartTime)
	assert.Equal(t, 1.5, window.EndTime)
	assert.InDelta(t, 1.2, window.Duration, 1e-9)
	assert.Equal(t, 82.0, window.MinAngle)

	// Per-rep fields reset for the next attempt.
	assert.Equal(t, core.PhaseUp, st.Phase)
	assert.Equal(t, 0.0, st.RepStartTime)
	assert.Equal(t, minAngleSentinel, st.MinAngle)
}

func TestAdvance_MinTracksBeforeAscendCheck(t *testing.T) {
	cfg := DefaultConfig()
	st := newTrackerState()

	for i := 0; i < 4; i++ {
		st, _, _ = advance(cfg, st, core.ClassificationLow, 120, float64(i)*0.1)
	}

	// A low raw angle arriving on high-classified frames still deepens
	// the window, which matters when smoothing classifies the stream.
	var window *RepWindow
	for i := 0; i < 4; i++ {
		st, _, window = advance(cfg, st, core.ClassificationHigh, 85, 0.4+float64(i)*0.1)
	}
	require.NotNil(t, window)
	assert.Equal(t, 85.0, window.MinAngle)
}

func TestAdvance_HighFramesWhileUpDoNothing(t *testing.T) {
	cfg := DefaultConfig()
	st := newTrackerState()

	for i := 0; i < 10; i++ {
		var tr Transition
		st, tr, _ = advance(cfg, st, core.ClassificationHigh, 170, float64(i)*0.1)
		assert.Equal(t, TransitionNone, tr)
	}
	assert.Equal(t, core.PhaseUp, st.Phase)
	assert.Equal(t, 0, st.DownStreak)
}

func TestClassificationFor(t *testing.T) {
	assert.Equal(t, core.ClassificationHigh, classificationFor(core.PhaseUp))
	assert.Equal(t, core.ClassificationLow, classificationFor(core.PhaseDown))
}
