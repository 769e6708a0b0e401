package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExercise(t *testing.T) {
	for _, ex := range Exercises {
		got, err := ParseExercise(string(ex))
		require.NoError(t, err)
		assert.Equal(t, ex, got)
	}
}

func TestParseExercise_Rejects(t *testing.T) {
	for _, s := range []string{"", "Pushup", "pullup", "squat "} {
		_, err := ParseExercise(s)
		assert.ErrorContains(t, err, "unknown exercise", "input %q", s)
	}
}

func TestPhaseWireWords(t *testing.T) {
	assert.Equal(t, "up", PhaseUp.String())
	assert.Equal(t, "down", PhaseDown.String())
	assert.Equal(t, "unknown", Phase(7).String())

	var p Phase
	require.NoError(t, p.UnmarshalText([]byte("down")))
	assert.Equal(t, PhaseDown, p)

	err := p.UnmarshalText([]byte("middle"))
	assert.ErrorContains(t, err, `unknown phase "middle"`)
	assert.Equal(t, PhaseDown, p, "a rejected word leaves the value alone")
}

func TestClassificationWireWords(t *testing.T) {
	assert.Equal(t, "low", ClassificationLow.String())
	assert.Equal(t, "high", ClassificationHigh.String())

	var c Classification
	require.NoError(t, c.UnmarshalText([]byte("high")))
	assert.Equal(t, ClassificationHigh, c)

	assert.ErrorContains(t, c.UnmarshalText([]byte("mid")), "unknown classification")
}

func TestMissingLandmarkErrorMessage(t *testing.T) {
	err := &MissingLandmarkError{Landmark: "right_elbow", FrameIndex: 41}
	assert.EqualError(t, err, `frame 41 missing required landmark "right_elbow"`)
}
