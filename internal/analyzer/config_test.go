package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero debounce", func(c *Config) { c.DebounceFrames = 0 }},
		{"negative debounce", func(c *Config) { c.DebounceFrames = -2 }},
		{"rep threshold zero", func(c *Config) { c.RepThreshold = 0 }},
		{"rep threshold above 180", func(c *Config) { c.RepThreshold = 190 }},
		{"depth threshold zero", func(c *Config) { c.DepthThreshold = 0 }},
		{"depth not below rep", func(c *Config) { c.DepthThreshold = 150 }},
		{"depth above rep", func(c *Config) { c.DepthThreshold = 160 }},
		{"negative min rep seconds", func(c *Config) { c.MinRepSeconds = -1 }},
		{"straightness zero", func(c *Config) { c.StraightnessMin = 0 }},
		{"flare at 180", func(c *Config) { c.ElbowFlareMax = 180 }},
		{"smoothing alpha negative", func(c *Config) { c.SmoothingAlpha = -0.1 }},
		{"smoothing alpha one", func(c *Config) { c.SmoothingAlpha = 1 }},
		{"negative praise streak", func(c *Config) { c.PraiseStreak = -1 }},
		{"squat threshold zero", func(c *Config) { c.SquatUpThreshold = 0 }},
		{"knee band inverted", func(c *Config) { c.KneeRatioMin = 2; c.KneeRatioMax = 1 }},
		{"knee min zero", func(c *Config) { c.KneeRatioMin = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfigValidate_AcceptsTunedValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SmoothingAlpha = 0.3
	cfg.PraiseStreak = 8
	cfg.DebounceFrames = 3
	cfg.MinRepSeconds = 0

	assert.NoError(t, cfg.Validate())
}
