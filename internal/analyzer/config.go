// internal/analyzer/config.go
package analyzer

import "fmt"

// Config holds the constructor-time tuning of an analyzer. Immutable for
// the lifetime of a session.
type Config struct {
	// RepThreshold splits frame classification: primary angles at or
	// above it read "high", below it "low". Degrees.
	RepThreshold float64 `json:"rep_threshold"`

	// DepthThreshold is the minimum depth a rep must reach. A rep whose
	// minimum angle stays above it is too shallow to count. Degrees.
	DepthThreshold float64 `json:"depth_threshold"`

	// MinRepSeconds is the shortest acceptable rep duration before the
	// tempo cue fires.
	MinRepSeconds float64 `json:"min_rep_seconds"`

	// DebounceFrames is the run of consecutive same-classification
	// frames required before a phase transition is accepted.
	DebounceFrames int `json:"debounce_frames"`

	// StraightnessMin is the shoulder-hip-ankle angle below which the
	// body line counts as sagging. Degrees.
	StraightnessMin float64 `json:"straightness_min"`

	// ElbowFlareMax is the hip-shoulder-elbow angle above which elbows
	// count as flared. Degrees.
	ElbowFlareMax float64 `json:"elbow_flare_max"`

	// SmoothingAlpha weights the newest sample in the EMA applied to
	// the primary angle before classification. 0 disables smoothing.
	SmoothingAlpha float64 `json:"smoothing_alpha"`

	// PraiseStreak is the run of consecutive clean frames that earns a
	// praise cue. 0 disables praise.
	PraiseStreak int `json:"praise_streak"`

	// SquatUpThreshold is the average knee angle above which a squat
	// frame reads as standing. Degrees.
	SquatUpThreshold float64 `json:"squat_up_threshold"`

	// KneeRatioMin and KneeRatioMax bound knee spread over ankle spread
	// during the squat descent. Outside the band emits a knee cue.
	KneeRatioMin float64 `json:"knee_ratio_min"`
	KneeRatioMax float64 `json:"knee_ratio_max"`
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		RepThreshold:     150,
		DepthThreshold:   100,
		MinRepSeconds:    1.0,
		DebounceFrames:   4,
		StraightnessMin:  150,
		ElbowFlareMax:    80,
		SmoothingAlpha:   0,
		PraiseStreak:     0,
		SquatUpThreshold: 170,
		KneeRatioMin:     0.8,
		KneeRatioMax:     1.6,
	}
}

// Validate rejects configurations the state machine cannot behave
// sensibly under.
func (c Config) Validate() error {
	if c.DebounceFrames < 1 {
		return fmt.Errorf("debounce_frames must be >= 1, got %d", c.DebounceFrames)
	}
	if c.RepThreshold <= 0 || c.RepThreshold > 180 {
		return fmt.Errorf("rep_threshold must be in (0, 180], got %v", c.RepThreshold)
	}
	if c.DepthThreshold <= 0 {
		return fmt.Errorf("depth_threshold must be positive, got %v", c.DepthThreshold)
	}
	if c.DepthThreshold >= c.RepThreshold {
		return fmt.Errorf("depth_threshold (%v) must be below rep_threshold (%v)", c.DepthThreshold, c.RepThreshold)
	}
	if c.MinRepSeconds < 0 {
		return fmt.Errorf("min_rep_seconds must not be negative, got %v", c.MinRepSeconds)
	}
	if c.StraightnessMin <= 0 || c.StraightnessMin > 180 {
		return fmt.Errorf("straightness_min must be in (0, 180], got %v", c.StraightnessMin)
	}
	if c.ElbowFlareMax <= 0 || c.ElbowFlareMax >= 180 {
		return fmt.Errorf("elbow_flare_max must be in (0, 180), got %v", c.ElbowFlareMax)
	}
	if c.SmoothingAlpha < 0 || c.SmoothingAlpha >= 1 {
		return fmt.Errorf("smoothing_alpha must be in [0, 1), got %v", c.SmoothingAlpha)
	}
	if c.PraiseStreak < 0 {
		return fmt.Errorf("praise_streak must not be negative, got %d", c.PraiseStreak)
	}
	if c.SquatUpThreshold <= 0 || c.SquatUpThreshold > 180 {
		return fmt.Errorf("squat_up_threshold must be in (0, 180], got %v", c.SquatUpThreshold)
	}
	if c.KneeRatioMin <= 0 || c.KneeRatioMin >= c.KneeRatioMax {
		return fmt.Errorf("knee ratio band [%v, %v] is invalid", c.KneeRatioMin, c.KneeRatioMax)
	}
	return nil
}
