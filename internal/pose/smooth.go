// internal/pose/smooth.go
package pose

// Smoother applies an exponential moving average to the primary angle
// stream. Alpha is the weight of the newest sample; alpha <= 0 disables
// smoothing and passes raw values through unchanged. The first sample
// seeds the average. Fields are exported so analyzer state snapshots
// serialize and restore cleanly.
type Smoother struct {
	Alpha  float64 `json:"alpha"`
	Prev   float64 `json:"prev"`
	Seeded bool    `json:"seeded"`
}

// NewSmoother creates a smoother with the given alpha.
func NewSmoother(alpha float64) Smoother {
	return Smoother{Alpha: alpha}
}

// Apply folds one raw sample into the average and returns the smoothed value.
func (s *Smoother) Apply(raw float64) float64 {
	if s.Alpha <= 0 {
		return raw
	}
	if !s.Seeded {
		s.Prev = raw
		s.Seeded = true
		return raw
	}
	s.Prev = s.Alpha*raw + (1-s.Alpha)*s.Prev
	return s.Prev
}

// Reset clears the seed so the next sample starts a fresh average.
func (s *Smoother) Reset() {
	s.Prev = 0
	s.Seeded = false
}

// Enabled reports whether smoothing is active.
func (s *Smoother) Enabled() bool {
	return s.Alpha > 0
}
