// pkg/core/frame.go
package core

// Landmark is a single pose keypoint in normalized image coordinates.
// X and Y are fractions of frame width/height, so y grows downward.
// Z is depth relative to the hip midpoint. Visibility is the detector's
// confidence in [0,1].
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

// Frame is one pose snapshot from the capture pipeline.
// RelativeTime is seconds since the start of the session.
// Landmarks is keyed by landmark name; absent keys mean the detector
// did not report that point for this frame.
type Frame struct {
	RelativeTime float64             `json:"relative_time"`
	Landmarks    map[string]Landmark `json:"landmarks"`
}
