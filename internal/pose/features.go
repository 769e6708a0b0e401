// internal/pose/features.go
package pose

import (
	"math"

	"github.com/peterstace/simplefeatures/geom"

	"github.com/repcoach/engine/internal/util"
	"github.com/repcoach/engine/pkg/core"
)

// Derived feature names as exported to metrics.
const (
	FeatureShoulderSlope = "shoulder_slope"
	FeatureHipSlope      = "hip_slope"
	FeatureTorsoLength   = "torso_length"
	FeatureForwardLean   = "forward_lean"
)

// Features derives posture features from a single frame. Only features
// whose landmarks are present and non-degenerate appear in the result,
// so callers must not assume any particular key exists.
func Features(f core.Frame) map[string]float64 {
	out := make(map[string]float64, 4)

	ls, hasLS := f.Landmarks[LeftShoulder]
	rs, hasRS := f.Landmarks[RightShoulder]
	lh, hasLH := f.Landmarks[LeftHip]
	rh, hasRH := f.Landmarks[RightHip]

	if hasLS && hasRS {
		if slope, err := SlopeRatio(ls, rs); err == nil {
			out[FeatureShoulderSlope] = slope
		}
	}
	if hasLH && hasRH {
		if slope, err := SlopeRatio(lh, rh); err == nil {
			out[FeatureHipSlope] = slope
		}
	}
	if hasLS && hasRS && hasLH && hasRH {
		shoulderMid := Midpoint(ls, rs)
		hipMid := Midpoint(lh, rh)
		torso := shoulderMid.Sub(hipMid)
		length := torso.Length()
		out[FeatureTorsoLength] = length

		// Lean is measured against image-vertical, which points at
		// negative y. Zero length happens when shoulders and hips
		// collapse onto one point.
		if length > 0 {
			up := geom.XY{X: 0, Y: -1}
			cos := util.Clamp(torso.Dot(up)/length, -1, 1)
			out[FeatureForwardLean] = math.Acos(cos) * 180 / math.Pi
		}
	}

	return out
}
