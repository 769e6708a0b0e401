// internal/pose/angle.go
package pose

import (
	"errors"
	"math"

	"github.com/peterstace/simplefeatures/geom"

	"github.com/repcoach/engine/internal/util"
	"github.com/repcoach/engine/pkg/core"
)

// ErrDegenerateSegment is returned when two of the three landmarks of a
// joint coincide in x/y, leaving the angle undefined.
var ErrDegenerateSegment = errors.New("degenerate segment: coincident landmarks")

// JointAngle computes the interior angle at vertex b between rays b->a
// and b->c, in degrees within [0, 180].
func JointAngle(a, b, c core.Landmark) (float64, error) {
	ba := XY(a).Sub(XY(b))
	bc := XY(c).Sub(XY(b))

	lenBA := ba.Length()
	lenBC := bc.Length()
	if lenBA == 0 || lenBC == 0 {
		return 0, ErrDegenerateSegment
	}

	cos := util.Clamp(ba.Dot(bc)/(lenBA*lenBC), -1, 1)
	return math.Acos(cos) * 180 / math.Pi, nil
}

// SlopeRatio returns dy/dx of the segment from a to b.
// Returns ErrDegenerateSegment when the segment is vertical.
func SlopeRatio(a, b core.Landmark) (float64, error) {
	dx := b.X - a.X
	if dx == 0 {
		return 0, ErrDegenerateSegment
	}
	return (b.Y - a.Y) / dx, nil
}

// Distance is the planar distance between two landmarks.
func Distance(a, b core.Landmark) float64 {
	return XY(b).Sub(XY(a)).Length()
}

// Midpoint is the planar midpoint of two landmarks.
func Midpoint(a, b core.Landmark) geom.XY {
	return XY(a).Add(XY(b)).Scale(0.5)
}
