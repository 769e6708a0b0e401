// internal/pose/track.go
package pose

import (
	"github.com/peterstace/simplefeatures/geom"

	"github.com/repcoach/engine/pkg/core"
)

// LandmarkTrack builds the path of one landmark across frames as an XYZM
// line string: x, y, z from the landmark and m carrying the frame's
// relative time. Frames missing the landmark are skipped. Returns an
// empty line string when fewer than two samples remain.
func LandmarkTrack(frames []core.Frame, name string) geom.LineString {
	flat := make([]float64, 0, len(frames)*4)
	n := 0
	for _, f := range frames {
		lm, ok := f.Landmarks[name]
		if !ok {
			continue
		}
		flat = append(flat, lm.X, lm.Y, lm.Z, f.RelativeTime)
		n++
	}
	if n < 2 {
		return geom.LineString{}
	}

	seq := geom.NewSequence(flat, geom.DimXYZM)
	return geom.NewLineString(seq)
}
