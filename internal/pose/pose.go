// Package pose provides the landmark vocabulary and the 2D geometry the
// exercise analyzers are built on. All coordinates are normalized image
// space, so y grows downward. Angle math projects onto x/y only; z is
// carried through for storage but never enters an angle.
package pose

import (
	"github.com/peterstace/simplefeatures/geom"

	"github.com/repcoach/engine/pkg/core"
)

// Landmark names as produced by the upstream pose detector.
const (
	Nose          = "nose"
	LeftShoulder  = "left_shoulder"
	RightShoulder = "right_shoulder"
	LeftElbow     = "left_elbow"
	RightElbow    = "right_elbow"
	LeftWrist     = "left_wrist"
	RightWrist    = "right_wrist"
	LeftHip       = "left_hip"
	RightHip      = "right_hip"
	LeftKnee      = "left_knee"
	RightKnee     = "right_knee"
	LeftAnkle     = "left_ankle"
	RightAnkle    = "right_ankle"
)

// AllLandmarks lists every landmark name the engine understands.
var AllLandmarks = []string{
	Nose,
	LeftShoulder, RightShoulder,
	LeftElbow, RightElbow,
	LeftWrist, RightWrist,
	LeftHip, RightHip,
	LeftKnee, RightKnee,
	LeftAnkle, RightAnkle,
}

// pushupLandmarks assumes the camera sees the subject's right side.
var pushupLandmarks = []string{
	RightShoulder, RightElbow, RightWrist, RightHip, RightAnkle,
}

// squatLandmarks assumes a frontal camera view.
var squatLandmarks = []string{
	LeftHip, RightHip, LeftKnee, RightKnee, LeftAnkle, RightAnkle,
}

// RequiredLandmarks returns the landmarks an exercise cannot run without,
// in diagnostic order.
func RequiredLandmarks(ex core.Exercise) []string {
	switch ex {
	case core.ExercisePushup:
		return pushupLandmarks
	case core.ExerciseSquat:
		return squatLandmarks
	default:
		return nil
	}
}

// PrimaryLandmark returns the landmark whose path best traces the body
// movement of one rep: the shoulder for push-ups, the hip for squats.
func PrimaryLandmark(ex core.Exercise) string {
	switch ex {
	case core.ExercisePushup:
		return RightShoulder
	case core.ExerciseSquat:
		return LeftHip
	default:
		return ""
	}
}

// FirstMissing returns the first name from required that is absent from
// the frame's landmark map, and whether any was missing.
func FirstMissing(f core.Frame, required []string) (string, bool) {
	for _, name := range required {
		if _, ok := f.Landmarks[name]; !ok {
			return name, true
		}
	}
	return "", false
}

// IsKnown reports whether name is part of the landmark vocabulary.
func IsKnown(name string) bool {
	for _, n := range AllLandmarks {
		if n == name {
			return true
		}
	}
	return false
}

// XY projects a landmark onto the image plane.
func XY(lm core.Landmark) geom.XY {
	return geom.XY{X: lm.X, Y: lm.Y}
}
