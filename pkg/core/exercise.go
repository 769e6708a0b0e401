// pkg/core/exercise.go
package core

import "fmt"

// Exercise identifies which analyzer processes a session's frames.
type Exercise string

const (
	ExercisePushup Exercise = "pushup"
	ExerciseSquat  Exercise = "squat"
)

// Exercises lists all supported exercise kinds.
var Exercises = []Exercise{ExercisePushup, ExerciseSquat}

// ParseExercise validates a wire-format exercise name.
func ParseExercise(s string) (Exercise, error) {
	switch Exercise(s) {
	case ExercisePushup:
		return ExercisePushup, nil
	case ExerciseSquat:
		return ExerciseSquat, nil
	default:
		return "", fmt.Errorf("unknown exercise %q", s)
	}
}
