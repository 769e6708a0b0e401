// Package util provides small helpers shared across the engine.
package util

import (
	"math"
	"strings"
)

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// RoundTo rounds v to the given number of decimal places.
func RoundTo(v float64, places int) float64 {
	f := math.Pow10(places)
	return math.Round(v*f) / f
}

// SafeFilename replaces characters that commonly break file paths
// with underscores.
func SafeFilename(name string) string {
	r := strings.NewReplacer(" ", "_", ":", "_", "/", "_", `\`, "_")
	return r.Replace(name)
}
