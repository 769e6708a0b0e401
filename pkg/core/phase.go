// pkg/core/phase.go
package core

import "fmt"

// Phase is the rep state machine position. A rep is one full
// Up -> Down -> Up cycle.
type Phase uint8

const (
	PhaseUp Phase = iota
	PhaseDown
)

func (p Phase) String() string {
	switch p {
	case PhaseUp:
		return "up"
	case PhaseDown:
		return "down"
	default:
		return "unknown"
	}
}

// MarshalText makes phases serialize as "up"/"down" on the wire.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(b []byte) error {
	switch string(b) {
	case "up":
		*p = PhaseUp
	case "down":
		*p = PhaseDown
	default:
		return fmt.Errorf("unknown phase %q", b)
	}
	return nil
}

// Classification is the instantaneous reading of a single frame's
// primary angle against the rep threshold, before debouncing.
type Classification uint8

const (
	ClassificationLow Classification = iota
	ClassificationHigh
)

func (c Classification) String() string {
	switch c {
	case ClassificationLow:
		return "low"
	case ClassificationHigh:
		return "high"
	default:
		return "unknown"
	}
}

// MarshalText makes classifications serialize as "low"/"high" on the wire.
func (c Classification) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Classification) UnmarshalText(b []byte) error {
	switch string(b) {
	case "low":
		*c = ClassificationLow
	case "high":
		*c = ClassificationHigh
	default:
		return fmt.Errorf("unknown classification %q", b)
	}
	return nil
}
