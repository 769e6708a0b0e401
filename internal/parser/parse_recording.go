package parser

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/repcoach/engine/pkg/core"
)

// ParseRecording reads a recorded session from r. Frames must be in
// capture order; out-of-order frames are rejected rather than sorted so
// a corrupt export is caught instead of silently reshuffled.
func (p *Parser) ParseRecording(r io.Reader) (core.Recording, error) {
	var rec core.Recording

	dec := json.NewDecoder(r)
	if err := dec.Decode(&rec); err != nil {
		return rec, fmt.Errorf("error decoding recording: %w", err)
	}

	if _, err := core.ParseExercise(string(rec.Session.Exercise)); err != nil {
		return rec, err
	}

	last := -1.0
	for i, f := range rec.Frames {
		if f.RelativeTime < last {
			return rec, fmt.Errorf("frame %d out of order: relative_time %f after %f", i, f.RelativeTime, last)
		}
		last = f.RelativeTime
	}

	p.logger.Debug("Parsed recording",
		"sessionID", rec.Session.ID,
		"frames", len(rec.Frames))

	return rec, nil
}
