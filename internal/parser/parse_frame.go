package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/repcoach/engine/internal/util"
	"github.com/repcoach/engine/pkg/core"
	"github.com/repcoach/engine/pkg/streaming"
)

// ParseFrame parses a frame payload and returns the session ID and the
// cleaned frame. Landmark names are normalized and visibility values
// clamped; unknown landmarks are kept for downstream form rules.
func (p *Parser) ParseFrame(payload []byte) (string, core.Frame, error) {
	var msg streaming.FramePayload

	if err := json.Unmarshal(payload, &msg); err != nil {
		return "", core.Frame{}, fmt.Errorf("error unmarshalling frame payload: %w", err)
	}
	if msg.SessionID == "" {
		return "", core.Frame{}, fmt.Errorf("frame payload missing session_id")
	}

	frame := msg.Frame
	if frame.RelativeTime < 0 {
		return "", core.Frame{}, fmt.Errorf("frame has negative relative_time %f", frame.RelativeTime)
	}
	if len(frame.Landmarks) == 0 {
		return "", core.Frame{}, fmt.Errorf("frame has no landmarks")
	}

	cleaned := make(map[string]core.Landmark, len(frame.Landmarks))
	for name, lm := range frame.Landmarks {
		lm.Visibility = util.Clamp(lm.Visibility, 0, 1)
		cleaned[NormalizeLandmarkName(name)] = lm
	}
	frame.Landmarks = cleaned

	return msg.SessionID, frame, nil
}

// NormalizeLandmarkName maps capture-client naming variants onto the
// canonical lower_snake form ("Left Shoulder" -> "left_shoulder").
func NormalizeLandmarkName(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "-", "_")
	return name
}
