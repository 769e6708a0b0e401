package streaming

import (
	"encoding/json"
	"fmt"

	"github.com/repcoach/engine/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeSessionStart = "session_start"
	TypeSessionEnd   = "session_end"
	TypeFrame        = "frame"
	TypeResult       = "result"
	TypeSummary      = "summary"
	TypeError        = "error"
	TypeAck          = "ack"
)

// Error codes carried in ErrorPayload.
const (
	ErrCodeMissingLandmark = "missing_landmark"
	ErrCodeBadPayload      = "bad_payload"
	ErrCodeUnknownSession  = "unknown_session"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// Encode wraps payload in an Envelope of the given type and returns
// the JSON bytes ready for the wire.
func Encode(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}

// SessionStartPayload opens a new analysis session. Tuning optionally
// overrides the server's analyzer settings for this session.
type SessionStartPayload struct {
	Session core.Session    `json:"session"`
	Tuning  json.RawMessage `json:"tuning,omitempty"`
}

// FramePayload carries one pose frame for an open session.
type FramePayload struct {
	SessionID string     `json:"session_id"`
	Frame     core.Frame `json:"frame"`
}

// SessionEndPayload closes a session.
type SessionEndPayload struct {
	SessionID string `json:"session_id"`
}

// ResultPayload is the server's per-frame analysis result.
type ResultPayload struct {
	SessionID string           `json:"session_id"`
	Result    core.FrameResult `json:"result"`
}

// SummaryPayload is the server's final report for a closed session.
type SummaryPayload struct {
	Summary core.SessionSummary `json:"summary"`
}

// ErrorPayload reports a rejected message, such as a frame missing a
// required landmark.
type ErrorPayload struct {
	SessionID  string `json:"session_id,omitempty"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	FrameIndex uint   `json:"frame_index,omitempty"`
}
