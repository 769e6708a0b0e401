// pkg/core/recording.go

package core

// Recording is a captured session on disk: the session header, every
// accepted frame, and the summary if the session was finalized.
type Recording struct {
	Session Session         `json:"session"`
	Frames  []Frame         `json:"frames"`
	Summary *SessionSummary `json:"summary,omitempty"`
}

// UploadMetadata describes an exported recording for the web API upload.
type UploadMetadata struct {
	SessionID string  `json:"sessionId"`
	Exercise  string  `json:"exercise"`
	Subject   string  `json:"subject"`
	Duration  float64 `json:"duration"`
	RepCount  int     `json:"repCount"`
	Tag       string  `json:"tag"`
}
