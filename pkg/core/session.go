// pkg/core/session.go
package core

import "time"

// Session describes one recording or live analysis run.
type Session struct {
	ID            string    `json:"id"`
	Exercise      Exercise  `json:"exercise"`
	Subject       string    `json:"subject,omitempty"`
	Source        string    `json:"source,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	CaptureFPS    float64   `json:"capture_fps,omitempty"`
	EngineVersion string    `json:"engine_version,omitempty"`
	Tag           string    `json:"tag,omitempty"`
}

// Rep is one completed, counted repetition.
// Times are session-relative seconds; MinAngle is the raw minimum of the
// primary angle observed while the rep was in its down phase.
type Rep struct {
	Index     int     `json:"index"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Duration  float64 `json:"duration"`
	MinAngle  float64 `json:"min_angle"`
}

// SessionSummary aggregates a finished session.
// Feedback preserves first-emission order with duplicates removed.
type SessionSummary struct {
	SessionID   string          `json:"session_id"`
	Exercise    Exercise        `json:"exercise"`
	StartedAt   time.Time       `json:"started_at"`
	EndedAt     time.Time       `json:"ended_at"`
	Duration    float64         `json:"duration"`
	FrameCount  uint            `json:"frame_count"`
	SkippedBad  uint            `json:"skipped_frames"`
	RepCount    int             `json:"rep_count"`
	Reps        []Rep           `json:"reps,omitempty"`
	Feedback    []string        `json:"feedback"`
	FeedbackLog []FeedbackEvent `json:"feedback_log,omitempty"`
}
