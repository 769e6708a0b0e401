// pkg/core/engine.go
package core

import "time"

// QueueDepths counts the items waiting in each storage write queue.
type QueueDepths struct {
	FrameSamples   int `json:"frame_samples"`
	Reps           int `json:"reps"`
	FeedbackEvents int `json:"feedback_events"`
	Performances   int `json:"performances"`
}

// EnginePerformance is a point-in-time measurement of engine health,
// sampled by the status monitor.
type EnginePerformance struct {
	Time                time.Time   `json:"time"`
	ActiveSessions      int         `json:"active_sessions"`
	Goroutines          int         `json:"goroutines"`
	QueueDepths         QueueDepths `json:"queue_depths"`
	LastWriteDurationMs float64     `json:"last_write_duration_ms"`
}
