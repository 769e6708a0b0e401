// internal/storage/storage.go
package storage

import (
	"time"

	"github.com/repcoach/engine/pkg/core"
)

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management
	StartSession(s *core.Session) error
	EndSession(summary *core.SessionSummary) error

	// Per-frame recording
	RecordFrame(sessionID string, f core.Frame, res core.FrameResult) error
	RecordRep(sessionID string, r core.Rep, frameIndex uint) error
	RecordFeedback(sessionID string, e core.FeedbackEvent) error

	// Engine health
	RecordPerformance(p core.EnginePerformance) error
}

// Uploadable is an optional interface for storage backends that produce
// recording files suitable for upload to the web frontend.
type Uploadable interface {
	GetExportedFilePath(sessionID string) string
	GetExportMetadata(sessionID string) core.UploadMetadata
}

// Measurable is an optional interface for backends that expose write
// pipeline internals to the status monitor.
type Measurable interface {
	QueueDepths() core.QueueDepths
	LastWriteDuration() time.Duration
}
