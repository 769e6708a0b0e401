// Package memory buffers sessions in memory and exports each one as a
// recording file when it ends.
package memory

import (
	"sync"

	"github.com/repcoach/engine/internal/config"
	"github.com/repcoach/engine/pkg/core"
)

// SessionRecord is everything captured for one session, in arrival
// order. It doubles as the recording file's content.
type SessionRecord struct {
	Session  core.Session
	Frames   []core.Frame
	Reps     []core.Rep
	Feedback []core.FeedbackEvent
	Summary  *core.SessionSummary
}

// exportInfo remembers where a finished session was written and the
// metadata the upload API wants for it.
type exportInfo struct {
	path string
	meta core.UploadMetadata
}

// Backend accumulates per-session records and remembers where each
// finished session was exported.
type Backend struct {
	cfg config.MemoryConfig

	sessions map[string]*SessionRecord // keyed by session ID
	exports  map[string]exportInfo     // keyed by session ID

	mu sync.RWMutex
}

// New creates an empty backend writing exports under cfg.OutputDir.
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:      cfg,
		sessions: make(map[string]*SessionRecord),
		exports:  make(map[string]exportInfo),
	}
}

// Init is a no-op; the backend allocates everything up front.
func (b *Backend) Init() error {
	return nil
}

// Close is a no-op. Unfinished sessions are dropped, not exported.
func (b *Backend) Close() error {
	return nil
}

// StartSession begins recording a new session. Reusing an in-flight
// session ID resets that session's data.
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sessions[s.ID] = &SessionRecord{
		Session: *s,
		Frames:  make([]core.Frame, 0),
	}
	return nil
}

// EndSession attaches the summary, writes the recording file, and
// frees the in-memory record.
func (b *Backend) EndSession(summary *core.SessionSummary) error {
	if summary == nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	record, ok := b.sessions[summary.SessionID]
	if !ok {
		return nil // nothing buffered for this session
	}
	record.Summary = summary

	if err := b.export(record); err != nil {
		return err
	}

	delete(b.sessions, summary.SessionID)
	return nil
}

// GetSessionRecord returns the accumulating record for a session still
// in flight.
func (b *Backend) GetSessionRecord(sessionID string) (*SessionRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	record, ok := b.sessions[sessionID]
	return record, ok
}

// RecordFrame appends a frame to its session
func (b *Backend) RecordFrame(sessionID string, f core.Frame, res core.FrameResult) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if record, ok := b.sessions[sessionID]; ok {
		record.Frames = append(record.Frames, f)
	}
	return nil
}

// RecordRep appends a counted rep to its session
func (b *Backend) RecordRep(sessionID string, r core.Rep, frameIndex uint) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if record, ok := b.sessions[sessionID]; ok {
		record.Reps = append(record.Reps, r)
	}
	return nil
}

// RecordFeedback appends a coaching cue to its session
func (b *Backend) RecordFeedback(sessionID string, e core.FeedbackEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if record, ok := b.sessions[sessionID]; ok {
		record.Feedback = append(record.Feedback, e)
	}
	return nil
}

// RecordPerformance is a no-op; engine health samples are not part of
// the recording format.
func (b *Backend) RecordPerformance(p core.EnginePerformance) error {
	return nil
}

// GetExportedFilePath returns the path of the session's exported
// recording, or "" if the session was never exported.
func (b *Backend) GetExportedFilePath(sessionID string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.exports[sessionID].path
}

// GetExportMetadata returns upload metadata for an exported session.
// Unknown sessions return empty metadata.
func (b *Backend) GetExportMetadata(sessionID string) core.UploadMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.exports[sessionID].meta
}
