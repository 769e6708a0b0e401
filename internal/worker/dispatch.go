package worker

import (
	"encoding/json"
	"fmt"

	"github.com/repcoach/engine/internal/dispatcher"
	"github.com/repcoach/engine/internal/influx"
	"github.com/repcoach/engine/pkg/core"
)

// Event kinds dispatched by the live analysis service.
const (
	EventSessionStarted  = ":SESSION:START:"
	EventFrameObserved   = ":FRAME:"
	EventRepFinalized    = ":REP:"
	EventFeedbackEmitted = ":FEEDBACK:"
	EventSessionEnded    = ":SESSION:END:"
	EventPerformance     = ":PERFORMANCE:"
)

// SessionStartedEvent announces a session whose pipeline is already live.
type SessionStartedEvent struct {
	Session core.Session `json:"session"`
}

// FrameObservedEvent carries one analyzed frame and its result.
type FrameObservedEvent struct {
	Frame  core.Frame       `json:"frame"`
	Result core.FrameResult `json:"result"`
}

// RepFinalizedEvent carries one counted repetition.
type RepFinalizedEvent struct {
	Rep        core.Rep `json:"rep"`
	FrameIndex uint     `json:"frame_index"`
}

// FeedbackEmittedEvent carries one coaching cue.
type FeedbackEmittedEvent struct {
	Event core.FeedbackEvent `json:"event"`
}

// SessionEndedEvent carries the final summary of a finished session.
// The session itself rides along because the cache entry is already gone
// by the time this event is handled.
type SessionEndedEvent struct {
	Session core.Session        `json:"session"`
	Summary core.SessionSummary `json:"summary"`
}

// PerformanceEvent carries one engine health sample.
type PerformanceEvent struct {
	Performance core.EnginePerformance `json:"performance"`
}

// RegisterHandlers registers all event handlers with the dispatcher.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	// Session lifecycle - sync (backend rows must exist before frame events arrive)
	d.Register(EventSessionStarted, m.handleSessionStarted, dispatcher.Logged())
	d.Register(EventSessionEnded, m.handleSessionEnded, dispatcher.Logged())

	// Per-session stream - sync to keep frame/rep/feedback ordering;
	// backends buffer the actual writes internally
	d.Register(EventFrameObserved, m.handleFrameObserved, dispatcher.Logged())
	d.Register(EventRepFinalized, m.handleRepFinalized, dispatcher.Logged())
	d.Register(EventFeedbackEmitted, m.handleFeedbackEmitted, dispatcher.Logged())

	// Engine health samples - buffered
	d.Register(EventPerformance, m.handlePerformance, dispatcher.Buffered(100), dispatcher.Logged())
}

func (m *Manager) handleSessionStarted(e dispatcher.Event) (any, error) {
	var ev SessionStartedEvent
	if err := json.Unmarshal(e.Payload, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode session start event: %w", err)
	}

	if err := m.backend.StartSession(&ev.Session); err != nil {
		return nil, fmt.Errorf("failed to persist session start for %s: %w", ev.Session.ID, err)
	}

	m.deps.LogManager.Logger().Info("Session persistence started",
		"sessionID", ev.Session.ID,
		"exercise", ev.Session.Exercise)

	return nil, nil
}

func (m *Manager) handleFrameObserved(e dispatcher.Event) (any, error) {
	var ev FrameObservedEvent
	if err := json.Unmarshal(e.Payload, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode frame event: %w", err)
	}

	if _, ok := m.deps.SessionCache.Get(e.SessionID); !ok {
		return nil, ErrSessionNotActive
	}

	return nil, m.backend.RecordFrame(e.SessionID, ev.Frame, ev.Result)
}

func (m *Manager) handleRepFinalized(e dispatcher.Event) (any, error) {
	var ev RepFinalizedEvent
	if err := json.Unmarshal(e.Payload, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode rep event: %w", err)
	}

	// The metric point needs the session tags, so resolve the entry
	// rather than just checking liveness.
	entry, ok := m.deps.SessionCache.Get(e.SessionID)
	if !ok {
		return nil, ErrSessionNotActive
	}

	if err := m.backend.RecordRep(e.SessionID, ev.Rep, ev.FrameIndex); err != nil {
		return nil, err
	}

	m.writeMetric(influx.RepPoint(entry.Session, ev.Rep))
	return nil, nil
}

func (m *Manager) handleFeedbackEmitted(e dispatcher.Event) (any, error) {
	var ev FeedbackEmittedEvent
	if err := json.Unmarshal(e.Payload, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode feedback event: %w", err)
	}

	entry, ok := m.deps.SessionCache.Get(e.SessionID)
	if !ok {
		return nil, ErrSessionNotActive
	}

	if err := m.backend.RecordFeedback(e.SessionID, ev.Event); err != nil {
		return nil, err
	}

	m.writeMetric(influx.FeedbackPoint(entry.Session, ev.Event))
	return nil, nil
}

func (m *Manager) handleSessionEnded(e dispatcher.Event) (any, error) {
	var ev SessionEndedEvent
	if err := json.Unmarshal(e.Payload, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode session end event: %w", err)
	}

	if err := m.backend.EndSession(&ev.Summary); err != nil {
		return nil, fmt.Errorf("failed to persist session end for %s: %w", ev.Summary.SessionID, err)
	}

	m.writeMetric(influx.SummaryPoint(ev.Session, ev.Summary))

	m.deps.LogManager.Logger().Info("Session persisted",
		"sessionID", ev.Summary.SessionID,
		"reps", ev.Summary.RepCount,
		"frames", ev.Summary.FrameCount)

	return nil, nil
}

func (m *Manager) handlePerformance(e dispatcher.Event) (any, error) {
	var ev PerformanceEvent
	if err := json.Unmarshal(e.Payload, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode performance event: %w", err)
	}

	if err := m.backend.RecordPerformance(ev.Performance); err != nil {
		return nil, err
	}

	m.writeMetric(influx.PerformancePoint(ev.Performance))
	return nil, nil
}
