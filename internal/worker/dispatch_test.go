package worker

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/repcoach/engine/internal/analyzer"
	"github.com/repcoach/engine/internal/cache"
	"github.com/repcoach/engine/internal/config"
	"github.com/repcoach/engine/internal/dispatcher"
	"github.com/repcoach/engine/internal/influx"
	"github.com/repcoach/engine/internal/logging"
	"github.com/repcoach/engine/internal/queue"
	"github.com/repcoach/engine/internal/session"
	"github.com/repcoach/engine/pkg/core"
)

// mockLogger implements dispatcher.Logger for testing
type mockLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *mockLogger) Debug(msg string, _ ...any) { l.record(msg) }
func (l *mockLogger) Info(msg string, _ ...any)  { l.record(msg) }
func (l *mockLogger) Error(msg string, _ ...any) { l.record(msg) }

func (l *mockLogger) record(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

type recordedFrame struct {
	sessionID string
	frame     core.Frame
	result    core.FrameResult
}

type recordedRep struct {
	sessionID  string
	rep        core.Rep
	frameIndex uint
}

type recordedFeedback struct {
	sessionID string
	event     core.FeedbackEvent
}

// mockBackend implements storage.Backend for testing
type mockBackend struct {
	mu sync.Mutex

	sessions     []core.Session
	summaries    []core.SessionSummary
	frames       []recordedFrame
	reps         []recordedRep
	feedback     []recordedFeedback
	performances []core.EnginePerformance
	ops          []string
	initCalled   bool
	closeCalled  bool

	startErr error
}

func (b *mockBackend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initCalled = true
	return nil
}

func (b *mockBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeCalled = true
	return nil
}

func (b *mockBackend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.startErr != nil {
		return b.startErr
	}
	b.sessions = append(b.sessions, *s)
	b.ops = append(b.ops, "start")
	return nil
}

func (b *mockBackend) EndSession(summary *core.SessionSummary) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.summaries = append(b.summaries, *summary)
	b.ops = append(b.ops, "end")
	return nil
}

func (b *mockBackend) RecordFrame(sessionID string, f core.Frame, res core.FrameResult) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = append(b.frames, recordedFrame{sessionID: sessionID, frame: f, result: res})
	b.ops = append(b.ops, "frame")
	return nil
}

func (b *mockBackend) RecordRep(sessionID string, r core.Rep, frameIndex uint) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reps = append(b.reps, recordedRep{sessionID: sessionID, rep: r, frameIndex: frameIndex})
	b.ops = append(b.ops, "rep")
	return nil
}

func (b *mockBackend) RecordFeedback(sessionID string, ev core.FeedbackEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.feedback = append(b.feedback, recordedFeedback{sessionID: sessionID, event: ev})
	b.ops = append(b.ops, "feedback")
	return nil
}

func (b *mockBackend) RecordPerformance(p core.EnginePerformance) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.performances = append(b.performances, p)
	b.ops = append(b.ops, "performance")
	return nil
}

// measurableBackend adds the monitoring interface on top of mockBackend
type measurableBackend struct {
	mockBackend

	depths   core.QueueDepths
	writeDur time.Duration
}

func (b *measurableBackend) QueueDepths() core.QueueDepths {
	return b.depths
}

func (b *measurableBackend) LastWriteDuration() time.Duration {
	return b.writeDur
}

func newTestDispatcher(t *testing.T) (*dispatcher.Dispatcher, *mockLogger) {
	logger := &mockLogger{}

	d, err := dispatcher.New(logger)
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}

	return d, logger
}

func newTestManager() (*Manager, *mockBackend, *cache.SessionCache) {
	sessions := cache.NewSessionCache()
	deps := Dependencies{
		SessionCache: sessions,
		LogManager:   logging.NewSlogManager(),
	}
	backend := &mockBackend{}
	return NewManager(deps, backend), backend, sessions
}

// addLiveSession puts a full pipeline entry for the session into the cache.
func addLiveSession(t *testing.T, sessions *cache.SessionCache, id string) {
	s := core.Session{
		ID:       id,
		Exercise: core.ExerciseSquat,
		Subject:  "athlete-1",
	}

	a, err := analyzer.New(s.Exercise, analyzer.DefaultConfig())
	if err != nil {
		t.Fatalf("failed to create analyzer: %v", err)
	}

	sessions.Add(&cache.Entry{
		Session:     s,
		Analyzer:    a,
		Recorder:    session.NewRecorder(s),
		Checkpoints: queue.NewCheckpointMap(),
	})
}

func mustMarshal(t *testing.T, v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal event payload: %v", err)
	}
	return data
}

func TestRegisterHandlers_RegistersAllKinds(t *testing.T) {
	d, _ := newTestDispatcher(t)
	manager, _, _ := newTestManager()

	manager.RegisterHandlers(d)

	expectedKinds := []string{
		EventSessionStarted,
		EventFrameObserved,
		EventRepFinalized,
		EventFeedbackEmitted,
		EventSessionEnded,
		EventPerformance,
	}

	for _, kind := range expectedKinds {
		if !d.HasHandler(kind) {
			t.Errorf("expected handler for %s to be registered", kind)
		}
	}
}

func TestNewManager(t *testing.T) {
	manager, _, _ := newTestManager()

	if manager == nil {
		t.Fatal("expected non-nil manager")
	}
}

func TestHandleSessionStarted_PersistsSession(t *testing.T) {
	d, _ := newTestDispatcher(t)
	manager, backend, _ := newTestManager()
	manager.RegisterHandlers(d)

	payload := mustMarshal(t, SessionStartedEvent{
		Session: core.Session{ID: "sess-1", Exercise: core.ExercisePushup, Subject: "athlete-1"},
	})

	result, err := d.Dispatch(dispatcher.Event{Kind: EventSessionStarted, SessionID: "sess-1", Payload: payload})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Errorf("expected nil result, got %v", result)
	}
	if len(backend.sessions) != 1 {
		t.Fatalf("expected 1 session in backend, got %d", len(backend.sessions))
	}
	if backend.sessions[0].ID != "sess-1" {
		t.Errorf("expected session ID 'sess-1', got %q", backend.sessions[0].ID)
	}
	if backend.sessions[0].Exercise != core.ExercisePushup {
		t.Errorf("expected exercise pushup, got %q", backend.sessions[0].Exercise)
	}
}

func TestHandleSessionStarted_BadPayload(t *testing.T) {
	d, _ := newTestDispatcher(t)
	manager, backend, _ := newTestManager()
	manager.RegisterHandlers(d)

	_, err := d.Dispatch(dispatcher.Event{Kind: EventSessionStarted, Payload: []byte("{not json")})

	if err == nil {
		t.Fatal("expected error for malformed payload")
	}
	if len(backend.sessions) != 0 {
		t.Errorf("expected no sessions in backend, got %d", len(backend.sessions))
	}
}

func TestHandleSessionStarted_BackendError(t *testing.T) {
	d, _ := newTestDispatcher(t)
	manager, backend, _ := newTestManager()
	backend.startErr = errors.New("connection refused")
	manager.RegisterHandlers(d)

	payload := mustMarshal(t, SessionStartedEvent{
		Session: core.Session{ID: "sess-1", Exercise: core.ExerciseSquat},
	})

	_, err := d.Dispatch(dispatcher.Event{Kind: EventSessionStarted, SessionID: "sess-1", Payload: payload})

	if err == nil {
		t.Fatal("expected backend error to propagate")
	}
	if !errors.Is(err, backend.startErr) {
		t.Errorf("expected wrapped backend error, got %v", err)
	}
}

func TestHandleFrameObserved_RecordsFrame(t *testing.T) {
	d, _ := newTestDispatcher(t)
	manager, backend, sessions := newTestManager()
	manager.RegisterHandlers(d)
	addLiveSession(t, sessions, "sess-1")

	payload := mustMarshal(t, FrameObservedEvent{
		Frame: core.Frame{
			RelativeTime: 1.5,
			Landmarks: map[string]core.Landmark{
				"left_hip": {X: 0.5, Y: 0.6, Visibility: 0.99},
			},
		},
		Result: core.FrameResult{FrameIndex: 45, Angle: 120.5, RepCount: 3},
	})

	_, err := d.Dispatch(dispatcher.Event{Kind: EventFrameObserved, SessionID: "sess-1", Payload: payload})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(backend.frames) != 1 {
		t.Fatalf("expected 1 frame in backend, got %d", len(backend.frames))
	}
	got := backend.frames[0]
	if got.sessionID != "sess-1" {
		t.Errorf("expected session ID 'sess-1', got %q", got.sessionID)
	}
	if got.frame.RelativeTime != 1.5 {
		t.Errorf("expected relative time 1.5, got %v", got.frame.RelativeTime)
	}
	if got.result.RepCount != 3 {
		t.Errorf("expected rep count 3, got %d", got.result.RepCount)
	}
}

func TestHandleFrameObserved_UnknownSession(t *testing.T) {
	d, _ := newTestDispatcher(t)
	manager, backend, _ := newTestManager()
	manager.RegisterHandlers(d)

	payload := mustMarshal(t, FrameObservedEvent{
		Frame: core.Frame{RelativeTime: 0.1},
	})

	_, err := d.Dispatch(dispatcher.Event{Kind: EventFrameObserved, SessionID: "ghost", Payload: payload})

	if !errors.Is(err, ErrSessionNotActive) {
		t.Errorf("expected ErrSessionNotActive, got %v", err)
	}
	if len(backend.frames) != 0 {
		t.Errorf("expected no frames in backend, got %d", len(backend.frames))
	}
}

func TestHandleRepFinalized_RecordsRep(t *testing.T) {
	d, _ := newTestDispatcher(t)
	manager, backend, sessions := newTestManager()
	manager.RegisterHandlers(d)
	addLiveSession(t, sessions, "sess-1")

	payload := mustMarshal(t, RepFinalizedEvent{
		Rep:        core.Rep{Index: 4, StartTime: 10.0, EndTime: 12.5, Duration: 2.5, MinAngle: 72.0},
		FrameIndex: 375,
	})

	_, err := d.Dispatch(dispatcher.Event{Kind: EventRepFinalized, SessionID: "sess-1", Payload: payload})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(backend.reps) != 1 {
		t.Fatalf("expected 1 rep in backend, got %d", len(backend.reps))
	}
	got := backend.reps[0]
	if got.rep.Index != 4 {
		t.Errorf("expected rep index 4, got %d", got.rep.Index)
	}
	if got.frameIndex != 375 {
		t.Errorf("expected frame index 375, got %d", got.frameIndex)
	}
	if got.rep.MinAngle != 72.0 {
		t.Errorf("expected min angle 72.0, got %v", got.rep.MinAngle)
	}
}

func TestHandleRepFinalized_UnknownSession(t *testing.T) {
	d, _ := newTestDispatcher(t)
	manager, backend, _ := newTestManager()
	manager.RegisterHandlers(d)

	payload := mustMarshal(t, RepFinalizedEvent{Rep: core.Rep{Index: 1}})

	_, err := d.Dispatch(dispatcher.Event{Kind: EventRepFinalized, SessionID: "ghost", Payload: payload})

	if !errors.Is(err, ErrSessionNotActive) {
		t.Errorf("expected ErrSessionNotActive, got %v", err)
	}
	if len(backend.reps) != 0 {
		t.Errorf("expected no reps in backend, got %d", len(backend.reps))
	}
}

// A metrics manager that could not reach InfluxDB must still receive
// rep points as gzipped line protocol in its backup file.
func TestHandleRepFinalized_WritesMetricPoint(t *testing.T) {
	d, _ := newTestDispatcher(t)
	manager, _, sessions := newTestManager()

	backupPath := filepath.Join(t.TempDir(), "metrics_backup.gz")
	im := influx.NewManager(config.InfluxConfig{
		Enabled:  true,
		Protocol: "http",
		Host:     "127.0.0.1",
		Port:     "1",
	}, zerolog.Nop(), backupPath)
	if err := im.Connect(); err != nil {
		t.Fatalf("expected backup fallback, got error: %v", err)
	}
	if !im.Ready() {
		t.Fatal("expected manager to be ready via backup writer")
	}
	manager.deps.Influx = im

	manager.RegisterHandlers(d)
	addLiveSession(t, sessions, "sess-1")

	payload := mustMarshal(t, RepFinalizedEvent{
		Rep:        core.Rep{Index: 1, StartTime: 2.0, EndTime: 4.0, Duration: 2.0, MinAngle: 80.0},
		FrameIndex: 120,
	})

	if _, err := d.Dispatch(dispatcher.Event{Kind: EventRepFinalized, SessionID: "sess-1", Payload: payload}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	im.Close()

	raw, err := os.ReadFile(backupPath)
	if err != nil {
		t.Fatalf("reading backup file: %v", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("opening gzip reader: %v", err)
	}
	line, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("reading backup data: %v", err)
	}
	if !strings.Contains(string(line), "rep,") {
		t.Errorf("expected rep measurement in line protocol, got %q", line)
	}
	if !strings.Contains(string(line), "session_id=sess-1") {
		t.Errorf("expected session_id tag in line protocol, got %q", line)
	}
}

func TestHandleFeedbackEmitted_RecordsFeedback(t *testing.T) {
	d, _ := newTestDispatcher(t)
	manager, backend, sessions := newTestManager()
	manager.RegisterHandlers(d)
	addLiveSession(t, sessions, "sess-1")

	payload := mustMarshal(t, FeedbackEmittedEvent{
		Event: core.FeedbackEvent{
			Kind:         core.FeedbackDepth,
			Message:      "Go deeper!",
			FrameIndex:   120,
			RelativeTime: 4.0,
		},
	})

	_, err := d.Dispatch(dispatcher.Event{Kind: EventFeedbackEmitted, SessionID: "sess-1", Payload: payload})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(backend.feedback) != 1 {
		t.Fatalf("expected 1 feedback event in backend, got %d", len(backend.feedback))
	}
	got := backend.feedback[0]
	if got.event.Kind != core.FeedbackDepth {
		t.Errorf("expected kind depth, got %q", got.event.Kind)
	}
	if got.event.Message != "Go deeper!" {
		t.Errorf("expected message 'Go deeper!', got %q", got.event.Message)
	}
}

func TestHandleSessionEnded_PersistsSummary(t *testing.T) {
	d, _ := newTestDispatcher(t)
	manager, backend, _ := newTestManager()
	manager.RegisterHandlers(d)

	payload := mustMarshal(t, SessionEndedEvent{
		Session: core.Session{ID: "sess-1", Exercise: core.ExerciseSquat, Subject: "athlete-1"},
		Summary: core.SessionSummary{
			SessionID:  "sess-1",
			Exercise:   core.ExerciseSquat,
			Duration:   62.5,
			FrameCount: 1875,
			RepCount:   15,
			Feedback:   []string{"Go deeper!"},
		},
	})

	_, err := d.Dispatch(dispatcher.Event{Kind: EventSessionEnded, SessionID: "sess-1", Payload: payload})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(backend.summaries) != 1 {
		t.Fatalf("expected 1 summary in backend, got %d", len(backend.summaries))
	}
	got := backend.summaries[0]
	if got.SessionID != "sess-1" {
		t.Errorf("expected session ID 'sess-1', got %q", got.SessionID)
	}
	if got.RepCount != 15 {
		t.Errorf("expected 15 reps, got %d", got.RepCount)
	}
	if got.FrameCount != 1875 {
		t.Errorf("expected 1875 frames, got %d", got.FrameCount)
	}
}

// The stream kinds are registered without a buffer, so a frame, the rep it
// finishes and its cues must reach the backend in dispatch order.
func TestStreamHandlers_PreserveOrder(t *testing.T) {
	d, _ := newTestDispatcher(t)
	manager, backend, sessions := newTestManager()
	manager.RegisterHandlers(d)
	addLiveSession(t, sessions, "sess-1")

	framePayload := mustMarshal(t, FrameObservedEvent{Frame: core.Frame{RelativeTime: 1.0}})
	repPayload := mustMarshal(t, RepFinalizedEvent{Rep: core.Rep{Index: 1}})
	feedbackPayload := mustMarshal(t, FeedbackEmittedEvent{
		Event: core.FeedbackEvent{Kind: core.FeedbackPraise, Message: "Great form! Keep it up!"},
	})

	events := []dispatcher.Event{
		{Kind: EventFrameObserved, SessionID: "sess-1", Payload: framePayload},
		{Kind: EventFrameObserved, SessionID: "sess-1", Payload: framePayload},
		{Kind: EventRepFinalized, SessionID: "sess-1", Payload: repPayload},
		{Kind: EventFeedbackEmitted, SessionID: "sess-1", Payload: feedbackPayload},
	}
	for _, e := range events {
		if _, err := d.Dispatch(e); err != nil {
			t.Fatalf("dispatch %s failed: %v", e.Kind, err)
		}
	}

	want := []string{"frame", "frame", "rep", "feedback"}
	if len(backend.ops) != len(want) {
		t.Fatalf("expected %d backend calls, got %d: %v", len(want), len(backend.ops), backend.ops)
	}
	for i, op := range want {
		if backend.ops[i] != op {
			t.Errorf("call %d: expected %q, got %q", i, op, backend.ops[i])
		}
	}
}

func TestHandlePerformance_Buffered(t *testing.T) {
	d, _ := newTestDispatcher(t)
	manager, backend, _ := newTestManager()
	manager.RegisterHandlers(d)

	payload := mustMarshal(t, PerformanceEvent{
		Performance: core.EnginePerformance{
			Time:           time.Now(),
			ActiveSessions: 3,
			Goroutines:     25,
		},
	})

	result, err := d.Dispatch(dispatcher.Event{Kind: EventPerformance, Payload: payload})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "queued" {
		t.Errorf("expected 'queued' result from buffered handler, got %v", result)
	}

	// Wait for the buffered handler to process
	deadline := time.After(2 * time.Second)
	for {
		backend.mu.Lock()
		n := len(backend.performances)
		backend.mu.Unlock()

		if n == 1 {
			backend.mu.Lock()
			got := backend.performances[0]
			backend.mu.Unlock()
			if got.ActiveSessions != 3 {
				t.Errorf("expected 3 active sessions, got %d", got.ActiveSessions)
			}
			return
		}

		select {
		case <-deadline:
			t.Fatal("timed out waiting for performance sample to be processed")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func TestActiveSessions(t *testing.T) {
	manager, _, sessions := newTestManager()

	if got := manager.ActiveSessions(); got != 0 {
		t.Errorf("expected 0 active sessions, got %d", got)
	}

	addLiveSession(t, sessions, "sess-1")
	addLiveSession(t, sessions, "sess-2")

	if got := manager.ActiveSessions(); got != 2 {
		t.Errorf("expected 2 active sessions, got %d", got)
	}
}

func TestQueueDepths_Passthrough(t *testing.T) {
	deps := Dependencies{
		SessionCache: cache.NewSessionCache(),
		LogManager:   logging.NewSlogManager(),
	}

	backend := &measurableBackend{
		depths: core.QueueDepths{FrameSamples: 12, Reps: 3, FeedbackEvents: 5},
	}
	manager := NewManager(deps, backend)

	got := manager.QueueDepths()
	if got.FrameSamples != 12 {
		t.Errorf("expected 12 queued frame samples, got %d", got.FrameSamples)
	}
	if got.Reps != 3 {
		t.Errorf("expected 3 queued reps, got %d", got.Reps)
	}

	plain := NewManager(deps, &mockBackend{})
	if got := plain.QueueDepths(); got != (core.QueueDepths{}) {
		t.Errorf("expected zero depths for plain backend, got %+v", got)
	}
}

func TestLastWriteDuration_Passthrough(t *testing.T) {
	deps := Dependencies{
		SessionCache: cache.NewSessionCache(),
		LogManager:   logging.NewSlogManager(),
	}

	backend := &measurableBackend{writeDur: 150 * time.Millisecond}
	manager := NewManager(deps, backend)

	if got := manager.LastWriteDuration(); got != 150*time.Millisecond {
		t.Errorf("expected 150ms, got %v", got)
	}

	plain := NewManager(deps, &mockBackend{})
	if got := plain.LastWriteDuration(); got != 0 {
		t.Errorf("expected 0 for plain backend, got %v", got)
	}
}
