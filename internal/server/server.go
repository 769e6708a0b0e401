// Package server is the live analysis service: one WebSocket connection
// per session, with the engine running in the connection goroutine and
// persistence riding the dispatcher.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/repcoach/engine/internal/analyzer"
	"github.com/repcoach/engine/internal/cache"
	"github.com/repcoach/engine/internal/config"
	"github.com/repcoach/engine/internal/dispatcher"
	"github.com/repcoach/engine/internal/logging"
	"github.com/repcoach/engine/internal/parser"
	"github.com/repcoach/engine/internal/queue"
	"github.com/repcoach/engine/internal/session"
	"github.com/repcoach/engine/internal/worker"
	"github.com/repcoach/engine/pkg/core"
	"github.com/repcoach/engine/pkg/streaming"
)

// resumeGrace is how long a dropped session stays live in the cache
// waiting for the client to reconnect before it is finalized.
const resumeGrace = 60 * time.Second

// Dependencies holds all dependencies for the analysis service
type Dependencies struct {
	SessionCache *cache.SessionCache
	Dispatcher   *dispatcher.Dispatcher
	LogManager   *logging.SlogManager
	Parser       *parser.Parser
}

// Service serves /ws/analyze/{exercise} and the healthcheck route.
type Service struct {
	deps     Dependencies
	cfg      config.ServerConfig
	upgrader websocket.Upgrader
	grace    time.Duration
	srv      *http.Server

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewService creates a new analysis service
func NewService(deps Dependencies, cfg config.ServerConfig) *Service {
	return &Service{
		deps: deps,
		cfg:  cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// capture clients are native apps, not browsers
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		grace:   resumeGrace,
		pending: make(map[string]*time.Timer),
	}
}

// Routes returns the service's HTTP handler.
func (s *Service) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthcheck", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})
	mux.HandleFunc("GET /ws/analyze/{exercise}", s.handleAnalyze)
	return mux
}

// Start listens on the configured address and blocks until the server
// stops.
func (s *Service) Start() error {
	s.srv = &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: s.Routes(),
	}
	s.deps.LogManager.Logger().Info("Analysis service listening", "addr", s.cfg.ListenAddr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown finalizes every session still in the cache, then stops the
// HTTP server. The sweep covers sessions waiting out the resume grace
// window and sessions on live connections; WebSocket conns are
// hijacked, so srv.Shutdown alone would leave the latter unflushed.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, t := range s.pending {
		t.Stop()
	}
	s.pending = make(map[string]*time.Timer)
	s.mu.Unlock()

	for _, id := range s.deps.SessionCache.ActiveIDs() {
		s.finalizeAbandoned(id)
	}

	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}

func (s *Service) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	logger := s.deps.LogManager.Logger()

	ex, err := core.ParseExercise(r.PathValue("exercise"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if s.cfg.Secret != "" && r.URL.Query().Get("secret") != s.cfg.Secret {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	defer conn.Close()

	logger.Debug("Client connected", "exercise", ex, "remote", r.RemoteAddr)
	s.serveConn(conn, ex)
}

// serveConn is the session's single logical caller: it reads envelopes,
// runs the engine inline and replies before dispatching persistence
// events. A read error leaves the session in the cache for resume.
func (s *Service) serveConn(conn *websocket.Conn, ex core.Exercise) {
	logger := s.deps.LogManager.Logger()
	var entry *cache.Entry

	defer func() {
		if entry != nil {
			s.scheduleFinalize(entry)
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if entry != nil {
				logger.Warn("Connection lost with session open",
					"sessionID", entry.Session.ID,
					"error", err)
			}
			return
		}

		var env streaming.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			s.writeError(conn, "", streaming.ErrCodeBadPayload, "malformed envelope", 0)
			continue
		}

		switch env.Type {
		case streaming.TypeSessionStart:
			entry = s.handleSessionStart(conn, env.Payload, ex, entry)
		case streaming.TypeFrame:
			s.handleFrame(conn, env.Payload, entry)
		case streaming.TypeSessionEnd:
			if s.handleSessionEnd(conn, env.Payload, entry) {
				entry = nil
				return
			}
		default:
			s.writeError(conn, "", streaming.ErrCodeBadPayload,
				fmt.Sprintf("unknown message type %q", env.Type), 0)
		}
	}
}

// handleSessionStart builds the session pipeline, or adopts a live one
// when the client is reconnecting. Returns the connection's entry.
func (s *Service) handleSessionStart(conn *websocket.Conn, payload []byte, ex core.Exercise, current *cache.Entry) *cache.Entry {
	logger := s.deps.LogManager.Logger()

	if current != nil {
		s.writeError(conn, current.Session.ID, streaming.ErrCodeBadPayload,
			"session already open on this connection", 0)
		return current
	}

	base := config.GetAnalyzerConfig(ex)
	sess, cfg, err := s.deps.Parser.ParseSessionStart(payload, base)
	if err != nil {
		s.writeError(conn, "", streaming.ErrCodeBadPayload, err.Error(), 0)
		return nil
	}
	if sess.Exercise != ex {
		s.writeError(conn, sess.ID, streaming.ErrCodeBadPayload,
			fmt.Sprintf("session exercise %q does not match endpoint %q", sess.Exercise, ex), 0)
		return nil
	}

	// Reconnect: adopt the live pipeline and echo the last committed
	// counter state so the client display catches up.
	if entry, ok := s.deps.SessionCache.Get(sess.ID); ok {
		if entry.Session.Exercise != ex {
			s.writeError(conn, sess.ID, streaming.ErrCodeBadPayload,
				fmt.Sprintf("session %s belongs to exercise %q", sess.ID, entry.Session.Exercise), 0)
			return nil
		}
		if !s.cancelFinalize(sess.ID) {
			s.writeError(conn, sess.ID, streaming.ErrCodeBadPayload,
				"session already active on another connection", 0)
			return nil
		}
		s.writeAck(conn, streaming.TypeSessionStart)
		s.echoCheckpoint(conn, entry)
		logger.Info("Session resumed", "sessionID", sess.ID, "exercise", sess.Exercise)
		return entry
	}

	an, err := analyzer.New(ex, cfg)
	if err != nil {
		s.writeError(conn, sess.ID, streaming.ErrCodeBadPayload, err.Error(), 0)
		return nil
	}

	entry := &cache.Entry{
		Session:     sess,
		Analyzer:    an,
		Recorder:    session.NewRecorder(sess),
		Checkpoints: queue.NewCheckpointMap(),
	}
	s.checkpoint(entry, 0)
	s.deps.SessionCache.Add(entry)

	s.dispatch(worker.EventSessionStarted, sess.ID, worker.SessionStartedEvent{Session: sess})

	s.writeAck(conn, streaming.TypeSessionStart)
	logger.Info("Session started",
		"sessionID", sess.ID,
		"exercise", sess.Exercise,
		"subject", sess.Subject)
	return entry
}

// handleFrame runs one frame through the engine and replies with the
// result before dispatching the persistence events.
func (s *Service) handleFrame(conn *websocket.Conn, payload []byte, entry *cache.Entry) {
	if entry == nil {
		s.writeError(conn, "", streaming.ErrCodeUnknownSession,
			"no open session on this connection", 0)
		return
	}

	sessionID, frame, err := s.deps.Parser.ParseFrame(payload)
	if err != nil {
		s.writeError(conn, entry.Session.ID, streaming.ErrCodeBadPayload, err.Error(), 0)
		return
	}
	if sessionID != entry.Session.ID {
		s.writeError(conn, sessionID, streaming.ErrCodeUnknownSession,
			fmt.Sprintf("session %s is not open on this connection", sessionID), 0)
		return
	}

	result, err := entry.Analyzer.ProcessFrame(frame)
	if err != nil {
		var missing *core.MissingLandmarkError
		if errors.As(err, &missing) {
			// engine state is untouched; count the skip and tell the client
			entry.Recorder.ObserveSkipped()
			s.writeError(conn, sessionID, streaming.ErrCodeMissingLandmark, err.Error(), missing.FrameIndex)
			return
		}
		s.writeError(conn, sessionID, streaming.ErrCodeBadPayload, err.Error(), 0)
		return
	}

	entry.Recorder.Observe(result)
	if result.CompletedRep != nil {
		s.checkpoint(entry, result.FrameIndex)
	}

	s.writeResult(conn, sessionID, result)

	s.dispatch(worker.EventFrameObserved, sessionID, worker.FrameObservedEvent{Frame: frame, Result: result})
	if result.CompletedRep != nil {
		s.dispatch(worker.EventRepFinalized, sessionID, worker.RepFinalizedEvent{
			Rep:        *result.CompletedRep,
			FrameIndex: result.FrameIndex,
		})
	}
	for _, cue := range result.NewFeedback {
		s.dispatch(worker.EventFeedbackEmitted, sessionID, worker.FeedbackEmittedEvent{Event: cue})
	}
}

// handleSessionEnd finalizes the session and reports whether the
// connection is done.
func (s *Service) handleSessionEnd(conn *websocket.Conn, payload []byte, entry *cache.Entry) bool {
	if entry == nil {
		s.writeError(conn, "", streaming.ErrCodeUnknownSession,
			"no open session on this connection", 0)
		return false
	}

	sessionID, err := s.deps.Parser.ParseSessionEnd(payload)
	if err != nil {
		s.writeError(conn, entry.Session.ID, streaming.ErrCodeBadPayload, err.Error(), 0)
		return false
	}
	if sessionID != entry.Session.ID {
		s.writeError(conn, sessionID, streaming.ErrCodeUnknownSession,
			fmt.Sprintf("session %s is not open on this connection", sessionID), 0)
		return false
	}

	summary := entry.Recorder.Summary(time.Now())
	s.deps.SessionCache.Remove(sessionID)
	s.dispatch(worker.EventSessionEnded, sessionID, worker.SessionEndedEvent{
		Session: entry.Session,
		Summary: summary,
	})

	s.writeSummary(conn, summary)
	s.deps.LogManager.Logger().Info("Session ended",
		"sessionID", sessionID,
		"reps", summary.RepCount,
		"frames", summary.FrameCount,
		"skipped", summary.SkippedBad)
	return true
}

// checkpoint snapshots the engine state at a committed counter change.
func (s *Service) checkpoint(entry *cache.Entry, frame uint) {
	state, err := json.Marshal(entry.Analyzer.State())
	if err != nil {
		s.deps.LogManager.Logger().Error("Failed to encode engine checkpoint",
			"sessionID", entry.Session.ID,
			"error", err)
		return
	}
	entry.Checkpoints.Set(frame, state)
}

// echoCheckpoint replays the last committed engine state to a resumed
// client.
func (s *Service) echoCheckpoint(conn *websocket.Conn, entry *cache.Entry) {
	frame, raw, ok := entry.Checkpoints.Latest()
	if !ok {
		return
	}
	var st analyzer.State
	if err := json.Unmarshal(raw, &st); err != nil {
		s.deps.LogManager.Logger().Error("Failed to decode engine checkpoint",
			"sessionID", entry.Session.ID,
			"error", err)
		return
	}

	cls := core.ClassificationLow
	if st.Tracker.Phase == core.PhaseUp {
		cls = core.ClassificationHigh
	}
	s.writeResult(conn, entry.Session.ID, core.FrameResult{
		FrameIndex:     frame,
		Classification: cls,
		Phase:          st.Tracker.Phase,
		RepCount:       st.RepCount,
		GoodForm:       true,
	})
}

// scheduleFinalize holds a dropped session in the cache for the resume
// grace window, then finalizes it server-side.
func (s *Service) scheduleFinalize(entry *cache.Entry) {
	id := entry.Session.ID
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[id]; ok {
		return
	}
	s.pending[id] = time.AfterFunc(s.grace, func() {
		s.finalizeAbandoned(id)
	})
	s.deps.LogManager.Logger().Warn("Session held for resume",
		"sessionID", id,
		"grace", s.grace)
}

// cancelFinalize stops a pending finalize timer. Returns false when the
// timer already fired or no timer exists, meaning the session cannot be
// adopted.
func (s *Service) cancelFinalize(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.pending[id]
	if !ok {
		return false
	}
	delete(s.pending, id)
	return t.Stop()
}

// finalizeAbandoned ends a session whose client never came back.
func (s *Service) finalizeAbandoned(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()

	entry, ok := s.deps.SessionCache.Remove(id)
	if !ok {
		return
	}

	summary := entry.Recorder.Summary(time.Now())
	s.dispatch(worker.EventSessionEnded, id, worker.SessionEndedEvent{
		Session: entry.Session,
		Summary: summary,
	})
	s.deps.LogManager.Logger().Info("Abandoned session finalized",
		"sessionID", id,
		"reps", summary.RepCount)
}

// dispatch marshals and dispatches one persistence event. Failures are
// logged and never surface to the client.
func (s *Service) dispatch(kind, sessionID string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.deps.LogManager.Logger().Error("Failed to encode event",
			"kind", kind,
			"sessionID", sessionID,
			"error", err)
		return
	}

	if _, err := s.deps.Dispatcher.Dispatch(dispatcher.Event{
		Kind:      kind,
		SessionID: sessionID,
		Payload:   data,
		Timestamp: time.Now(),
	}); err != nil {
		s.deps.LogManager.Logger().Error("Failed to dispatch event",
			"kind", kind,
			"sessionID", sessionID,
			"error", err)
	}
}

func (s *Service) writeEnvelope(conn *websocket.Conn, msgType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.deps.LogManager.Logger().Error("Failed to encode envelope",
			"type", msgType,
			"error", err)
		return
	}
	if err := conn.WriteJSON(streaming.Envelope{Type: msgType, Payload: data}); err != nil {
		s.deps.LogManager.Logger().Debug("Failed to write envelope",
			"type", msgType,
			"error", err)
	}
}

func (s *Service) writeAck(conn *websocket.Conn, forType string) {
	if err := conn.WriteJSON(streaming.AckMessage{Type: streaming.TypeAck, For: forType}); err != nil {
		s.deps.LogManager.Logger().Debug("Failed to write ack",
			"for", forType,
			"error", err)
	}
}

func (s *Service) writeResult(conn *websocket.Conn, sessionID string, result core.FrameResult) {
	s.writeEnvelope(conn, streaming.TypeResult, streaming.ResultPayload{
		SessionID: sessionID,
		Result:    result,
	})
}

func (s *Service) writeSummary(conn *websocket.Conn, summary core.SessionSummary) {
	s.writeEnvelope(conn, streaming.TypeSummary, streaming.SummaryPayload{Summary: summary})
}

func (s *Service) writeError(conn *websocket.Conn, sessionID, code, message string, frameIndex uint) {
	s.writeEnvelope(conn, streaming.TypeError, streaming.ErrorPayload{
		SessionID:  sessionID,
		Code:       code,
		Message:    message,
		FrameIndex: frameIndex,
	})
}
