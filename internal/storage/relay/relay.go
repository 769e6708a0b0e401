// Package relay streams live analysis output over WebSocket to the
// coaching web frontend. It implements storage.Backend but not
// storage.Uploadable.
package relay

import (
	"log/slog"
	"time"

	"github.com/repcoach/engine/pkg/core"
	"github.com/repcoach/engine/pkg/streaming"
)

// Config holds the relay endpoint settings.
type Config struct {
	URL    string
	Secret string
}

// Backend forwards session headers, per-frame results and summaries to
// the relay endpoint. Raw frames never leave the engine.
type Backend struct {
	up      *uplink
	cfg     Config
	ackWait time.Duration
}

// New creates a relay backend for the given endpoint.
func New(cfg Config) *Backend {
	return &Backend{
		up:      newUplink(slog.Default()),
		cfg:     cfg,
		ackWait: ackTimeout,
	}
}

// Init dials the relay endpoint and starts the connection supervisor.
func (b *Backend) Init() error {
	return b.up.dial(b.cfg.URL, b.cfg.Secret)
}

// Close signals the supervisor to stop and waits for the connection to
// wind down.
func (b *Backend) Close() error {
	return b.up.close()
}

// stream queues an encoded envelope on the outbox and returns without
// waiting for delivery.
func (b *Backend) stream(msgType string, payload any) error {
	data, err := streaming.Encode(msgType, payload)
	if err != nil {
		return err
	}
	b.up.send(data)
	return nil
}

// StartSession sends the session header and waits for the server ack.
// The header stays cached on the uplink for redial replay until the
// session ends, even when the ack times out.
func (b *Backend) StartSession(s *core.Session) error {
	data, err := streaming.Encode(streaming.TypeSessionStart, streaming.SessionStartPayload{Session: *s})
	if err != nil {
		return err
	}
	b.up.rememberStart(s.ID, data)
	return b.up.sendAndWait(data, streaming.TypeSessionStart, b.ackWait)
}

// EndSession sends the final summary and waits for the server ack. The
// cached header is dropped whether or not the ack arrives, so a later
// redial cannot resurrect the session.
func (b *Backend) EndSession(summary *core.SessionSummary) error {
	if summary == nil {
		return nil
	}
	data, err := streaming.Encode(streaming.TypeSummary, streaming.SummaryPayload{Summary: *summary})
	if err != nil {
		return err
	}
	err = b.up.sendAndWait(data, streaming.TypeSummary, b.ackWait)
	b.up.forgetStart(summary.SessionID)
	return err
}

// RecordFrame streams the analysis result. The frame argument is
// discarded; the frontend only renders results.
func (b *Backend) RecordFrame(sessionID string, _ core.Frame, result core.FrameResult) error {
	return b.stream(streaming.TypeResult, streaming.ResultPayload{
		SessionID: sessionID,
		Result:    result,
	})
}

// RecordRep is a no-op. Completed reps ride inside the frame results.
func (b *Backend) RecordRep(string, core.Rep, uint) error {
	return nil
}

// RecordFeedback is a no-op. Cues ride inside the frame results.
func (b *Backend) RecordFeedback(string, core.FeedbackEvent) error {
	return nil
}

// RecordPerformance is a no-op. Engine health stays server-side.
func (b *Backend) RecordPerformance(core.EnginePerformance) error {
	return nil
}
