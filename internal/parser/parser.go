package parser

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/repcoach/engine/internal/analyzer"
	"github.com/repcoach/engine/pkg/core"
	"github.com/repcoach/engine/pkg/streaming"
)

// Parser turns raw client payloads into domain structs. It keeps no
// per-session state, so a single instance serves every connection.
type Parser struct {
	logger *slog.Logger

	// stamped onto sessions at parse time
	engineVersion string
	defaultTag    string
}

// NewParser returns a Parser that stamps engineVersion on each session
// and falls back to defaultTag when the client sends no tag.
func NewParser(logger *slog.Logger, engineVersion, defaultTag string) *Parser {
	return &Parser{
		logger:        logger,
		engineVersion: engineVersion,
		defaultTag:    defaultTag,
	}
}

// ParseSessionStart parses a session_start payload into a session and
// an analyzer config. Tuning overrides are applied on top of base and
// the combined config validated as a whole, so a partial override can
// never produce thresholds that contradict each other.
func (p *Parser) ParseSessionStart(payload []byte, base analyzer.Config) (core.Session, analyzer.Config, error) {
	var msg streaming.SessionStartPayload

	if err := json.Unmarshal(payload, &msg); err != nil {
		return core.Session{}, base, fmt.Errorf("error unmarshalling session start payload: %w", err)
	}

	session := msg.Session

	if _, err := core.ParseExercise(string(session.Exercise)); err != nil {
		return core.Session{}, base, err
	}

	if session.ID == "" {
		session.ID = fmt.Sprintf("%s_%d", session.Exercise, time.Now().UnixMilli())
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now()
	}
	if session.Tag == "" {
		session.Tag = p.defaultTag
	}
	session.EngineVersion = p.engineVersion

	cfg := base
	if len(msg.Tuning) > 0 {
		if err := json.Unmarshal(msg.Tuning, &cfg); err != nil {
			return core.Session{}, base, fmt.Errorf("error unmarshalling tuning overrides: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return core.Session{}, base, fmt.Errorf("invalid tuning for session %s: %w", session.ID, err)
	}

	p.logger.Debug("Parsed session start",
		"sessionID", session.ID,
		"exercise", session.Exercise)

	return session, cfg, nil
}

// ParseSessionEnd parses a session_end payload and returns the session ID.
func (p *Parser) ParseSessionEnd(payload []byte) (string, error) {
	var msg streaming.SessionEndPayload

	if err := json.Unmarshal(payload, &msg); err != nil {
		return "", fmt.Errorf("error unmarshalling session end payload: %w", err)
	}
	if msg.SessionID == "" {
		return "", fmt.Errorf("session end payload missing session_id")
	}

	return msg.SessionID, nil
}
