package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// Indirection for stdout capture in tests.
var osStdout io.Writer = os.Stdout

// SlogManager owns the process logger: a text handler on a file or
// stdout, optionally fanned out to an OTel bridge and extra handlers,
// with dynamic context attrs injected into every record.
type SlogManager struct {
	logger   *slog.Logger
	provider *sdklog.LoggerProvider
	context  atomic.Pointer[AttrProvider]
}

// NewSlogManager creates an empty manager; call Setup before logging.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

var levelNames = map[string]slog.Level{
	"DEBUG": slog.LevelDebug,
	"INFO":  slog.LevelInfo,
	"WARN":  slog.LevelWarn,
	"ERROR": slog.LevelError,
}

// parseLevel maps a level name to its slog.Level, defaulting to Info
// for anything it does not recognize.
func parseLevel(level string) slog.Level {
	if lvl, ok := levelNames[strings.ToUpper(level)]; ok {
		return lvl
	}
	return slog.LevelInfo
}

// rfc3339Times rewrites record timestamps as UTC RFC3339 strings.
func rfc3339Times(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		if t, ok := a.Value.Any().(time.Time); ok {
			a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
		}
	}
	return a
}

// Setup builds the logger. Records go to file, or stdout when file is
// nil. A non-nil provider attaches the OTel bridge; extra handlers
// (GELF forwarding and the like) receive every record as well. Setup
// may be called again to move logging onto a new target.
func (m *SlogManager) Setup(file io.Writer, level string, provider *sdklog.LoggerProvider, extra ...slog.Handler) {
	m.provider = provider

	opts := &slog.HandlerOptions{
		Level:       parseLevel(level),
		ReplaceAttr: rfc3339Times,
	}

	target := file
	if target == nil {
		target = osStdout
	}

	handlers := []slog.Handler{slog.NewTextHandler(target, opts)}
	if provider != nil {
		handlers = append(handlers,
			otelslog.NewHandler("repcoach-engine", otelslog.WithLoggerProvider(provider)))
	}
	handlers = append(handlers, extra...)

	m.logger = slog.New(NewContextHandler(NewMultiHandler(handlers...), m.contextAttrs))
	m.logger.Info("Logging ready", "level", level)
}

// SetContext installs a provider whose attrs are appended to every
// record from now on. Safe to call while logging is in flight.
func (m *SlogManager) SetContext(p AttrProvider) {
	if p == nil {
		m.context.Store(nil)
		return
	}
	m.context.Store(&p)
}

func (m *SlogManager) contextAttrs() []slog.Attr {
	p := m.context.Load()
	if p == nil {
		return nil
	}
	return (*p)()
}

// Logger returns the configured logger, or slog.Default before Setup.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger != nil {
		return m.logger
	}
	return slog.Default()
}

// Flush forces the OTel exporter to deliver buffered records.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.provider == nil {
		return nil
	}
	return m.provider.ForceFlush(ctx)
}

// WriteLog logs data under the named function at the given level. The
// storage and monitor code uses this string-level form.
func (m *SlogManager) WriteLog(functionName, data, level string) {
	if m.logger == nil {
		return
	}
	m.logger.Log(context.Background(), parseLevel(level), data, "function", functionName)
}
