package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
)

// Syslog severities used in GELF payloads.
const (
	gelfLevelError int32 = 3
	gelfLevelWarn  int32 = 4
	gelfLevelInfo  int32 = 6
	gelfLevelDebug int32 = 7
)

// gelfWriter is the part of gelf.Writer the handler needs.
type gelfWriter interface {
	WriteMessage(*gelf.Message) error
}

// GELFHandler is a slog.Handler that forwards records to a Graylog
// server over UDP.
type GELFHandler struct {
	writer gelfWriter
	host   string
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

// NewGELFHandler connects to the Graylog server at address and returns
// a handler that forwards records at or above level.
func NewGELFHandler(address string, level slog.Level) (*GELFHandler, error) {
	w, err := gelf.NewWriter(address)
	if err != nil {
		return nil, fmt.Errorf("connecting to graylog at %s: %w", address, err)
	}
	return newGELFHandler(w, level), nil
}

func newGELFHandler(w gelfWriter, level slog.Level) *GELFHandler {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return &GELFHandler{writer: w, host: host, level: level}
}

// Enabled reports whether records at the given level are forwarded.
func (h *GELFHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle converts the record to a GELF message and sends it.
func (h *GELFHandler) Handle(_ context.Context, r slog.Record) error {
	extra := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		extra[a.Key] = a.Value.Resolve().Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		extra[h.extraKey(a.Key)] = a.Value.Resolve().Any()
		return true
	})

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	return h.writer.WriteMessage(&gelf.Message{
		Version:  "1.1",
		Host:     h.host,
		Short:    r.Message,
		TimeUnix: float64(ts.UnixNano()) / float64(time.Second),
		Level:    syslogLevel(r.Level),
		Extra:    extra,
	})
}

// WithAttrs returns a handler that includes the given attributes in
// every message. Keys are resolved against the open groups now.
func (h *GELFHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := h.clone()
	for _, a := range attrs {
		nh.attrs = append(nh.attrs, slog.Attr{Key: h.extraKey(a.Key), Value: a.Value})
	}
	return nh
}

// WithGroup returns a handler that prefixes subsequent keys with name.
func (h *GELFHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := h.clone()
	nh.groups = append(nh.groups, name)
	return nh
}

func (h *GELFHandler) clone() *GELFHandler {
	nh := *h
	nh.attrs = make([]slog.Attr, len(h.attrs), len(h.attrs)+4)
	copy(nh.attrs, h.attrs)
	nh.groups = make([]string, len(h.groups), len(h.groups)+1)
	copy(nh.groups, h.groups)
	return &nh
}

// extraKey builds a GELF additional-field key. Additional fields must
// start with an underscore.
func (h *GELFHandler) extraKey(key string) string {
	if len(h.groups) == 0 {
		return "_" + key
	}
	return "_" + strings.Join(h.groups, "_") + "_" + key
}

func syslogLevel(level slog.Level) int32 {
	switch {
	case level >= slog.LevelError:
		return gelfLevelError
	case level >= slog.LevelWarn:
		return gelfLevelWarn
	case level >= slog.LevelInfo:
		return gelfLevelInfo
	default:
		return gelfLevelDebug
	}
}
