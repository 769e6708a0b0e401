package logging

import "log/slog"

// DispatcherLogger narrows a slog.Logger to the three methods the
// dispatcher wants.
type DispatcherLogger struct {
	log *slog.Logger
}

// NewDispatcherLogger wraps logger for the dispatcher.
func NewDispatcherLogger(logger *slog.Logger) *DispatcherLogger {
	return &DispatcherLogger{log: logger}
}

func (l *DispatcherLogger) Debug(msg string, args ...any) {
	l.log.Debug(msg, args...)
}

func (l *DispatcherLogger) Info(msg string, args ...any) {
	l.log.Info(msg, args...)
}

func (l *DispatcherLogger) Error(msg string, args ...any) {
	l.log.Error(msg, args...)
}
