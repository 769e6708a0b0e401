// Package logging wires the engine's slog stack: file or stdout text
// output, an optional OTel bridge, GELF forwarding, and dynamic
// context attrs on every record.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LogFilePath names the log file for a run started at startedAt.
func LogFilePath(logsDir, appName string, startedAt time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", appName, startedAt.Format("20060102_150405")),
	)
}

// OpenLogFile creates logsDir if needed and opens the run's log file
// for appending. An existing file of the same name is moved aside to
// .old first.
func OpenLogFile(logsDir, appName string, startedAt time.Time) (*os.File, error) {
	if _, err := os.Stat(logsDir); os.IsNotExist(err) {
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create logs directory: %w", err)
		}
	}

	path := LogFilePath(logsDir, appName, startedAt)
	if _, err := os.Stat(path); err == nil {
		os.Rename(path, path+".old")
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return f, nil
}
