// internal/analyzer/feedback.go
package analyzer

import "github.com/repcoach/engine/pkg/core"

// Log accumulates coaching cues over a session. Messages form an
// insertion-ordered set: the first emission fixes a message's position
// and repeats are dropped, while Events keeps every emission.
type Log struct {
	seen   map[string]struct{}
	order  []string
	events []core.FeedbackEvent
}

// NewLog creates an empty feedback log.
func NewLog() *Log {
	return &Log{seen: make(map[string]struct{})}
}

// Add records one emission. Returns true when the message was new to the
// session.
func (l *Log) Add(ev core.FeedbackEvent) bool {
	l.events = append(l.events, ev)
	if _, dup := l.seen[ev.Message]; dup {
		return false
	}
	l.seen[ev.Message] = struct{}{}
	l.order = append(l.order, ev.Message)
	return true
}

// Messages returns the deduplicated messages in first-emission order.
func (l *Log) Messages() []string {
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// Events returns every emission in order.
func (l *Log) Events() []core.FeedbackEvent {
	out := make([]core.FeedbackEvent, len(l.events))
	copy(out, l.events)
	return out
}

// Len is the number of unique messages.
func (l *Log) Len() int {
	return len(l.order)
}

// Reset empties the log.
func (l *Log) Reset() {
	l.seen = make(map[string]struct{})
	l.order = nil
	l.events = nil
}
