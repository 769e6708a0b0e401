// Package cache holds the live pipeline of every open session.
package cache

import (
	"sync"

	"github.com/repcoach/engine/internal/analyzer"
	"github.com/repcoach/engine/internal/queue"
	"github.com/repcoach/engine/internal/session"
	"github.com/repcoach/engine/pkg/core"
)

// Entry is the live analysis pipeline for one session.
type Entry struct {
	Session     core.Session
	Analyzer    analyzer.Analyzer
	Recorder    *session.Recorder
	Checkpoints *queue.CheckpointMap
}

// SessionCache maps session IDs to their live pipelines. The owning
// connection goroutine holds its entry directly; the cache exists so
// reconnects and the shutdown sweep can reach sessions they don't own.
type SessionCache struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

func NewSessionCache() *SessionCache {
	return &SessionCache{entries: make(map[string]*Entry)}
}

// Add stores the entry keyed by its session ID, replacing any previous
// entry for the same session.
func (c *SessionCache) Add(e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[e.Session.ID] = e
}

func (c *SessionCache) Get(sessionID string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[sessionID]
	return e, ok
}

// Remove deletes and returns the entry for the session, if present.
func (c *SessionCache) Remove(sessionID string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[sessionID]
	if ok {
		delete(c.entries, sessionID)
	}
	return e, ok
}

func (c *SessionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// ActiveIDs returns the IDs of all cached sessions.
func (c *SessionCache) ActiveIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	return ids
}
