// Package session tracks the currently active analysis session and
// folds analyzer outputs into a running summary.
package session

import (
	"sync"

	"github.com/repcoach/engine/pkg/core"
)

// Context holds the current session state behind a lock so handlers,
// workers, and the monitor can read it concurrently.
type Context struct {
	mu      sync.RWMutex
	session core.Session
	active  bool
}

// NewContext creates an inactive Context.
func NewContext() *Context {
	return &Context{}
}

// Get returns the current session and whether one is active.
func (c *Context) Get() (core.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session, c.active
}

// Set installs a new active session.
func (c *Context) Set(s core.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
	c.active = true
}

// Clear deactivates the context, returning the session that was active.
func (c *Context) Clear() core.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.session
	c.session = core.Session{}
	c.active = false
	return s
}

// Active reports whether a session is in progress.
func (c *Context) Active() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}
