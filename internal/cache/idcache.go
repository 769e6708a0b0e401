package cache

import "sync"

// IDCache maps session IDs to database row IDs, so rows queued long
// after a session's insert can still be stamped with the right parent.
// The gorm backend resets it on Init and drops entries as sessions end;
// no mapping outlives the run that created it.
type IDCache struct {
	mu  sync.Mutex
	ids map[string]uint
}

func NewIDCache() *IDCache {
	return &IDCache{ids: make(map[string]uint)}
}

func (c *IDCache) Get(sessionID string) (uint, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.ids[sessionID]
	return id, ok
}

func (c *IDCache) Set(sessionID string, id uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids[sessionID] = id
}

// Delete forgets a finished session.
func (c *IDCache) Delete(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.ids, sessionID)
}

// Reset drops every mapping at once.
func (c *IDCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = make(map[string]uint)
}
