package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDCache_RoundTrip(t *testing.T) {
	c := NewIDCache()

	_, ok := c.Get("sess-1")
	require.False(t, ok)

	c.Set("sess-1", 7)
	c.Set("sess-2", 9)

	id, ok := c.Get("sess-1")
	require.True(t, ok)
	assert.Equal(t, uint(7), id)

	// Setting again overwrites the row ID.
	c.Set("sess-1", 12)
	id, _ = c.Get("sess-1")
	assert.Equal(t, uint(12), id)
}

func TestIDCache_DeleteIsScoped(t *testing.T) {
	c := NewIDCache()
	c.Set("sess-1", 1)
	c.Set("sess-2", 2)

	c.Delete("sess-1")
	c.Delete("never-seen")

	_, ok := c.Get("sess-1")
	assert.False(t, ok)
	id, ok := c.Get("sess-2")
	require.True(t, ok)
	assert.Equal(t, uint(2), id)
}

func TestIDCache_Reset(t *testing.T) {
	c := NewIDCache()
	for i, id := range []string{"sess-1", "sess-2", "sess-3"} {
		c.Set(id, uint(i+1))
	}

	c.Reset()

	for _, id := range []string{"sess-1", "sess-2", "sess-3"} {
		_, ok := c.Get(id)
		assert.False(t, ok, "mapping for %s survived reset", id)
	}

	// The cache stays usable afterwards.
	c.Set("sess-4", 4)
	id, ok := c.Get("sess-4")
	require.True(t, ok)
	assert.Equal(t, uint(4), id)
}

func TestIDCache_Concurrent(t *testing.T) {
	c := NewIDCache()
	var wg sync.WaitGroup

	for i := 0; i < 64; i++ {
		wg.Add(3)
		go func(n uint) {
			defer wg.Done()
			c.Set("shared", n)
		}(uint(i))
		go func() {
			defer wg.Done()
			c.Get("shared")
		}()
		go func() {
			defer wg.Done()
			c.Delete("other")
		}()
	}
	wg.Wait()

	_, ok := c.Get("shared")
	assert.True(t, ok)
}
