package dataset

import "sync"

// StreamlineCache maps time index to streamline geometry. It is safe for
// concurrent readers while a writer merges entries; a missing key is a miss,
// never a wait.
type StreamlineCache struct {
	mu      sync.RWMutex
	entries map[int]any
}

func NewStreamlineCache() *StreamlineCache {
	return &StreamlineCache{entries: make(map[int]any)}
}

// Get returns the entry for t.
func (c *StreamlineCache) Get(t int) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g, ok := c.entries[t]
	return g, ok
}

// Merge copies entries into the cache, overwriting existing keys.
func (c *StreamlineCache) Merge(entries map[int]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for t, g := range entries {
		c.entries[t] = g
	}
}

// Len returns the number of cached time indices.
func (c *StreamlineCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
