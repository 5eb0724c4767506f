package bpe

import "sync"

// Cache maps the initial split form of a word to its fully merged form.
// It is safe for concurrent use. Concurrent writes of the same key store
// the same value, so the last write wins.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]string)}
}

// NewCacheFrom returns a cache seeded with a copy of entries.
func NewCacheFrom(entries map[string]string) *Cache {
	c := &Cache{entries: make(map[string]string, len(entries))}
	for k, v := range entries {
		c.entries[k] = v
	}

	return c
}

// Get returns the merged form stored for split.
func (c *Cache) Get(split string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.entries[split]

	return v, ok
}

// Put stores the merged form for split.
func (c *Cache) Put(split, merged string) {
	c.mu.Lock()
	c.entries[split] = merged
	c.mu.Unlock()
}

// Len returns the number of cached words.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// Snapshot returns a copy of the cache contents.
func (c *Cache) Snapshot() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]string, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}

	return out
}
