package gamma

import (
	"sync"
	"time"
)

// ttlCache is an in-memory byte cache with per-key expiry. Raw response
// bodies are cached, not parsed values, so every read path reparses through
// the same code.
type ttlCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	store map[string]cacheEntry
	now   func() time.Time
}

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

func newTTLCache(ttl time.Duration) *ttlCache {
	return &ttlCache{
		ttl:   ttl,
		store: make(map[string]cacheEntry),
		now:   time.Now,
	}
}

func (c *ttlCache) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.store[key]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.store, key)
		return nil, false
	}
	return entry.value, true
}

func (c *ttlCache) set(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = cacheEntry{value: value, expiresAt: c.now().Add(c.ttl)}
}
