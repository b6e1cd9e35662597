package permission

import (
	"sync"
	"time"
)

// capabilityCache is a short-TTL in-memory cache of store lookups.
type capabilityCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry struct {
	caps      []Capability
	expiresAt time.Time
}

func newCapabilityCache(ttl time.Duration, now func() time.Time) *capabilityCache {
	return &capabilityCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     now,
	}
}

// get returns (nil, false) on miss or expiry.
func (c *capabilityCache) get(role string) ([]Capability, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	entry, ok := c.entries[role]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !c.now().Before(entry.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent set may have refreshed it.
		if cur, ok := c.entries[role]; ok && !c.now().Before(cur.expiresAt) {
			delete(c.entries, role)
		}
		c.mu.Unlock()
		return nil, false
	}
	return entry.caps, true
}

func (c *capabilityCache) set(role string, caps []Capability) {
	if c == nil || c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[role] = cacheEntry{caps: caps, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *capabilityCache) purge() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}
