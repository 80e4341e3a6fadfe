package rolehub

import (
	"sync"
	"time"
)

type cacheEntry struct {
	roles     []string
	expiresAt time.Time
}

type inMemoryRoleCache struct {
	mu         sync.RWMutex
	entries    map[string]cacheEntry
	ttl        time.Duration
	maxEntries int
}

func newInMemoryRoleCache(ttl time.Duration, maxEntries int) *inMemoryRoleCache {
	return &inMemoryRoleCache{
		entries:    make(map[string]cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
	}
}

func (c *inMemoryRoleCache) Get(key string) ([]string, bool) {
	now := time.Now()

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.After(now) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}

	return entry.roles, true
}

func (c *inMemoryRoleCache) Set(key string, roles []string) {
	if c.ttl <= 0 {
		return
	}

	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictExpired(now)
		if len(c.entries) >= c.maxEntries {
			c.evictOne()
		}
	}

	c.entries[key] = cacheEntry{
		roles:     roles,
		expiresAt: now.Add(c.ttl),
	}
}

func (c *inMemoryRoleCache) evictExpired(now time.Time) {
	for key, entry := range c.entries {
		if !entry.expiresAt.After(now) {
			delete(c.entries, key)
		}
	}
}

func (c *inMemoryRoleCache) evictOne() {
	for key := range c.entries {
		delete(c.entries, key)
		return
	}
}
