package verification

import (
	"sync"
	"time"
)

// statusSnapshot is the entity-level slice of a status answer that is safe
// to share across callers regardless of role. Capabilities are resolved per
// request from the cached record.
type statusSnapshot struct {
	record    *Record
	suspended bool
}

// StatusCache keeps recently loaded verification snapshots per entity so the
// status endpoint does not hit the store on every render. Entries are shared
// and treated as read-only.
type StatusCache struct {
	data    map[string]*cacheEntry
	ttl     time.Duration
	mu      sync.RWMutex
	cleanup *time.Ticker
	done    chan struct{}
}

type cacheEntry struct {
	value      *statusSnapshot
	expiration time.Time
}

// NewStatusCache creates a status cache and starts its cleanup loop.
func NewStatusCache(ttl time.Duration) *StatusCache {
	cache := &StatusCache{
		data:    make(map[string]*cacheEntry),
		ttl:     ttl,
		cleanup: time.NewTicker(time.Minute),
		done:    make(chan struct{}),
	}

	go cache.cleanupLoop()

	return cache
}

func (c *StatusCache) get(entityID string) (*statusSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.data[entityID]
	if !ok {
		return nil, false
	}

	if time.Now().After(entry.expiration) {
		return nil, false
	}

	return entry.value, true
}

func (c *StatusCache) set(entityID string, value *statusSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[entityID] = &cacheEntry{
		value:      value,
		expiration: time.Now().Add(c.ttl),
	}
}

// Invalidate drops an entity's cached snapshot. Every status transition calls
// this so capability reads never serve a decision that has been superseded.
func (c *StatusCache) Invalidate(entityID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.data, entityID)
}

// Size returns the number of cached entries.
func (c *StatusCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.data)
}

func (c *StatusCache) cleanupLoop() {
	for {
		select {
		case <-c.cleanup.C:
			c.removeExpired()
		case <-c.done:
			return
		}
	}
}

func (c *StatusCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.data {
		if now.After(entry.expiration) {
			delete(c.data, key)
		}
	}
}

// Stop stops the cleanup loop.
func (c *StatusCache) Stop() {
	c.cleanup.Stop()
	close(c.done)
}
