// Package cache provides the short-TTL identity cache used to avoid
// repeated store lookups when resolving a distributor id from an email.
// It is an auxiliary lookup memo only; role and status for authorization
// always come from the session token, never from here.
package cache

import (
	"sync"
	"time"

	"github.com/docuport/portal-api/internal/metrics"
)

// DefaultTTL is the age beyond which an entry is treated as absent
const DefaultTTL = 5 * time.Minute

type entry struct {
	value      string
	insertedAt time.Time
}

// Cache is a concurrency-safe map of lookup key to resolved id. Expiry is
// checked lazily on read; the optional janitor sweep exists only for memory
// hygiene and its absence never affects correctness.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration

	now func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// New creates a cache with the given TTL. A sweepInterval of zero disables
// the background sweep.
func New(ttl, sweepInterval time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c := &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
		stop:    make(chan struct{}),
	}

	if sweepInterval > 0 {
		go c.janitor(sweepInterval)
	}

	return c
}

// Get returns the cached value for key. An entry older than the TTL is a
// miss regardless of physical presence.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		metrics.RecordCacheLookup("miss")
		return "", false
	}
	if c.now().Sub(e.insertedAt) > c.ttl {
		metrics.RecordCacheLookup("expired")
		return "", false
	}

	metrics.RecordCacheLookup("hit")
	return e.value, true
}

// Set inserts or refreshes an entry
func (c *Cache) Set(key, value string) {
	c.mu.Lock()
	c.entries[key] = entry{value: value, insertedAt: c.now()}
	c.mu.Unlock()
}

// Invalidate drops an entry. Called when the underlying record changes.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len returns the number of physically present entries, expired included
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stop terminates the background sweep, if any
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) sweep() {
	cutoff := c.now().Add(-c.ttl)

	c.mu.Lock()
	for key, e := range c.entries {
		if e.insertedAt.Before(cutoff) {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}
