// Package cache provides an in-memory TTL cache for message analysis
// results, keyed by a fingerprint of the normalized message text.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// DefaultTTL is how long a cached entry stays valid.
const DefaultTTL = 5 * time.Minute

// Observer receives cache activity for metrics. All methods must be safe
// on a nil implementation value.
type Observer interface {
	CacheHit()
	CacheMiss()
	CacheSize(n int)
}

type entry struct {
	value     string
	expiresAt time.Time
}

// Cache is safe for concurrent use.
type Cache struct {
	mu       sync.RWMutex
	entries  map[string]entry
	ttl      time.Duration
	observer Observer
	now      func() time.Time

	hits    uint64
	lookups uint64
}

type Option func(*Cache)

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithObserver(o Observer) Option {
	return func(c *Cache) { c.observer = o }
}

// withClock is used by tests to control expiry.
func withClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key fingerprints a message. Whitespace runs and case differences produce
// the same key.
func Key(message string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(message)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached value for key. Expired entries are removed on
// access and count as misses.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lookups++
	e, ok := c.entries[key]
	if ok && c.now().Before(e.expiresAt) {
		c.hits++
		if c.observer != nil {
			c.observer.CacheHit()
		}
		return e.value, true
	}
	if ok {
		delete(c.entries, key)
	}
	if c.observer != nil {
		c.observer.CacheMiss()
		c.observer.CacheSize(len(c.entries))
	}
	return "", false
}

func (c *Cache) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(c.ttl)}
	if c.observer != nil {
		c.observer.CacheSize(len(c.entries))
	}
}

// Sweep drops every expired entry and returns how many were removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	if c.observer != nil {
		c.observer.CacheSize(len(c.entries))
	}
	return removed
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats reports lifetime lookup counters. HitRate is hits over all lookups,
// including lookups that found an expired entry.
type Stats struct {
	Hits    uint64  `json:"hits"`
	Lookups uint64  `json:"lookups"`
	HitRate float64 `json:"hit_rate"`
	Entries int     `json:"entries"`
}

func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Stats{Hits: c.hits, Lookups: c.lookups, Entries: len(c.entries)}
	if s.Lookups > 0 {
		s.HitRate = float64(s.Hits) / float64(s.Lookups)
	}
	return s
}
