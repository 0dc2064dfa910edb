package resultcache

import (
	"sort"
	"sync"
	"time"

	"github.com/CityPulse/PulseGuard/pkg/moderation"
)

const (
	DefaultTTL      = 60 * time.Second
	DefaultCapacity = 500

	// Share of entries evicted, oldest first, when the cache is full.
	evictionPercent = 20
)

type entry struct {
	result   moderation.Result
	storedAt time.Time
}

// Cache is a bounded in-process result cache with a per-entry TTL.
// Expired entries are treated as absent. It is safe for concurrent
// use and implements moderation.Cache.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]entry
	ttl      time.Duration
	capacity int
	now      func() time.Time
}

type Option func(*Cache)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

func New(ttl time.Duration, capacity int, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &Cache{
		entries:  make(map[string]entry),
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) Get(key string) (moderation.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return moderation.Result{}, false
	}
	if c.now().Sub(e.storedAt) >= c.ttl {
		delete(c.entries, key)
		return moderation.Result{}, false
	}
	return e.result, true
}

func (c *Cache) Set(key string, result moderation.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.capacity {
		c.evictOldest()
	}
	c.entries[key] = entry{result: result, storedAt: c.now()}
}

// Len reports the current number of entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictOldest removes the oldest ~20% of entries by storage time.
// Caller must hold c.mu.
func (c *Cache) evictOldest() {
	n := len(c.entries) * evictionPercent / 100
	if n < 1 {
		n = 1
	}

	type aged struct {
		key      string
		storedAt time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{key: k, storedAt: e.storedAt})
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].storedAt.Before(all[j].storedAt)
	})

	for i := 0; i < n && i < len(all); i++ {
		delete(c.entries, all[i].key)
	}
}
