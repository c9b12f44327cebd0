// Package cache memoizes resolution results with least-recently-used eviction
// and lazy time-based expiry.
package cache

import (
	"container/list"
	"strings"
	"sync"
	"time"
)

// Defaults applied by New.
const (
	DefaultCapacity = 1000
	DefaultTTL      = time.Hour
)

type entry[V any] struct {
	key      string
	value    V
	storedAt time.Time
}

// Cache is a bounded, TTL-aware LRU map. All operations take a single
// per-instance lock and never perform I/O.
type Cache[V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time

	order *list.List // front = most recently used
	items map[string]*list.Element

	hits      uint64
	misses    uint64
	evictions uint64
	expired   uint64
}

// Option configures a Cache.
type Option func(*config)

type config struct {
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// WithCapacity bounds the number of entries. Values below 1 fall back to the default.
func WithCapacity(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithTTL sets the entry lifetime. A non-positive TTL disables expiry.
func WithTTL(d time.Duration) Option {
	return func(c *config) {
		c.ttl = d
	}
}

// WithClock sets the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}

// New creates an empty cache.
func New[V any](opts ...Option) *Cache[V] {
	cfg := config{capacity: DefaultCapacity, ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Cache[V]{
		capacity: cfg.capacity,
		ttl:      cfg.ttl,
		now:      cfg.now,
		order:    list.New(),
		items:    make(map[string]*list.Element),
	}
}

// Get returns the value stored under key. A hit refreshes recency; an expired
// entry is evicted and reported as a miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, false
	}
	e := el.Value.(*entry[V])
	if c.isExpired(e, c.now()) {
		c.remove(el)
		c.expired++
		c.misses++
		return zero, false
	}
	c.order.MoveToFront(el)
	c.hits++
	return e.value, true
}

// Set inserts or replaces the value under key. When the cache overflows,
// expired entries are dropped first and then the least-recently-used one.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(key, value, c.now())
}

func (c *Cache[V]) set(key string, value V, now time.Time) {
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[V])
		e.value = value
		e.storedAt = now
		c.order.MoveToFront(el)
		return
	}

	c.items[key] = c.order.PushFront(&entry[V]{key: key, value: value, storedAt: now})
	if c.order.Len() <= c.capacity {
		return
	}

	if c.sweep(now) > 0 && c.order.Len() <= c.capacity {
		return
	}
	for c.order.Len() > c.capacity {
		c.remove(c.order.Back())
		c.evictions++
	}
}

// Warm pre-populates the cache with the given entries.
func (c *Cache[V]) Warm(entries map[string]V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, v := range entries {
		c.set(k, v, now)
	}
}

// Delete removes a single key and reports whether it was present.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if ok {
		c.remove(el)
	}
	return ok
}

// InvalidatePrefix removes every entry whose key starts with prefix and
// returns how many were removed.
func (c *Cache[V]) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, el := range c.items {
		if strings.HasPrefix(key, prefix) {
			c.remove(el)
			removed++
		}
	}
	return removed
}

// Sweep removes all expired entries and returns how many were removed.
func (c *Cache[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweep(c.now())
}

func (c *Cache[V]) sweep(now time.Time) int {
	if c.ttl <= 0 {
		return 0
	}
	removed := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if c.isExpired(el.Value.(*entry[V]), now) {
			c.remove(el)
			removed++
		}
		el = prev
	}
	c.expired += uint64(removed)
	return removed
}

// Clear drops every entry. Counters are kept.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.items = make(map[string]*list.Element)
}

// Len returns the number of stored entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Keys returns the stored keys from most to least recently used.
func (c *Cache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*entry[V]).key)
	}
	return keys
}

// Stats is a point-in-time snapshot of cache usage.
type Stats struct {
	Size      int           `json:"size"`
	Capacity  int           `json:"capacity"`
	Hits      uint64        `json:"hit_count"`
	Misses    uint64        `json:"miss_count"`
	HitRate   float64       `json:"hit_rate"`
	Stale     int           `json:"expired_unswept"`
	Expired   uint64        `json:"expired_total"`
	Evictions uint64        `json:"evictions"`
	TTL       time.Duration `json:"ttl"`
}

// Stats reports size, counters and the number of expired entries not yet swept.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	stale := 0
	if c.ttl > 0 {
		for el := c.order.Front(); el != nil; el = el.Next() {
			if c.isExpired(el.Value.(*entry[V]), now) {
				stale++
			}
		}
	}

	s := Stats{
		Size:      c.order.Len(),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Stale:     stale,
		Expired:   c.expired,
		Evictions: c.evictions,
		TTL:       c.ttl,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

func (c *Cache[V]) isExpired(e *entry[V], now time.Time) bool {
	return c.ttl > 0 && now.Sub(e.storedAt) > c.ttl
}

func (c *Cache[V]) remove(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*entry[V]).key)
}
