package cache_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/strata/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCache_HitAndMissCounters(t *testing.T) {
	c := cache.New[string]()

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("a", "A")
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "A", v)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, cache.DefaultCapacity, stats.Capacity)
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := cache.New[int](cache.WithCapacity(3))
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	c.Set("d", 4)

	_, ok := c.Get("a")
	assert.False(t, ok, "oldest key should be evicted")
	for _, k := range []string{"b", "c", "d"} {
		_, ok := c.Get(k)
		assert.True(t, ok, k)
	}
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestCache_AccessProtectsFromEviction(t *testing.T) {
	c := cache.New[int](cache.WithCapacity(3))
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	_, ok := c.Get("a")
	require.True(t, ok)
	c.Set("d", 4)

	_, ok = c.Get("a")
	assert.True(t, ok, "recently read key must survive")
	_, ok = c.Get("b")
	assert.False(t, ok, "b became least recently used")
}

func TestCache_TTLBoundary(t *testing.T) {
	clock := newFakeClock()
	ttl := 10 * time.Second
	c := cache.New[string](cache.WithTTL(ttl), cache.WithClock(clock.Now))

	c.Set("k", "v")

	clock.Advance(ttl - time.Millisecond)
	_, ok := c.Get("k")
	assert.True(t, ok, "hit just before TTL")

	c.Set("k", "v")
	clock.Advance(ttl + time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok, "miss just after TTL")
	assert.Equal(t, 0, c.Len(), "expired entry evicted on access")
}

func TestCache_OverflowDropsExpiredBeforeLive(t *testing.T) {
	clock := newFakeClock()
	c := cache.New[int](cache.WithCapacity(2), cache.WithTTL(time.Minute), cache.WithClock(clock.Now))

	c.Set("old", 1)
	clock.Advance(30 * time.Second)
	c.Set("live", 2)
	clock.Advance(45 * time.Second) // "old" is now expired, "live" is not

	_, _ = c.Get("live")
	c.Set("new", 3)

	assert.ElementsMatch(t, []string{"live", "new"}, c.Keys())
	assert.Equal(t, uint64(0), c.Stats().Evictions)
}

func TestCache_SweepReportsRemoved(t *testing.T) {
	clock := newFakeClock()
	c := cache.New[int](cache.WithTTL(time.Minute), cache.WithClock(clock.Now))

	c.Set("a", 1)
	c.Set("b", 2)
	clock.Advance(2 * time.Minute)
	c.Set("c", 3)

	assert.Equal(t, 2, c.Stats().Stale)
	assert.Equal(t, 2, c.Sweep())
	assert.Equal(t, 0, c.Sweep())
	assert.Equal(t, []string{"c"}, c.Keys())
	assert.Equal(t, 0, c.Stats().Stale)
}

func TestCache_NonPositiveTTLNeverExpires(t *testing.T) {
	clock := newFakeClock()
	c := cache.New[int](cache.WithTTL(0), cache.WithClock(clock.Now))
	c.Set("a", 1)
	clock.Advance(1000 * time.Hour)

	_, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 0, c.Sweep())
}

func TestCache_InvalidatePrefix(t *testing.T) {
	c := cache.New[string]()
	c.Set(cache.Key("task", 1, map[string]any{"x": 1}), "a")
	c.Set(cache.Key("task", 1, map[string]any{"x": 2}), "b")
	c.Set(cache.Key("task", 11, nil), "c")
	c.Set(cache.Key("semantic", 1, nil), "d")

	removed := c.InvalidatePrefix(cache.Prefix("task", 1))
	assert.Equal(t, 2, removed)
	assert.Equal(t, 2, c.Len())

	_, ok := c.Get(cache.Key("task", 11, nil))
	assert.True(t, ok, "task_11 must not match the task_1 prefix")
}

func TestCache_WarmDeleteClear(t *testing.T) {
	c := cache.New[int]()
	c.Warm(map[string]int{"a": 1, "b": 2})
	assert.Equal(t, 2, c.Len())

	assert.True(t, c.Delete("a"))
	assert.False(t, c.Delete("a"))

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := cache.New[int](cache.WithCapacity(50))

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", (g*i)%80)
				c.Set(key, i)
				c.Get(key)
				if i%50 == 0 {
					c.InvalidatePrefix("k1")
					c.Sweep()
				}
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 50)
}

func TestFingerprint_OrderIndependent(t *testing.T) {
	a := map[string]any{"topic": "tests", "n": 3, "nested": map[string]any{"b": 1, "a": 2}}
	b := map[string]any{"nested": map[string]any{"a": 2, "b": 1}, "n": 3, "topic": "tests"}

	assert.Equal(t, cache.Fingerprint(a), cache.Fingerprint(b))
	assert.NotEqual(t, cache.Fingerprint(a), cache.Fingerprint(map[string]any{"topic": "other"}))
	assert.Equal(t, cache.Fingerprint(nil), cache.Fingerprint(map[string]any{}))
	assert.Len(t, cache.Fingerprint(a), 16)
}

func TestKey_Format(t *testing.T) {
	key := cache.Key("semantic", 42, map[string]any{"k": "v"})
	assert.Regexp(t, `^semantic_42_[0-9a-f]{16}$`, key)
}
