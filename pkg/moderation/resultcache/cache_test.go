package resultcache_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/CityPulse/PulseGuard/pkg/moderation"
	"github.com/CityPulse/PulseGuard/pkg/moderation/resultcache"
)

func TestCache_GetSet(t *testing.T) {
	cache := resultcache.New(time.Minute, 10)

	_, ok := cache.Get("missing")
	assert.False(t, ok)

	cache.Set("k", moderation.Result{Allowed: false, Reason: "nope"})
	got, ok := cache.Get("k")
	assert.True(t, ok)
	assert.False(t, got.Allowed)
	assert.Equal(t, "nope", got.Reason)
}

func TestCache_ExpiredEntryIsAbsent(t *testing.T) {
	now := time.Now()
	cache := resultcache.New(time.Minute, 10, resultcache.WithClock(func() time.Time { return now }))

	cache.Set("k", moderation.Result{Allowed: true})

	now = now.Add(59 * time.Second)
	_, ok := cache.Get("k")
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok = cache.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len(), "expired entry should be removed on read")
}

func TestCache_EvictsOldestWhenFull(t *testing.T) {
	now := time.Now()
	cache := resultcache.New(time.Hour, 10, resultcache.WithClock(func() time.Time { return now }))

	for i := 0; i < 10; i++ {
		cache.Set(fmt.Sprintf("k%d", i), moderation.Result{Allowed: true})
		now = now.Add(time.Second)
	}
	assert.Equal(t, 10, cache.Len())

	cache.Set("overflow", moderation.Result{Allowed: true})

	// 20% of 10 entries, oldest first.
	assert.Equal(t, 9, cache.Len())
	_, ok := cache.Get("k0")
	assert.False(t, ok)
	_, ok = cache.Get("k1")
	assert.False(t, ok)
	_, ok = cache.Get("k2")
	assert.True(t, ok)
	_, ok = cache.Get("overflow")
	assert.True(t, ok)
}

func TestCache_OverwriteDoesNotEvict(t *testing.T) {
	cache := resultcache.New(time.Hour, 2)
	cache.Set("a", moderation.Result{Allowed: true})
	cache.Set("b", moderation.Result{Allowed: true})

	cache.Set("a", moderation.Result{Allowed: false})

	assert.Equal(t, 2, cache.Len())
	got, ok := cache.Get("a")
	assert.True(t, ok)
	assert.False(t, got.Allowed)
}
