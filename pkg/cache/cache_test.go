package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type latest struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "a", latest{Label: "WALKING", Score: 0.9}, time.Minute))

	var got latest
	require.NoError(t, mc.Get(ctx, "a", &got))
	assert.Equal(t, latest{Label: "WALKING", Score: 0.9}, got)

	var s string
	require.NoError(t, mc.Set(ctx, "s", "plain", time.Minute))
	require.NoError(t, mc.Get(ctx, "s", &s))
	assert.Equal(t, "plain", s)

	assert.ErrorIs(t, mc.Get(ctx, "missing", &got), ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryCleanup(5 * time.Millisecond))
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "a", "x", 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	var s string
	assert.ErrorIs(t, mc.Get(ctx, "a", &s), ErrCacheMiss)
	assert.Equal(t, 0, mc.Len())
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "a", "1", time.Minute))
	require.NoError(t, mc.Set(ctx, "b", "2", time.Minute))

	var s string
	require.NoError(t, mc.Get(ctx, "a", &s)) // a is now most recent
	require.NoError(t, mc.Set(ctx, "c", "3", time.Minute))

	assert.ErrorIs(t, mc.Get(ctx, "b", &s), ErrCacheMiss)
	assert.NoError(t, mc.Get(ctx, "a", &s))
	assert.NoError(t, mc.Get(ctx, "c", &s))
	assert.Equal(t, 2, mc.Len())
}

func TestMemoryCacheTryLock(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	ok, err := mc.TryLock(ctx, "dedupe", 20*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = mc.TryLock(ctx, "dedupe", 20*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)

	time.Sleep(30 * time.Millisecond)
	ok, err = mc.TryLock(ctx, "dedupe", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired lock can be taken again")

	require.NoError(t, mc.Unlock(ctx, "dedupe"))
	ok, _ = mc.TryLock(ctx, "dedupe", time.Minute)
	assert.True(t, ok)
}

func TestLayeredCacheReadsThroughAndFillsL1(t *testing.T) {
	ctx := context.Background()
	remote := NewMemoryCache()
	lc := NewLayeredCache(remote, WithLayeredMemoryTTL(time.Minute))
	defer lc.Close()

	require.NoError(t, remote.Set(ctx, "k", latest{Label: "SITTING", Score: 0.7}, time.Minute))

	var got latest
	require.NoError(t, lc.Get(ctx, "k", &got))
	assert.Equal(t, "SITTING", got.Label)

	// served from L1 after the remote entry is gone
	require.NoError(t, remote.Delete(ctx, "k"))
	got = latest{}
	require.NoError(t, lc.Get(ctx, "k", &got))
	assert.Equal(t, "SITTING", got.Label)

	require.NoError(t, lc.Delete(ctx, "k"))
	assert.ErrorIs(t, lc.Get(ctx, "k", &got), ErrCacheMiss)
}

func TestLayeredCacheWritesThrough(t *testing.T) {
	ctx := context.Background()
	remote := NewMemoryCache()
	lc := NewLayeredCache(remote)
	defer lc.Close()

	require.NoError(t, lc.Set(ctx, "k", latest{Label: "LAYING"}, time.Minute))

	var got latest
	require.NoError(t, remote.Get(ctx, "k", &got))
	assert.Equal(t, "LAYING", got.Label)

	ok, err := lc.TryLock(ctx, "lock", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = remote.TryLock(ctx, "lock", time.Minute)
	assert.False(t, ok, "layered locks live in the remote layer")
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "activity:latest:/dev/1", GenerateKey("activity", "latest", "/dev/1"))
	assert.Len(t, HashKey("a", "b"), 64)
	assert.NotEqual(t, HashKey("ab", ""), HashKey("a", "b"))
}
