package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type summary struct {
	RunID    string  `json:"run_id"`
	Accuracy float64 `json:"accuracy"`
}

func TestMemoryCacheStructRoundTrip(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "model", summary{RunID: "r1", Accuracy: 0.9}, 0))
	var got summary
	require.NoError(t, mc.Get(ctx, "model", &got))
	assert.Equal(t, summary{RunID: "r1", Accuracy: 0.9}, got)

	var s string
	require.NoError(t, mc.Set(ctx, "name", "lineguard", 0))
	require.NoError(t, mc.Get(ctx, "name", &s))
	assert.Equal(t, "lineguard", s)

	require.NoError(t, mc.Delete(ctx, "model"))
	assert.ErrorIs(t, mc.Get(ctx, "model", &got), ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { return now }

	require.NoError(t, mc.Set(ctx, "k", 1, time.Minute))
	now = now.Add(2 * time.Minute)
	var v int
	assert.ErrorIs(t, mc.Get(ctx, "k", &v), ErrCacheMiss)
}

func TestMemoryCacheLock(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { return now }

	ok, err := mc.TryLock(ctx, "train:lock", "run-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = mc.TryLock(ctx, "train:lock", "run-2", time.Minute)
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = mc.TryLock(ctx, "train:lock", "run-2", time.Minute)
	assert.True(t, ok, "expired lock is reclaimable")

	require.NoError(t, mc.Unlock(ctx, "train:lock", "run-1"))
	ok, _ = mc.TryLock(ctx, "train:lock", "run-3", time.Minute)
	assert.False(t, ok, "a stale holder must not release its successor's lock")

	require.NoError(t, mc.Unlock(ctx, "train:lock", "run-2"))
	ok, _ = mc.TryLock(ctx, "train:lock", "run-3", time.Minute)
	assert.True(t, ok)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { now = now.Add(time.Second); return now }

	require.NoError(t, mc.Set(ctx, "a", 1, 0))
	require.NoError(t, mc.Set(ctx, "b", 2, 0))
	var v int
	require.NoError(t, mc.Get(ctx, "a", &v))
	require.NoError(t, mc.Set(ctx, "c", 3, 0))

	assert.NoError(t, mc.Get(ctx, "a", &v))
	assert.ErrorIs(t, mc.Get(ctx, "b", &v), ErrCacheMiss)
	assert.NoError(t, mc.Get(ctx, "c", &v))
}

func TestLayeredCacheFallsBackToShared(t *testing.T) {
	ctx := context.Background()
	shared := NewMemoryCache()
	lc := NewLayeredCache(shared, WithLayeredMemory(10, time.Minute))
	defer lc.Close()

	require.NoError(t, shared.Set(ctx, "model", summary{RunID: "r2"}, 0))
	var got summary
	require.NoError(t, lc.Get(ctx, "model", &got))
	assert.Equal(t, "r2", got.RunID)

	require.NoError(t, lc.Set(ctx, "model", summary{RunID: "r3"}, 0))
	require.NoError(t, shared.Get(ctx, "model", &got))
	assert.Equal(t, "r3", got.RunID)

	ok, err := lc.TryLock(ctx, "l", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = shared.TryLock(ctx, "l", "b", time.Minute)
	assert.False(t, ok)
	require.NoError(t, lc.Unlock(ctx, "l", "a"))
	ok, _ = shared.TryLock(ctx, "l", "b", time.Minute)
	assert.True(t, ok)
}
