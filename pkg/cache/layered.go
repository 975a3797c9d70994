package cache

import (
	"context"
	"time"
)

// LayeredCache keeps a short-lived in-process copy (L1) in front of a shared
// Service (L2). Locks always go to L2.
type LayeredCache struct {
	mem    *MemoryCache
	shared Service
	memTTL time.Duration
}

var _ Service = (*LayeredCache)(nil)

// NewLayeredCache creates a layered cache over shared.
func NewLayeredCache(shared Service, opts ...LayeredOption) *LayeredCache {
	cfg := &LayeredConfig{
		MemoryMaxSize: 1000,
		MemoryTTL:     30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &LayeredCache{
		mem:    NewMemoryCache(WithMemoryMaxSize(cfg.MemoryMaxSize)),
		shared: shared,
		memTTL: cfg.MemoryTTL,
	}
}

func (lc *LayeredCache) l1TTL(expiration time.Duration) time.Duration {
	if expiration > 0 && expiration < lc.memTTL {
		return expiration
	}
	return lc.memTTL
}

// Set writes through: L2 first, then L1.
func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := lc.shared.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	_ = lc.mem.Set(ctx, key, value, lc.l1TTL(expiration))
	return nil
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := lc.mem.Get(ctx, key, dest); err == nil {
		return nil
	}
	if err := lc.shared.Get(ctx, key, dest); err != nil {
		return err
	}
	_ = lc.mem.Set(ctx, key, dest, lc.memTTL)
	return nil
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.mem.Delete(ctx, keys...)
	return lc.shared.Delete(ctx, keys...)
}

func (lc *LayeredCache) TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return lc.shared.TryLock(ctx, key, token, ttl)
}

func (lc *LayeredCache) Unlock(ctx context.Context, key, token string) error {
	return lc.shared.Unlock(ctx, key, token)
}

func (lc *LayeredCache) Ping(ctx context.Context) error {
	return lc.shared.Ping(ctx)
}

// Close closes both layers.
func (lc *LayeredCache) Close() error {
	_ = lc.mem.Close()
	return lc.shared.Close()
}
