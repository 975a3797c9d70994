package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type memoryItem struct {
	data     []byte
	expireAt time.Time
	access   time.Time
}

func (m *memoryItem) expired(now time.Time) bool {
	return !m.expireAt.IsZero() && now.After(m.expireAt)
}

// MemoryCache implements Service in process with LRU eviction. It is the
// single-instance fallback when Redis is not configured.
type MemoryCache struct {
	mu      sync.Mutex
	data    map[string]*memoryItem
	maxSize int
	ticker  *time.Ticker
	done    chan struct{}
	once    sync.Once
	now     func() time.Time
}

var _ Service = (*MemoryCache)(nil)

// NewMemoryCache creates an in-memory cache.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{
		MaxSize:         1000,
		CleanupInterval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	mc := &MemoryCache{
		data:    make(map[string]*memoryItem),
		maxSize: cfg.MaxSize,
		ticker:  time.NewTicker(cfg.CleanupInterval),
		done:    make(chan struct{}),
		now:     time.Now,
	}
	go mc.cleanupExpired()
	return mc
}

// Set stores value; expiration <= 0 keeps it until evicted.
func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	now := mc.now()
	if _, ok := mc.data[key]; !ok && len(mc.data) >= mc.maxSize {
		mc.evictLRU()
	}
	item := &memoryItem{data: data, access: now}
	if expiration > 0 {
		item.expireAt = now.Add(expiration)
	}
	mc.data[key] = item
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	now := mc.now()
	item, ok := mc.data[key]
	if ok && item.expired(now) {
		delete(mc.data, key)
		ok = false
	}
	if !ok {
		mc.mu.Unlock()
		return ErrCacheMiss
	}
	item.access = now
	data := item.data
	mc.mu.Unlock()

	return json.Unmarshal(data, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		delete(mc.data, key)
	}
	return nil
}

// TryLock sets key to token only when it is absent or expired.
func (mc *MemoryCache) TryLock(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	now := mc.now()
	if item, ok := mc.data[key]; ok && !item.expired(now) {
		return false, nil
	}
	item := &memoryItem{data: []byte(token), access: now}
	if ttl > 0 {
		item.expireAt = now.Add(ttl)
	}
	mc.data[key] = item
	return true, nil
}

// Unlock deletes key only while it still holds token.
func (mc *MemoryCache) Unlock(_ context.Context, key, token string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if item, ok := mc.data[key]; ok && string(item.data) == token {
		delete(mc.data, key)
	}
	return nil
}

func (mc *MemoryCache) Ping(context.Context) error { return nil }

// Close stops the cleanup goroutine.
func (mc *MemoryCache) Close() error {
	mc.once.Do(func() {
		mc.ticker.Stop()
		close(mc.done)
	})
	return nil
}

func (mc *MemoryCache) evictLRU() {
	var oldestKey string
	var oldest time.Time
	for key, item := range mc.data {
		if oldestKey == "" || item.access.Before(oldest) {
			oldestKey, oldest = key, item.access
		}
	}
	if oldestKey != "" {
		delete(mc.data, oldestKey)
	}
}

func (mc *MemoryCache) cleanupExpired() {
	for {
		select {
		case <-mc.done:
			return
		case <-mc.ticker.C:
			mc.mu.Lock()
			now := mc.now()
			for key, item := range mc.data {
				if item.expired(now) {
					delete(mc.data, key)
				}
			}
			mc.mu.Unlock()
		}
	}
}
