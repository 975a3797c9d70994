package cache

import (
	"context"
	"errors"
	"time"
)

var (
	ErrCacheMiss = errors.New("cache: key not found")
)

// Service is the key/value store shared by the pipelines: the cached model
// summary and the training lock live here. Values are JSON-encoded.
//
// A lock is owned by the token that took it. Unlock with any other token is
// a no-op, so a holder whose lock expired cannot release its successor's.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, token string) error
	Ping(ctx context.Context) error
	Close() error
}
