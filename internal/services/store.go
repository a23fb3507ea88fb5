package services

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned by Store.Get when a key is absent or expired.
var ErrKeyNotFound = errors.New("key not found")

// Store is the durable string-keyed KV store behind the cache and rate-limit
// layers. Redis in production, an in-process store in dev and tests.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}
