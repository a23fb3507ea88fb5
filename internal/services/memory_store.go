package services

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore is the in-process Store implementation used when REDIS_URL is
// not configured (single-instance dev deployments) and in unit tests. Backed
// by go-cache so TTL expiry behaves like the Redis path.
type MemoryStore struct {
	cache *gocache.Cache
}

// NewMemoryStore creates an in-process KV store with background eviction.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cache: gocache.New(gocache.NoExpiration, 5*time.Minute),
	}
}

// Get retrieves a value by key
func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	value, found := s.cache.Get(key)
	if !found {
		return "", ErrKeyNotFound
	}
	str, ok := value.(string)
	if !ok {
		return "", ErrKeyNotFound
	}
	return str, nil
}

// Set sets a key-value pair with expiration
func (s *MemoryStore) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	s.cache.Set(key, value, ttl)
	return nil
}

// Delete removes one or more keys
func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		s.cache.Delete(key)
	}
	return nil
}
