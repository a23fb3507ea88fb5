package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

// erroringStore fails every operation, simulating an unreachable KV store.
type erroringStore struct{}

func (erroringStore) Get(context.Context, string) (string, error) {
	return "", errors.New("store unavailable")
}
func (erroringStore) Set(context.Context, string, string, time.Duration) error {
	return errors.New("store unavailable")
}
func (erroringStore) Delete(context.Context, ...string) error {
	return errors.New("store unavailable")
}

func TestCacheService_GetAfterSet(t *testing.T) {
	cache := NewCacheService(NewMemoryStore())
	ctx := context.Background()

	cache.Set(ctx, "schema:users", map[string]string{"hello": "world"}, time.Hour)

	result := cache.Get(ctx, "schema:users")
	if result.Data == nil {
		t.Fatal("Expected a cache hit immediately after set")
	}
	if result.IsStale {
		t.Error("Fresh entry reported as stale")
	}

	var payload map[string]string
	if err := json.Unmarshal(result.Data, &payload); err != nil {
		t.Fatalf("Failed to unmarshal cached payload: %v", err)
	}
	if payload["hello"] != "world" {
		t.Errorf("Expected payload hello=world, got %v", payload)
	}
}

func TestCacheService_MissOnAbsentKey(t *testing.T) {
	cache := NewCacheService(NewMemoryStore())

	result := cache.Get(context.Background(), "schema:missing")
	if result.Data != nil {
		t.Error("Expected nil data for absent key")
	}
	if result.IsStale {
		t.Error("Absent key must not be reported stale")
	}
}

func TestCacheService_Staleness(t *testing.T) {
	cache := NewCacheService(NewMemoryStore())
	ctx := context.Background()

	now := time.Now()
	cache.now = func() time.Time { return now }

	cache.Set(ctx, "data:users:p1:l50:sid:asc:q", []int{1, 2, 3}, 5*time.Minute)

	// Advance the injected clock past the TTL; the store-level TTL has not
	// fired because the store sees real time
	cache.now = func() time.Time { return now.Add(6 * time.Minute) }

	result := cache.Get(ctx, "data:users:p1:l50:sid:asc:q")
	if result.Data != nil {
		t.Error("Stale entry must read as a miss without opt-in")
	}
	if !result.IsStale {
		t.Error("Expected staleness to be signaled")
	}

	stale := cache.GetStale(ctx, "data:users:p1:l50:sid:asc:q")
	if stale.Data == nil {
		t.Fatal("GetStale should return the stale payload")
	}
	if !stale.IsStale {
		t.Error("GetStale hit must be flagged stale")
	}
}

func TestCacheService_StoreErrorIsMiss(t *testing.T) {
	cache := NewCacheService(erroringStore{})
	ctx := context.Background()

	// Set must not panic or surface the failure
	cache.Set(ctx, "schema:users", "payload", time.Minute)

	result := cache.Get(ctx, "schema:users")
	if result.Data != nil || result.IsStale {
		t.Errorf("Store errors must degrade to a plain miss, got %+v", result)
	}
}

func TestCacheService_InvalidateTable(t *testing.T) {
	cache := NewCacheService(NewMemoryStore())
	ctx := context.Background()

	cache.Set(ctx, cache.SchemaKey("users"), "schema-payload", time.Hour)
	dataKey := cache.DataKey("users", 1, 50, "id", "asc", "")
	cache.Set(ctx, dataKey, "data-payload", 5*time.Minute)

	cache.InvalidateTable(ctx, "users")

	if result := cache.Get(ctx, cache.SchemaKey("users")); result.Data != nil {
		t.Error("Schema key should be gone after invalidation")
	}
	// Data keys are deliberately untouched; they self-heal via TTL
	if result := cache.Get(ctx, dataKey); result.Data == nil {
		t.Error("Data keys must survive table invalidation")
	}
}

func TestCacheService_KeyUniqueness(t *testing.T) {
	cache := NewCacheService(NewMemoryStore())

	base := cache.DataKey("meetings", 1, 50, "id", "asc", "")
	cases := map[string]string{
		"page":   cache.DataKey("meetings", 2, 50, "id", "asc", ""),
		"limit":  cache.DataKey("meetings", 1, 25, "id", "asc", ""),
		"sort":   cache.DataKey("meetings", 1, 50, "date", "asc", ""),
		"order":  cache.DataKey("meetings", 1, 50, "id", "desc", ""),
		"search": cache.DataKey("meetings", 1, 50, "id", "asc", "foo"),
		"table":  cache.DataKey("insights", 1, 50, "id", "asc", ""),
	}
	for name, key := range cases {
		if key == base {
			t.Errorf("Key for differing %s collides with base key %q", name, base)
		}
	}

	if cache.CountKey("meetings", "") == cache.CountKey("meetings", "foo") {
		t.Error("Count keys must fold in the search term")
	}
	if cache.SchemaKey("meetings") == cache.SchemaKey("insights") {
		t.Error("Schema keys must differ per table")
	}
}
