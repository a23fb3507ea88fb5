package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
)

// Cache TTLs per resource kind. Data pages are short-lived because table
// invalidation cannot enumerate every issued data key (see InvalidateTable).
const (
	TableListTTL = 1 * time.Hour
	SchemaTTL    = 1 * time.Hour
	TableDataTTL = 5 * time.Minute
	CountTTL     = 10 * time.Minute
	DistinctTTL  = 30 * time.Minute
)

// CacheService wraps the KV store with typed get/set/invalidate operations.
// A cache failure must never turn into a user-facing failure: store errors
// degrade to misses on read and are swallowed on write.
type CacheService struct {
	store   Store
	metrics *Metrics

	// now is injectable for staleness tests
	now func() time.Time
}

// CacheResult is the outcome of a cache lookup. IsStale set with nil Data
// means a stored entry existed but was past its TTL — callers treat it as a
// miss but may use the signal for stale-while-revalidate later.
type CacheResult struct {
	Data    json.RawMessage
	IsStale bool
}

// cacheEntry is the stored envelope. The stored timestamp and the store's
// native TTL both enforce expiry.
type cacheEntry struct {
	Data       json.RawMessage `json:"data"`
	StoredAt   int64           `json:"stored_at"` // epoch millis
	TTLSeconds int             `json:"ttl_seconds"`
}

// NewCacheService creates a cache service over the given KV store.
func NewCacheService(store Store) *CacheService {
	return &CacheService{
		store:   store,
		metrics: GetMetrics(),
		now:     time.Now,
	}
}

// Get reads a cached entry. Absent key, store error or stale entry all
// return nil Data; IsStale distinguishes the stale case.
func (s *CacheService) Get(ctx context.Context, key string) CacheResult {
	return s.get(ctx, key, false)
}

// GetStale reads a cached entry, accepting stale data. A stale hit returns
// the payload with IsStale set.
func (s *CacheService) GetStale(ctx context.Context, key string) CacheResult {
	return s.get(ctx, key, true)
}

func (s *CacheService) get(ctx context.Context, key string, allowStale bool) CacheResult {
	raw, err := s.store.Get(ctx, key)
	if err != nil {
		if err != ErrKeyNotFound {
			log.Printf("⚠️ [CACHE] Get failed for %s: %v", key, err)
			s.metrics.RecordCacheError()
		}
		s.metrics.RecordCacheLookup("miss")
		return CacheResult{}
	}

	var entry cacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		log.Printf("⚠️ [CACHE] Corrupt entry for %s: %v", key, err)
		s.metrics.RecordCacheLookup("miss")
		return CacheResult{}
	}

	age := s.now().UnixMilli() - entry.StoredAt
	if age > int64(entry.TTLSeconds)*1000 {
		s.metrics.RecordCacheLookup("stale")
		if allowStale {
			return CacheResult{Data: entry.Data, IsStale: true}
		}
		return CacheResult{IsStale: true}
	}

	s.metrics.RecordCacheLookup("hit")
	return CacheResult{Data: entry.Data}
}

// Set serializes data and writes it with both an embedded timestamp and the
// store's native TTL. Write failures are logged and swallowed: the request
// that produced the data already succeeded.
func (s *CacheService) Set(ctx context.Context, key string, data any, ttl time.Duration) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Printf("⚠️ [CACHE] Failed to marshal payload for %s: %v", key, err)
		return
	}

	entry := cacheEntry{
		Data:       payload,
		StoredAt:   s.now().UnixMilli(),
		TTLSeconds: int(ttl.Seconds()),
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		log.Printf("⚠️ [CACHE] Failed to marshal entry for %s: %v", key, err)
		return
	}

	if err := s.store.Set(ctx, key, string(raw), ttl); err != nil {
		log.Printf("⚠️ [CACHE] Set failed for %s: %v", key, err)
		s.metrics.RecordCacheError()
		return
	}
	s.metrics.RecordCacheWrite()
}

// InvalidateTable clears the cached schema entry for a table. Data-listing
// keys are NOT enumerated here — there is no key index to walk — so paginated
// and sorted pages self-heal via their short TTL instead. Invalidation is
// best-effort by design.
func (s *CacheService) InvalidateTable(ctx context.Context, table string) {
	if err := s.store.Delete(ctx, s.SchemaKey(table)); err != nil {
		log.Printf("⚠️ [CACHE] Invalidate failed for table %s: %v", table, err)
		s.metrics.RecordCacheError()
	}
}

// TableListKey is the cache key for the table roster.
func (s *CacheService) TableListKey() string {
	return "tables:list"
}

// SchemaKey is the cache key for one table's column metadata.
func (s *CacheService) SchemaKey(table string) string {
	return "schema:" + table
}

// DataKey folds every query-shape parameter into the key so distinct shapes
// never collide.
func (s *CacheService) DataKey(table string, page, limit int, sortBy, sortOrder, search string) string {
	return strings.Join([]string{
		"data", table,
		fmt.Sprintf("p%d", page),
		fmt.Sprintf("l%d", limit),
		"s" + sortBy,
		sortOrder,
		"q" + search,
	}, ":")
}

// CountKey caches row counts separately from page payloads so repeated
// pagination does not recompute COUNT(*).
func (s *CacheService) CountKey(table, search string) string {
	return "count:" + table + ":q" + search
}

// DistinctKey is the cache key for a column's distinct values.
func (s *CacheService) DistinctKey(table, column string) string {
	return "distinct:" + table + ":" + column
}
