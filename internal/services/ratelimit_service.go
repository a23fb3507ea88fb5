package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"meetingmind/internal/models"
)

// RateLimitConfig describes one fixed-window limit.
type RateLimitConfig struct {
	WindowMs  int64  `yaml:"window_ms" json:"window_ms"`
	Max       int    `yaml:"max" json:"max"`
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
}

// RateLimiter enforces fixed-window limits over the KV store. Windows are
// wall-clock buckets that are replaced, never slid: a burst straddling a
// boundary can admit up to 2*max requests in a short span, which is the
// accepted tradeoff for not paying for a sliding log.
//
// Window increments are read-modify-write without an atomic primitive, so
// concurrent requests can under-count slightly. Enforcement is approximate.
type RateLimiter struct {
	store   Store
	metrics *Metrics

	// now is injectable for window tests
	now func() time.Time
}

// NewRateLimiter creates a rate limiter over the given KV store.
func NewRateLimiter(store Store) *RateLimiter {
	return &RateLimiter{
		store:   store,
		metrics: GetMetrics(),
		now:     time.Now,
	}
}

// Check admits or rejects one request for the identifier under the given
// config. Any store error fails open: rate limiting is defense in depth, and
// availability wins when the store is unreachable.
func (rl *RateLimiter) Check(ctx context.Context, identifier string, config RateLimitConfig) models.RateLimitResult {
	key := config.KeyPrefix + ":" + identifier
	now := rl.now().UnixMilli()

	// Store TTL outlives the window slightly so expiry never races the
	// window-boundary check below.
	storeTTL := time.Duration(config.WindowMs)*time.Millisecond + time.Minute

	window, err := rl.loadWindow(ctx, key)
	if err != nil {
		log.Printf("⚠️ [RATELIMIT] Store unavailable for %s, failing open: %v", key, err)
		rl.metrics.RecordRateLimitCheck("failopen")
		return models.RateLimitResult{
			Allowed:   true,
			Limit:     config.Max,
			Remaining: config.Max,
			ResetAt:   now + config.WindowMs,
		}
	}

	if window == nil || now-window.WindowStart >= config.WindowMs {
		// First request, or the previous window expired: start fresh
		fresh := models.RateLimitWindow{Count: 1, WindowStart: now}
		rl.saveWindow(ctx, key, fresh, storeTTL)
		rl.metrics.RecordRateLimitCheck("allowed")
		return models.RateLimitResult{
			Allowed:   true,
			Limit:     config.Max,
			Remaining: config.Max - 1,
			ResetAt:   now + config.WindowMs,
		}
	}

	resetAt := window.WindowStart + config.WindowMs

	if window.Count >= config.Max {
		retryAfter := int((resetAt - now + 999) / 1000)
		if retryAfter < 1 {
			retryAfter = 1
		}
		rl.metrics.RecordRateLimitCheck("rejected")
		return models.RateLimitResult{
			Allowed:    false,
			Limit:      config.Max,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: retryAfter,
		}
	}

	window.Count++
	rl.saveWindow(ctx, key, *window, storeTTL)
	rl.metrics.RecordRateLimitCheck("allowed")
	return models.RateLimitResult{
		Allowed:   true,
		Limit:     config.Max,
		Remaining: config.Max - window.Count,
		ResetAt:   resetAt,
	}
}

// Reset deletes the window record for an identifier, for administrative
// override.
func (rl *RateLimiter) Reset(ctx context.Context, identifier, keyPrefix string) error {
	return rl.store.Delete(ctx, keyPrefix+":"+identifier)
}

func (rl *RateLimiter) loadWindow(ctx context.Context, key string) (*models.RateLimitWindow, error) {
	raw, err := rl.store.Get(ctx, key)
	if err == ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var window models.RateLimitWindow
	if err := json.Unmarshal([]byte(raw), &window); err != nil {
		// Corrupt record: treat as absent and let a fresh window replace it
		return nil, nil
	}
	return &window, nil
}

func (rl *RateLimiter) saveWindow(ctx context.Context, key string, window models.RateLimitWindow, ttl time.Duration) {
	raw, err := json.Marshal(window)
	if err != nil {
		return
	}
	if err := rl.store.Set(ctx, key, string(raw), ttl); err != nil {
		// A failed persist only loosens enforcement for this window
		log.Printf("⚠️ [RATELIMIT] Failed to persist window %s: %v", key, err)
	}
}
