package middleware

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gopkg.in/yaml.v3"

	"meetingmind/internal/services"
)

// RateLimitPresets holds the per-endpoint-class limits. These are
// configuration, not separate algorithms: every preset runs the same
// fixed-window check.
type RateLimitPresets struct {
	// Standard covers the read-heavy browse endpoints
	Standard services.RateLimitConfig `yaml:"standard"`
	// Strict covers admin and mutation endpoints
	Strict services.RateLimitConfig `yaml:"strict"`
	// Search covers the cache-bypassing search path
	Search services.RateLimitConfig `yaml:"search"`
	// Export covers the expensive workbook export
	Export services.RateLimitConfig `yaml:"export"`
}

// DefaultRateLimitPresets returns production-safe defaults
func DefaultRateLimitPresets() *RateLimitPresets {
	return &RateLimitPresets{
		Standard: services.RateLimitConfig{WindowMs: 60_000, Max: 60, KeyPrefix: "rl:standard"},
		Strict:   services.RateLimitConfig{WindowMs: 60_000, Max: 10, KeyPrefix: "rl:strict"},
		Search:   services.RateLimitConfig{WindowMs: 60_000, Max: 30, KeyPrefix: "rl:search"},
		Export:   services.RateLimitConfig{WindowMs: 3_600_000, Max: 10, KeyPrefix: "rl:export"},
	}
}

// LoadRateLimitPresets loads defaults, then an optional YAML preset file,
// then environment overrides for the per-window maximums.
func LoadRateLimitPresets(yamlPath string) *RateLimitPresets {
	presets := DefaultRateLimitPresets()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			log.Printf("⚠️ [RATE-LIMIT] Cannot read presets file %s: %v", yamlPath, err)
		} else if err := yaml.Unmarshal(data, presets); err != nil {
			log.Printf("⚠️ [RATE-LIMIT] Cannot parse presets file %s: %v", yamlPath, err)
		} else {
			log.Printf("📋 [RATE-LIMIT] Presets loaded from %s", yamlPath)
		}
	}

	applyEnvOverride("RATE_LIMIT_STANDARD", &presets.Standard.Max)
	applyEnvOverride("RATE_LIMIT_STRICT", &presets.Strict.Max)
	applyEnvOverride("RATE_LIMIT_SEARCH", &presets.Search.Max)
	applyEnvOverride("RATE_LIMIT_EXPORT", &presets.Export.Max)

	// Key prefixes are not user-tunable; restore them if a preset file
	// zeroed them out
	defaults := DefaultRateLimitPresets()
	if presets.Standard.KeyPrefix == "" {
		presets.Standard.KeyPrefix = defaults.Standard.KeyPrefix
	}
	if presets.Strict.KeyPrefix == "" {
		presets.Strict.KeyPrefix = defaults.Strict.KeyPrefix
	}
	if presets.Search.KeyPrefix == "" {
		presets.Search.KeyPrefix = defaults.Search.KeyPrefix
	}
	if presets.Export.KeyPrefix == "" {
		presets.Export.KeyPrefix = defaults.Export.KeyPrefix
	}

	return presets
}

func applyEnvOverride(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*target = n
		}
	}
}

// RateLimit wraps a route with the fixed-window limiter. The standard
// X-RateLimit-* headers are set on every response; rejected requests
// short-circuit with 429 and Retry-After.
func RateLimit(limiter *services.RateLimiter, config services.RateLimitConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identifier := clientIdentifier(c)

		result := limiter.Check(c.Context(), identifier, config)

		c.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Set("X-RateLimit-Reset", fmt.Sprintf("%d", result.ResetAt))

		if !result.Allowed {
			log.Printf("🚫 [RATE-LIMIT] %s limit reached for %s on %s", config.KeyPrefix, identifier, c.Path())
			c.Set("Retry-After", strconv.Itoa(result.RetryAfter))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success":    false,
				"error":      "Too many requests",
				"retryAfter": result.RetryAfter,
			})
		}

		return c.Next()
	}
}

// clientIdentifier derives the caller identity for rate limiting:
// CF-Connecting-IP when fronted by Cloudflare, the first X-Forwarded-For
// entry behind other proxies, and the literal "unknown" otherwise.
func clientIdentifier(c *fiber.Ctx) string {
	if ip := c.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	if forwarded := c.Get("X-Forwarded-For"); forwarded != "" {
		if first := strings.TrimSpace(strings.Split(forwarded, ",")[0]); first != "" {
			return first
		}
	}
	return "unknown"
}
