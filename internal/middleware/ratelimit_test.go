package middleware

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"meetingmind/internal/services"
)

func newLimitedApp(max int) *fiber.App {
	limiter := services.NewRateLimiter(services.NewMemoryStore())
	config := services.RateLimitConfig{WindowMs: 60_000, Max: max, KeyPrefix: "rl:test"}

	app := fiber.New()
	app.Get("/ping", RateLimit(limiter, config), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"success": true})
	})
	return app
}

func TestRateLimit_HeadersOnSuccess(t *testing.T) {
	app := newLimitedApp(5)

	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("CF-Connecting-IP", "1.2.3.4")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-RateLimit-Limit"); got != "5" {
		t.Errorf("Expected X-RateLimit-Limit=5, got %q", got)
	}
	if got := resp.Header.Get("X-RateLimit-Remaining"); got != "4" {
		t.Errorf("Expected X-RateLimit-Remaining=4, got %q", got)
	}
	if resp.Header.Get("X-RateLimit-Reset") == "" {
		t.Error("Expected X-RateLimit-Reset to be set")
	}
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	app := newLimitedApp(2)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("GET", "/ping", nil)
		req.Header.Set("CF-Connecting-IP", "1.2.3.4")
		r, err := app.Test(req)
		if err != nil {
			t.Fatalf("Request %d failed: %v", i+1, err)
		}
		if r.StatusCode != fiber.StatusOK {
			t.Fatalf("Request %d: expected 200, got %d", i+1, r.StatusCode)
		}
	}

	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("CF-Connecting-IP", "1.2.3.4")
	r, err := app.Test(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if r.StatusCode != fiber.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", r.StatusCode)
	}
	if r.Header.Get("Retry-After") == "" {
		t.Error("Expected Retry-After on rejection")
	}
	if got := r.Header.Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("Expected X-RateLimit-Remaining=0, got %q", got)
	}

	body, _ := io.ReadAll(r.Body)
	var payload struct {
		Success    bool   `json:"success"`
		Error      string `json:"error"`
		RetryAfter int    `json:"retryAfter"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("Failed to parse 429 body: %v", err)
	}
	if payload.Success {
		t.Error("429 body must report success=false")
	}
	if payload.Error != "Too many requests" {
		t.Errorf("Unexpected error message %q", payload.Error)
	}
	if payload.RetryAfter < 1 {
		t.Errorf("Expected retryAfter >= 1, got %d", payload.RetryAfter)
	}
}

func TestRateLimit_IdentifiersAreIndependent(t *testing.T) {
	app := newLimitedApp(1)

	first := httptest.NewRequest("GET", "/ping", nil)
	first.Header.Set("CF-Connecting-IP", "1.2.3.4")
	if r, _ := app.Test(first); r.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected first caller admitted, got %d", r.StatusCode)
	}

	second := httptest.NewRequest("GET", "/ping", nil)
	second.Header.Set("CF-Connecting-IP", "5.6.7.8")
	if r, _ := app.Test(second); r.StatusCode != fiber.StatusOK {
		t.Errorf("Expected a different caller to get its own window, got %d", r.StatusCode)
	}

	repeat := httptest.NewRequest("GET", "/ping", nil)
	repeat.Header.Set("CF-Connecting-IP", "1.2.3.4")
	if r, _ := app.Test(repeat); r.StatusCode != fiber.StatusTooManyRequests {
		t.Errorf("Expected the first caller's window to be exhausted, got %d", r.StatusCode)
	}
}

func TestClientIdentifier(t *testing.T) {
	app := fiber.New()
	var got string
	app.Get("/", func(c *fiber.Ctx) error {
		got = clientIdentifier(c)
		return c.SendString("ok")
	})

	// Cloudflare header wins over X-Forwarded-For
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("CF-Connecting-IP", "9.9.9.9")
	req.Header.Set("X-Forwarded-For", "1.1.1.1, 2.2.2.2")
	app.Test(req)
	if got != "9.9.9.9" {
		t.Errorf("Expected CF-Connecting-IP to win, got %q", got)
	}

	// First X-Forwarded-For entry otherwise
	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-For", " 1.1.1.1 , 2.2.2.2")
	app.Test(req)
	if got != "1.1.1.1" {
		t.Errorf("Expected first X-Forwarded-For entry, got %q", got)
	}

	// No proxy headers at all
	req = httptest.NewRequest("GET", "/", nil)
	app.Test(req)
	if got != "unknown" {
		t.Errorf("Expected fallback identifier, got %q", got)
	}
}

func TestLoadRateLimitPresets_Defaults(t *testing.T) {
	presets := LoadRateLimitPresets("")

	if presets.Standard.Max != 60 || presets.Standard.WindowMs != 60_000 {
		t.Errorf("Unexpected standard preset: %+v", presets.Standard)
	}
	if presets.Strict.Max != 10 {
		t.Errorf("Unexpected strict preset: %+v", presets.Strict)
	}
	if presets.Search.Max != 30 {
		t.Errorf("Unexpected search preset: %+v", presets.Search)
	}
	if presets.Export.Max != 10 || presets.Export.WindowMs != 3_600_000 {
		t.Errorf("Unexpected export preset: %+v", presets.Export)
	}
	for _, prefix := range []string{presets.Standard.KeyPrefix, presets.Strict.KeyPrefix, presets.Search.KeyPrefix, presets.Export.KeyPrefix} {
		if prefix == "" {
			t.Error("Every preset must carry a key prefix")
		}
	}
}

func TestLoadRateLimitPresets_EnvOverride(t *testing.T) {
	t.Setenv("RATE_LIMIT_STANDARD", "120")
	t.Setenv("RATE_LIMIT_EXPORT", "not-a-number")

	presets := LoadRateLimitPresets("")
	if presets.Standard.Max != 120 {
		t.Errorf("Expected env override to apply, got %d", presets.Standard.Max)
	}
	if presets.Export.Max != 10 {
		t.Errorf("Malformed override must be ignored, got %d", presets.Export.Max)
	}
}
