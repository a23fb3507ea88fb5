package models

// RateLimitWindow is the fixed-window counter record stored in the KV store,
// one per identifier/endpoint pair. The window is replaced, not slid, once it
// expires.
type RateLimitWindow struct {
	Count       int   `json:"count"`
	WindowStart int64 `json:"window_start"` // epoch millis
}

// RateLimitResult is the verdict for a single request.
type RateLimitResult struct {
	Allowed   bool `json:"allowed"`
	Limit     int  `json:"limit"`
	Remaining int  `json:"remaining"`
	// ResetAt is epoch millis; RetryAfter is whole seconds, set when rejected.
	ResetAt    int64 `json:"reset_at"`
	RetryAfter int   `json:"retry_after,omitempty"`
}
