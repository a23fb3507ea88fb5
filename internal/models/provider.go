package models

// Provider is one OpenAI-compatible LLM endpoint from providers.json.
type Provider struct {
	Name    string `json:"name"`
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key,omitempty"` // omit from responses
	Model   string `json:"model"`
	Enabled bool   `json:"enabled"`
}

// ProvidersConfig is the root shape of providers.json.
type ProvidersConfig struct {
	Providers []Provider `json:"providers"`
}
