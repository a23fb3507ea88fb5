package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"meetingmind/internal/models"
)

// LLMClient is the external LLM capability: given a system and user prompt
// and a JSON schema, produce a JSON object matching the schema. No retry or
// backoff is layered on top — a failed call means zero output for this input.
type LLMClient interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt, schemaName string, schema map[string]any, out any) error
}

// LLMService talks to an OpenAI-compatible /chat/completions endpoint with
// strict structured output. The active provider comes from providers.json and
// can be swapped at runtime when the file changes.
type LLMService struct {
	mu       sync.RWMutex
	provider *models.Provider
	client   *http.Client
	metrics  *Metrics
}

// NewLLMService creates an LLM service from the provider roster. The first
// enabled provider wins.
func NewLLMService(config *models.ProvidersConfig) (*LLMService, error) {
	s := &LLMService{
		client:  &http.Client{Timeout: 60 * time.Second},
		metrics: GetMetrics(),
	}
	if err := s.Reload(config); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload swaps the active provider, used by the providers.json file watcher.
func (s *LLMService) Reload(config *models.ProvidersConfig) error {
	for i := range config.Providers {
		if config.Providers[i].Enabled {
			s.mu.Lock()
			s.provider = &config.Providers[i]
			s.mu.Unlock()
			log.Printf("🤖 [LLM] Active provider: %s (%s)", config.Providers[i].Name, config.Providers[i].Model)
			return nil
		}
	}
	return fmt.Errorf("no enabled provider in configuration")
}

// CompleteJSON sends one structured-output chat completion and unmarshals the
// model's JSON answer into out.
func (s *LLMService) CompleteJSON(ctx context.Context, systemPrompt, userPrompt, schemaName string, schema map[string]any, out any) error {
	s.mu.RLock()
	provider := s.provider
	s.mu.RUnlock()
	if provider == nil {
		return fmt.Errorf("no LLM provider configured")
	}

	requestBody := map[string]any{
		"model": provider.Model,
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"stream":      false,
		"temperature": 0.3, // low temp for consistency
		"response_format": map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   schemaName,
				"strict": true,
				"schema": schema,
			},
		},
	}

	reqBody, err := json.Marshal(requestBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", provider.BaseURL+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if provider.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+provider.APIKey)
	}

	start := time.Now()
	resp, err := s.client.Do(httpReq)
	if s.metrics != nil {
		s.metrics.LLMRequestLatency.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		s.recordError()
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		s.recordError()
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		s.recordError()
		log.Printf("⚠️ [LLM] API error: %s", string(body))
		return fmt.Errorf("API error (status %d)", resp.StatusCode)
	}

	var apiResponse struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &apiResponse); err != nil {
		return fmt.Errorf("failed to parse API response: %w", err)
	}
	if len(apiResponse.Choices) == 0 {
		return fmt.Errorf("no choices in response")
	}

	content := apiResponse.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), out); err != nil {
		log.Printf("⚠️ [LLM] Failed to parse structured output: %v (response length: %d bytes)", err, len(content))
		return fmt.Errorf("failed to parse structured output: %w", err)
	}
	return nil
}

func (s *LLMService) recordError() {
	if s.metrics != nil {
		s.metrics.LLMRequestErrors.Inc()
	}
}
