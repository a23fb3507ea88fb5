package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"meetingmind/internal/models"
)

// Config holds all application configuration
type Config struct {
	Port         string
	DatabasePath string // SQLite database file path
	RedisURL     string // empty means in-process KV store (dev mode)

	ProvidersFile string // providers.json path for LLM endpoints

	// Extraction pipeline
	ExtractionCron      string  // cron expression for the scheduled batch
	ExtractionBatchSize int     // meetings per batch run
	ExtractionRPS       float64 // LLM calls per second during a batch

	// Optional YAML file overriding the rate-limit presets
	RateLimitsFile string
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:         getEnv("PORT", "3002"),
		DatabasePath: getEnv("DATABASE_PATH", "meetingmind.db"),
		RedisURL:     getEnv("REDIS_URL", ""),

		ProvidersFile: getEnv("PROVIDERS_FILE", "providers.json"),

		ExtractionCron:      getEnv("EXTRACTION_CRON", "*/15 * * * *"),
		ExtractionBatchSize: getIntEnv("EXTRACTION_BATCH_SIZE", 10),
		ExtractionRPS:       getFloatEnv("EXTRACTION_RPS", 0.5),

		RateLimitsFile: getEnv("RATE_LIMITS_FILE", ""),
	}
}

// LoadProviders loads the LLM provider roster from a JSON file
func LoadProviders(filePath string) (*models.ProvidersConfig, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read providers file: %w", err)
	}

	var config models.ProvidersConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse providers JSON: %w", err)
	}

	return &config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
