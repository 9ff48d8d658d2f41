// Package config loads process configuration from environment variables,
// following the teacher's struct-of-env-vars Load() convention.
package config

import "os"

// Config holds orchestrator process configuration.
type Config struct {
	TranscriptDir      string
	LogLevel           string
	ReputationStore    string // memory|redis|sqlite
	ReputationDSN      string
	IdempotencyStore   string // memory|redis|postgres
	IdempotencyDSN     string
	OtelEnabled        bool
}

// Load reads configuration from the environment, filling in safe
// defaults for local/dev use.
func Load() *Config {
	return &Config{
		TranscriptDir:    getenv("PACT_TRANSCRIPT_DIR", "./transcripts"),
		LogLevel:         getenv("PACT_LOG_LEVEL", "INFO"),
		ReputationStore:  getenv("PACT_REPUTATION_STORE", "memory"),
		ReputationDSN:    getenv("PACT_REPUTATION_DSN", ""),
		IdempotencyStore: getenv("PACT_IDEMPOTENCY_STORE", "memory"),
		IdempotencyDSN:   getenv("PACT_IDEMPOTENCY_DSN", ""),
		OtelEnabled:      os.Getenv("PACT_OTEL_ENABLED") == "true",
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
