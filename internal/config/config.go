// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	APIBaseURL   string
	WSBaseURL    string
	StateDBPath  string
	HTTPTimeout  time.Duration
	PollInterval time.Duration
	PollTimeout  time.Duration
	PageSize     int
	LogLevel     string
	Stub         StubConfig
}

// StubConfig configures the local stub server.
type StubConfig struct {
	Port           string
	JWTSecret      string
	AccessTokenTTL time.Duration
	Typing         bool // emit typing indicator frames on the chat stream
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		APIBaseURL:   getEnv("QUENTO_API_URL", "http://localhost:8080/api/v1"),
		WSBaseURL:    getEnv("QUENTO_WS_URL", "ws://localhost:8080/api/v1/ws"),
		StateDBPath:  getEnv("QUENTO_STATE_DB", "./data/quento.db"),
		HTTPTimeout:  getEnvDuration("QUENTO_HTTP_TIMEOUT", 30*time.Second),
		PollInterval: getEnvDuration("QUENTO_POLL_INTERVAL", 2*time.Second),
		PollTimeout:  getEnvDuration("QUENTO_POLL_TIMEOUT", 3*time.Minute),
		PageSize:     getEnvInt("QUENTO_PAGE_SIZE", 20),
		LogLevel:     getEnv("QUENTO_LOG_LEVEL", "info"),
		Stub: StubConfig{
			Port:           getEnv("PORT", "8080"),
			JWTSecret:      getEnv("QUENTO_STUB_JWT_SECRET", "quento-stub-secret"),
			AccessTokenTTL: getEnvDuration("QUENTO_STUB_TOKEN_TTL", 15*time.Minute),
			Typing:         getEnvBool("QUENTO_STUB_TYPING", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("QUENTO_API_URL cannot be empty")
	}
	if c.WSBaseURL == "" {
		return fmt.Errorf("QUENTO_WS_URL cannot be empty")
	}
	if c.StateDBPath == "" {
		return fmt.Errorf("QUENTO_STATE_DB cannot be empty")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("QUENTO_POLL_INTERVAL must be > 0")
	}
	if c.PollTimeout <= 0 {
		return fmt.Errorf("QUENTO_POLL_TIMEOUT must be > 0")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("QUENTO_PAGE_SIZE must be > 0")
	}
	if c.Stub.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
