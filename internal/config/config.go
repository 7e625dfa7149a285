// Package config holds process configuration derived from environment
// variables, with optional .env file support.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the bridge client configuration.
type Config struct {
	// Bridge endpoint.
	UnityHost string
	UnityPort int

	// Transport timeouts and framing.
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	BufferSize     int

	// Response cache limits.
	CacheMaxMB      int
	CacheExpiration time.Duration

	// Large-response divert heuristic.
	TokenThreshold int
	BytesPerToken  int

	// Observability.
	LogLevel    string
	LogPretty   bool
	MetricsAddr string
}

// Load reads the environment (after loading a .env file if one is
// present) and validates the result. Configuration errors here are
// fatal to the process; per-request errors never are.
func Load() (*Config, error) {
	// Missing .env is fine; real env vars win either way.
	_ = godotenv.Load()

	cfg := &Config{
		UnityHost:       getEnv("UNITY_HOST", "localhost"),
		UnityPort:       getEnvAsInt("UNITY_PORT", 6400),
		ConnectTimeout:  getEnvAsMillis("CONNECT_TIMEOUT_MS", 5000),
		ReadTimeout:     getEnvAsMillis("READ_TIMEOUT_MS", 30000),
		BufferSize:      getEnvAsInt("BUFFER_SIZE", 16*1024),
		CacheMaxMB:      getEnvAsInt("CACHE_MAX_MB", 100),
		CacheExpiration: time.Duration(getEnvAsInt("CACHE_EXPIRATION_MIN", 30)) * time.Minute,
		TokenThreshold:  getEnvAsInt("TOKEN_THRESHOLD", 15000),
		BytesPerToken:   getEnvAsInt("BYTES_PER_TOKEN", 4),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogPretty:       getEnvAsBool("LOG_PRETTY", false),
		MetricsAddr:     getEnv("METRICS_ADDR", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.UnityHost) == "" {
		return fmt.Errorf("UNITY_HOST must not be empty")
	}
	if c.UnityPort <= 0 || c.UnityPort > 65535 {
		return fmt.Errorf("UNITY_PORT %d out of range", c.UnityPort)
	}
	if c.ConnectTimeout <= 0 || c.ReadTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("BUFFER_SIZE must be positive")
	}
	if c.CacheMaxMB <= 0 {
		return fmt.Errorf("CACHE_MAX_MB must be positive")
	}
	if c.TokenThreshold <= 0 || c.BytesPerToken <= 0 {
		return fmt.Errorf("token estimation settings must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvAsBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return b
}

func getEnvAsMillis(key string, fallback int) time.Duration {
	return time.Duration(getEnvAsInt(key, fallback)) * time.Millisecond
}
