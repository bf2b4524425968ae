package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	Port           string
	DatabaseURL    string
	RedisURL       string
	MaxBackoff     time.Duration
	ConfigCacheTTL time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	port := getEnv("PORT", "8080")
	dbURL := getEnv("DATABASE_URL", "")
	redisURL := getEnv("REDIS_URL", "")
	maxBackoffSecs := getEnvInt("MAX_BACKOFF_SECONDS", 30)
	cacheTTLSecs := getEnvInt("CONFIG_CACHE_TTL_SECONDS", 0)

	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if maxBackoffSecs < 1 {
		maxBackoffSecs = 1
	}

	return &Config{
		Port:           port,
		DatabaseURL:    dbURL,
		RedisURL:       redisURL,
		MaxBackoff:     time.Duration(maxBackoffSecs) * time.Second,
		ConfigCacheTTL: time.Duration(cacheTTLSecs) * time.Second,
	}, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}
