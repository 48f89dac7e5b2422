package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the health-log summary service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	// Timezone names the single reference calendar used for day bucketing.
	Timezone string
	Location *time.Location

	LogLevel string
	LogJSON  bool

	DatabaseURL string

	JWTSecret string
	JWTIssuer string

	AdminToken       string
	AdminConcurrency int
	AdminMaxAttempts int
	AdminRetryBase   time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "healthlog"),
		Timezone:         envOrDefault("APP_TIMEZONE", "UTC"),
		LogLevel:         envOrDefault("APP_LOG_LEVEL", "info"),
		LogJSON:          false,
		DatabaseURL:      stringsTrimSpace("DATABASE_URL"),
		JWTSecret:        stringsTrimSpace("AUTH_JWT_SECRET"),
		JWTIssuer:        stringsTrimSpace("AUTH_JWT_ISSUER"),
		AdminToken:       stringsTrimSpace("ADMIN_TOKEN"),
		AdminConcurrency: 8,
		AdminMaxAttempts: 3,
		AdminRetryBase:   100 * time.Millisecond,
		ShutdownTimeout:  15 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.LogJSON, err = boolFromEnv("APP_LOG_JSON", cfg.LogJSON)
	if err != nil {
		return Config{}, err
	}
	cfg.AdminConcurrency, err = intFromEnv("ADMIN_CONCURRENCY", cfg.AdminConcurrency)
	if err != nil {
		return Config{}, err
	}
	cfg.AdminMaxAttempts, err = intFromEnv("ADMIN_MAX_ATTEMPTS", cfg.AdminMaxAttempts)
	if err != nil {
		return Config{}, err
	}
	cfg.AdminRetryBase, err = durationFromEnv("ADMIN_RETRY_BASE", cfg.AdminRetryBase)
	if err != nil {
		return Config{}, err
	}

	cfg.Location, err = time.LoadLocation(strings.TrimSpace(cfg.Timezone))
	if err != nil {
		return Config{}, fmt.Errorf("APP_TIMEZONE parse error: %w", err)
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("AUTH_JWT_SECRET is required")
	}
	if cfg.AdminConcurrency <= 0 {
		return Config{}, fmt.Errorf("ADMIN_CONCURRENCY must be positive")
	}
	if cfg.AdminMaxAttempts <= 0 {
		return Config{}, fmt.Errorf("ADMIN_MAX_ATTEMPTS must be positive")
	}
	if cfg.AdminRetryBase < 0 {
		return Config{}, fmt.Errorf("ADMIN_RETRY_BASE must be >= 0")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
