// Package config loads application configuration from environment
// variables, with an optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Storage
	StorageDriver string // "sqlite", "duckdb", or "memory"
	DatabasePath  string

	// Exchange clients
	RequestsPerSecond float64

	// Logging
	LogLevel      string // debug, info, warn, error
	LogFormat     string // json, text
	LogFilePath   string // empty means stderr only
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
}

var validDrivers = []string{"sqlite", "duckdb", "memory"}

// Load reads configuration from the environment. A .env file in the
// working directory is applied first if present, without overriding
// variables already set.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string

	cfg.StorageDriver = strings.ToLower(getEnv("STORAGE_DRIVER", "sqlite"))
	if !contains(validDrivers, cfg.StorageDriver) {
		errs = append(errs, fmt.Sprintf("STORAGE_DRIVER must be one of %s", strings.Join(validDrivers, ", ")))
	}

	cfg.DatabasePath = getEnv("DATABASE_PATH", "klines.db")
	if cfg.DatabasePath == "" && cfg.StorageDriver != "memory" {
		errs = append(errs, "DATABASE_PATH must be set for sql drivers")
	}

	var err error
	cfg.RequestsPerSecond, err = getEnvAsFloat("REQUESTS_PER_SECOND", 1.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid REQUESTS_PER_SECOND: %v", err))
	} else if cfg.RequestsPerSecond <= 0 {
		errs = append(errs, "REQUESTS_PER_SECOND must be positive")
	}

	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", "info"))
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "LOG_LEVEL must be one of debug, info, warn, error")
	}

	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "text"))
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		errs = append(errs, "LOG_FORMAT must be json or text")
	}

	cfg.LogFilePath = getEnv("LOG_FILE_PATH", "")
	if cfg.LogMaxSizeMB, err = getEnvAsInt("LOG_MAX_SIZE_MB", 100); err != nil {
		errs = append(errs, fmt.Sprintf("invalid LOG_MAX_SIZE_MB: %v", err))
	}
	if cfg.LogMaxBackups, err = getEnvAsInt("LOG_MAX_BACKUPS", 3); err != nil {
		errs = append(errs, fmt.Sprintf("invalid LOG_MAX_BACKUPS: %v", err))
	}
	if cfg.LogMaxAgeDays, err = getEnvAsInt("LOG_MAX_AGE_DAYS", 28); err != nil {
		errs = append(errs, fmt.Sprintf("invalid LOG_MAX_AGE_DAYS: %v", err))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration errors:\n - %s", strings.Join(errs, "\n - "))
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvAsFloat(key string, fallback float64) (float64, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
