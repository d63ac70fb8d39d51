// Package config loads service configuration from environment variables,
// with an optional .env file for development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	DBPath   string
	LogLevel string

	MaxActiveLoans     int
	SweepInterval      time.Duration
	SweepLookaheadDays int
	NotifyBuffer       int
}

// Load reads the environment, first merging a .env file when one exists.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnv("SERVER_PORT", "8080"),
		DBPath:   getEnv("DB_PATH", "corebank.db"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.MaxActiveLoans, err = getEnvInt("MAX_ACTIVE_LOANS", 3); err != nil {
		return nil, err
	}
	if cfg.SweepLookaheadDays, err = getEnvInt("SWEEP_LOOKAHEAD_DAYS", 3); err != nil {
		return nil, err
	}
	if cfg.NotifyBuffer, err = getEnvInt("NOTIFY_BUFFER", 64); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = getEnvDuration("SWEEP_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	return cfg, nil
}

// getEnv fetches an environment variable or returns the default.
func getEnv(key, defaultValue string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
