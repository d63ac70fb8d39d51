package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "corebank.db", cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 3, cfg.MaxActiveLoans)
	assert.Equal(t, 3, cfg.SweepLookaheadDays)
	assert.Equal(t, 64, cfg.NotifyBuffer)
	assert.Equal(t, time.Hour, cfg.SweepInterval)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_PATH", "/var/lib/corebank/data.db")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("MAX_ACTIVE_LOANS", "5")
	t.Setenv("SWEEP_LOOKAHEAD_DAYS", "7")
	t.Setenv("NOTIFY_BUFFER", "256")
	t.Setenv("SWEEP_INTERVAL", "30m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "/var/lib/corebank/data.db", cfg.DBPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5, cfg.MaxActiveLoans)
	assert.Equal(t, 7, cfg.SweepLookaheadDays)
	assert.Equal(t, 256, cfg.NotifyBuffer)
	assert.Equal(t, 30*time.Minute, cfg.SweepInterval)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("MAX_ACTIVE_LOANS", "many")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	t.Setenv("SWEEP_INTERVAL", "hourly")
	_, err := Load()
	assert.Error(t, err)
}
