package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "https://api.daynest.app", cfg.APIBaseURL)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, 5, cfg.MaxReconnectAttempts)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("API_BASE_URL", "http://localhost:8080")
	t.Setenv("POLL_INTERVAL_SECONDS", "5")
	t.Setenv("MAX_RECONNECT_ATTEMPTS", "3")

	cfg := Load()

	assert.Equal(t, "http://localhost:8080", cfg.APIBaseURL)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 3, cfg.MaxReconnectAttempts)
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("POLL_INTERVAL_SECONDS", "soon")
	t.Setenv("MAX_RECONNECT_ATTEMPTS", "many")

	cfg := Load()

	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, 5, cfg.MaxReconnectAttempts)
}
