package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"
)

type Config struct {
	APIBaseURL           string
	RealtimeURL          string
	StateDir             string
	PollInterval         time.Duration
	DialTimeout          time.Duration
	MaxReconnectAttempts int
	LogLevel             string
}

func Load() *Config {
	return &Config{
		APIBaseURL:           GetEnv("API_BASE_URL", "https://api.daynest.app"),
		RealtimeURL:          GetEnv("REALTIME_URL", "wss://api.daynest.app/realtime"),
		StateDir:             GetEnv("STATE_DIR", defaultStateDir()),
		PollInterval:         GetEnvAsDuration("POLL_INTERVAL_SECONDS", 30*time.Second),
		DialTimeout:          GetEnvAsDuration("DIAL_TIMEOUT_SECONDS", 10*time.Second),
		MaxReconnectAttempts: GetEnvAsInt("MAX_RECONNECT_ATTEMPTS", 5),
		LogLevel:             GetEnv("LOG_LEVEL", "info"),
	}
}

// defaultStateDir places the session slot under the user config dir so a
// restart does not force re-login.
func defaultStateDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ".daynest"
	}
	return filepath.Join(base, "daynest")
}

func GetEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func GetEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		zap.S().Warnf("Invalid integer value for %s: %s, using default: %d", key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}

// GetEnvAsDuration reads a whole number of seconds.
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	seconds, err := strconv.Atoi(valueStr)
	if err != nil || seconds <= 0 {
		zap.S().Warnf("Invalid duration value for %s: %s, using default: %s", key, valueStr, defaultValue)
		return defaultValue
	}
	return time.Duration(seconds) * time.Second
}
