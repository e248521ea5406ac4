// Package config provides configuration loading for the chat client.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration values for the chat client.
type Config struct {
	// Chat service settings
	ChatServiceURL string
	ProfileID      string

	// Auth settings
	SessionToken string
	JWKSEndpoint string
	JWTAudience  string
	JWTIssuer    string

	// HTTP client settings
	HTTPTimeout time.Duration

	// WebSocket settings
	WSHandshakeTimeout time.Duration
	WSReadBufferSize   int
	WSWriteBufferSize  int
	PingInterval       time.Duration

	// Local history settings
	HistoryDBPath  string
	HistoryPerChat int

	// Profile fetch retry settings
	ProfileRetryInitial time.Duration
	ProfileRetryMax     time.Duration
	ProfileRetryLimit   int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		// Default values
		ChatServiceURL: getEnv("CHAT_SERVICE_URL", ""),
		ProfileID:      getEnv("PROFILE_ID", ""),

		SessionToken: getEnv("SESSION_TOKEN", ""),
		JWKSEndpoint: getEnv("JWKS_ENDPOINT", ""),
		JWTAudience:  getEnv("JWT_AUDIENCE", "profile-chat"),
		JWTIssuer:    getEnv("JWT_ISSUER", ""), // Derived from ChatServiceURL if not set

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 30*time.Second),

		WSHandshakeTimeout: getEnvDuration("WS_HANDSHAKE_TIMEOUT", 10*time.Second),
		WSReadBufferSize:   getEnvInt("WS_READ_BUFFER_SIZE", 1024),
		WSWriteBufferSize:  getEnvInt("WS_WRITE_BUFFER_SIZE", 1024),
		PingInterval:       getEnvDuration("PING_INTERVAL", 30*time.Second),

		HistoryDBPath:  getEnv("HISTORY_DB_PATH", defaultHistoryPath()),
		HistoryPerChat: getEnvInt("HISTORY_PER_CHAT", 200),

		ProfileRetryInitial: getEnvDuration("PROFILE_RETRY_INITIAL", 500*time.Millisecond),
		ProfileRetryMax:     getEnvDuration("PROFILE_RETRY_MAX", 10*time.Second),
		ProfileRetryLimit:   getEnvInt("PROFILE_RETRY_LIMIT", 5),
	}

	// Validate required fields
	if cfg.ChatServiceURL == "" {
		return nil, fmt.Errorf("CHAT_SERVICE_URL is required")
	}
	cfg.ChatServiceURL = strings.TrimRight(cfg.ChatServiceURL, "/")

	if cfg.ProfileID == "" {
		return nil, fmt.Errorf("PROFILE_ID is required")
	}

	// Derive JWT issuer from the service URL if not explicitly set
	if cfg.JWTIssuer == "" {
		cfg.JWTIssuer = cfg.ChatServiceURL
	}

	return cfg, nil
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "chat-history.db"
	}
	return filepath.Join(home, ".chat-client", "history.db")
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
