package config

import (
	"testing"
	"time"
)

func TestLoadRequiresServiceURL(t *testing.T) {
	t.Setenv("CHAT_SERVICE_URL", "")
	t.Setenv("PROFILE_ID", "prof-123")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when CHAT_SERVICE_URL is missing")
	}
}

func TestLoadRequiresProfileID(t *testing.T) {
	t.Setenv("CHAT_SERVICE_URL", "https://api.example.com")
	t.Setenv("PROFILE_ID", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when PROFILE_ID is missing")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CHAT_SERVICE_URL", "https://api.example.com")
	t.Setenv("PROFILE_ID", "prof-123")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.HTTPTimeout != 30*time.Second {
		t.Fatalf("HTTPTimeout=%v, want 30s", cfg.HTTPTimeout)
	}
	if cfg.WSHandshakeTimeout != 10*time.Second {
		t.Fatalf("WSHandshakeTimeout=%v, want 10s", cfg.WSHandshakeTimeout)
	}
	if cfg.WSReadBufferSize != 1024 || cfg.WSWriteBufferSize != 1024 {
		t.Fatalf("buffer sizes=%d/%d, want 1024/1024", cfg.WSReadBufferSize, cfg.WSWriteBufferSize)
	}
	if cfg.HistoryPerChat != 200 {
		t.Fatalf("HistoryPerChat=%d, want 200", cfg.HistoryPerChat)
	}
	if cfg.JWTAudience != "profile-chat" {
		t.Fatalf("JWTAudience=%q, want profile-chat", cfg.JWTAudience)
	}
}

func TestLoadDerivesIssuerFromServiceURL(t *testing.T) {
	t.Setenv("CHAT_SERVICE_URL", "https://api.example.com")
	t.Setenv("PROFILE_ID", "prof-123")
	t.Setenv("JWT_ISSUER", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.JWTIssuer != "https://api.example.com" {
		t.Fatalf("JWTIssuer=%q, want service URL", cfg.JWTIssuer)
	}
}

func TestLoadTrimsTrailingSlash(t *testing.T) {
	t.Setenv("CHAT_SERVICE_URL", "https://api.example.com/")
	t.Setenv("PROFILE_ID", "prof-123")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.ChatServiceURL != "https://api.example.com" {
		t.Fatalf("ChatServiceURL=%q, want trailing slash trimmed", cfg.ChatServiceURL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CHAT_SERVICE_URL", "http://localhost:8001")
	t.Setenv("PROFILE_ID", "prof-123")
	t.Setenv("HTTP_TIMEOUT", "5s")
	t.Setenv("PING_INTERVAL", "1m")
	t.Setenv("HISTORY_PER_CHAT", "50")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.HTTPTimeout != 5*time.Second {
		t.Fatalf("HTTPTimeout=%v, want 5s", cfg.HTTPTimeout)
	}
	if cfg.PingInterval != time.Minute {
		t.Fatalf("PingInterval=%v, want 1m", cfg.PingInterval)
	}
	if cfg.HistoryPerChat != 50 {
		t.Fatalf("HistoryPerChat=%d, want 50", cfg.HistoryPerChat)
	}
}
