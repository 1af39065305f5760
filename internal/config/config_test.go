package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "JWT_EXPIRATION_SECONDS", "AUTH_USERS", "WS_PING_INTERVAL", "KEY_TYPE"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Port != "8081" {
		t.Errorf("Port = %q, want 8081", cfg.Port)
	}
	if cfg.TokenDuration != time.Hour {
		t.Errorf("TokenDuration = %v, want 1h", cfg.TokenDuration)
	}
	if len(cfg.AuthUsers) != 0 {
		t.Errorf("AuthUsers = %v, want empty", cfg.AuthUsers)
	}
	if cfg.WSPingInterval != 30*time.Second {
		t.Errorf("WSPingInterval = %v, want 30s", cfg.WSPingInterval)
	}
	if cfg.KeyType != "p256" {
		t.Errorf("KeyType = %q, want p256", cfg.KeyType)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("JWT_EXPIRATION_SECONDS", "60")
	t.Setenv("WS_WRITE_TIMEOUT", "2s")
	t.Setenv("WS_PING_INTERVAL", "not-a-duration")
	t.Setenv("KEY_TYPE", "X25519")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")

	cfg := Load()
	if cfg.Port != "9000" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.TokenDuration != time.Minute {
		t.Errorf("TokenDuration = %v, want 1m", cfg.TokenDuration)
	}
	if cfg.WSWriteTimeout != 2*time.Second {
		t.Errorf("WSWriteTimeout = %v, want 2s", cfg.WSWriteTimeout)
	}
	if cfg.WSPingInterval != 30*time.Second {
		t.Errorf("WSPingInterval = %v, want default on parse error", cfg.WSPingInterval)
	}
	if cfg.KeyType != "x25519" {
		t.Errorf("KeyType = %q, want x25519", cfg.KeyType)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Errorf("CORSAllowedOrigins = %v", cfg.CORSAllowedOrigins)
	}
}

func TestGetCredentialsEnv(t *testing.T) {
	t.Setenv("AUTH_USERS", "alice:ABCD, bob:ef01,broken,:00,carol:")

	users := getCredentialsEnv("AUTH_USERS")
	if len(users) != 2 {
		t.Fatalf("users = %v, want alice and bob", users)
	}
	if users["alice"] != "abcd" || users["bob"] != "ef01" {
		t.Errorf("users = %v", users)
	}
}
