// Package config handles loading application configuration from environment variables.
// All settings have sensible defaults for local development.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application settings loaded from environment variables.
type Config struct {
	Port               string
	JWTSecret          string
	TokenDuration      time.Duration
	AuthUsers          map[string]string
	RateLimitPerMinute int
	CORSAllowedOrigins []string
	TrustedProxies     []string
	WSMaxMessageBytes  int64
	WSWriteTimeout     time.Duration
	WSPingInterval     time.Duration
	KeyType            string
	SentryDSN          string
	SentryEnvironment  string
	ShutdownTimeout    time.Duration
}

// Load reads configuration from environment variables, using defaults where not set.
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8081"),
		JWTSecret:          getEnv("JWT_SECRET_KEY", "change-me-in-production"), // #nosec G101 -- intentional dev default
		TokenDuration:      time.Duration(getIntEnv("JWT_EXPIRATION_SECONDS", 3600)) * time.Second,
		AuthUsers:          getCredentialsEnv("AUTH_USERS"),
		RateLimitPerMinute: getIntEnv("RATE_LIMIT_PER_MINUTE", 10),
		CORSAllowedOrigins: getStringSliceEnv("CORS_ALLOWED_ORIGINS"),
		TrustedProxies:     getStringSliceEnv("TRUSTED_PROXIES"),
		WSMaxMessageBytes:  int64(getIntEnv("WS_MAX_MESSAGE_BYTES", 64*1024)),
		WSWriteTimeout:     getDurationEnv("WS_WRITE_TIMEOUT", 10*time.Second),
		WSPingInterval:     getDurationEnv("WS_PING_INTERVAL", 30*time.Second),
		KeyType:            strings.ToLower(getEnv("KEY_TYPE", "p256")),
		SentryDSN:          getEnv("SENTRY_DSN", ""),
		SentryEnvironment:  getEnv("SENTRY_ENVIRONMENT", "production"),
		ShutdownTimeout:    getDurationEnv("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

// getCredentialsEnv parses "user:scrypthex,user2:scrypthex". Malformed
// entries are skipped.
func getCredentialsEnv(key string) map[string]string {
	users := make(map[string]string)
	for _, entry := range getStringSliceEnv(key) {
		name, hash, ok := strings.Cut(entry, ":")
		name, hash = strings.TrimSpace(name), strings.TrimSpace(hash)
		if !ok || name == "" || hash == "" {
			continue
		}
		users[name] = strings.ToLower(hash)
	}
	return users
}

func getStringSliceEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var result []string
	for _, s := range strings.Split(value, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			result = append(result, s)
		}
	}
	return result
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
