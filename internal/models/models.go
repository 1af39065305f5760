package models

import "github.com/topicrelay/backend/internal/broker"

// Token issuance
type AuthRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	SessionID string `json:"session_id,omitempty"`
}

type AuthResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

// Operational
type StatsResponse struct {
	broker.Stats
	Connections int64 `json:"connections"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type PublicConfigResponse struct {
	WSPath         string `json:"wsPath"`
	KeyType        string `json:"keyType"`
	TokenExpiresIn int64  `json:"tokenExpiresIn"`
	DemoMode       bool   `json:"demoMode"`
}

// Error response
type ErrorResponse struct {
	Error string `json:"error"`
}
