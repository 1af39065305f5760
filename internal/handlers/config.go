package handlers

import (
	"net/http"

	"github.com/topicrelay/backend/internal/crypto"
	"github.com/topicrelay/backend/internal/models"
	"github.com/topicrelay/backend/internal/services"
)

type ConfigHandler struct {
	authService *services.AuthService
	credentials *services.CredentialStore
	keyType     crypto.KeyType
}

func NewConfigHandler(authService *services.AuthService, credentials *services.CredentialStore, keyType crypto.KeyType) *ConfigHandler {
	return &ConfigHandler{authService: authService, credentials: credentials, keyType: keyType}
}

// PublicConfig returns non-sensitive configuration for clients
func (h *ConfigHandler) PublicConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.PublicConfigResponse{
		WSPath:         "/ws",
		KeyType:        string(h.keyType),
		TokenExpiresIn: int64(h.authService.TokenDuration().Seconds()),
		DemoMode:       h.credentials.DemoMode(),
	})
}
