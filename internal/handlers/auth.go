package handlers

import (
	"errors"
	"net/http"

	"github.com/topicrelay/backend/internal/logging"
	"github.com/topicrelay/backend/internal/models"
	"github.com/topicrelay/backend/internal/services"
)

const maxAuthBodyBytes = 4096

// AuthHandler issues connection tokens.
type AuthHandler struct {
	authService *services.AuthService
	credentials *services.CredentialStore
}

func NewAuthHandler(authService *services.AuthService, credentials *services.CredentialStore) *AuthHandler {
	return &AuthHandler{authService: authService, credentials: credentials}
}

// IssueToken exchanges a username and password for a signed token. The
// token's subject is the username; a session_id in the body is pinned too.
func (h *AuthHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req models.AuthRequest
	if err := decodeJSON(w, r, maxAuthBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.credentials.Authenticate(req.Username, req.Password); err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			logging.LogSecurityEvent(r.Context(), logging.SecurityEventBadCredentials, "token request with invalid credentials")
		}
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := h.authService.GenerateToken(req.Username, req.SessionID)
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "Failed to generate token", err)
		return
	}

	writeJSON(w, http.StatusOK, models.AuthResponse{
		Token:     token,
		ExpiresIn: int64(h.authService.TokenDuration().Seconds()),
	})
}
