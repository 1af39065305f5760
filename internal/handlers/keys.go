package handlers

import (
	"net/http"

	"github.com/topicrelay/backend/internal/crypto"
)

// KeyHandler publishes the server's ECDH public key.
type KeyHandler struct {
	keys *crypto.KeyPair
}

func NewKeyHandler(keys *crypto.KeyPair) *KeyHandler {
	return &KeyHandler{keys: keys}
}

// PublicKey writes the base64 public key as plain text.
func (h *KeyHandler) PublicKey(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Key-Type", string(h.keys.Type()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(h.keys.PublicKey()))
}
