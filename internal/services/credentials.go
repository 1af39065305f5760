package services

import (
	"errors"

	"github.com/topicrelay/backend/internal/crypto"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// CredentialStore checks username/password pairs before a token is issued.
// With no users configured it runs in demo mode and accepts any non-empty
// username and password.
type CredentialStore struct {
	users map[string]string // username -> scrypt hex hash
}

// NewCredentialStore creates a store from username -> hash pairs.
func NewCredentialStore(users map[string]string) *CredentialStore {
	return &CredentialStore{users: users}
}

// DemoMode reports whether the store accepts any non-empty credentials.
func (s *CredentialStore) DemoMode() bool {
	return len(s.users) == 0
}

// Authenticate returns ErrInvalidCredentials unless the pair is accepted.
func (s *CredentialStore) Authenticate(username, password string) error {
	if username == "" || password == "" {
		return ErrInvalidCredentials
	}
	if s.DemoMode() {
		return nil
	}

	hash, ok := s.users[username]
	if !ok || !crypto.VerifyCredential(username, password, hash) {
		return ErrInvalidCredentials
	}
	return nil
}
