package services

import (
	"errors"
	"testing"

	"github.com/topicrelay/backend/internal/crypto"
)

func TestCredentialStore_DemoMode(t *testing.T) {
	store := NewCredentialStore(nil)
	if !store.DemoMode() {
		t.Fatal("store without users should be in demo mode")
	}

	tests := []struct {
		name     string
		username string
		password string
		wantErr  bool
	}{
		{"any credentials", "alice", "whatever", false},
		{"empty username", "", "pw", true},
		{"empty password", "alice", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.Authenticate(tt.username, tt.password)
			if (err != nil) != tt.wantErr {
				t.Errorf("Authenticate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCredentialStore_ConfiguredUsers(t *testing.T) {
	hash, err := crypto.HashCredential("alice", "s3cret")
	if err != nil {
		t.Fatalf("HashCredential() error = %v", err)
	}
	store := NewCredentialStore(map[string]string{"alice": hash})

	if err := store.Authenticate("alice", "s3cret"); err != nil {
		t.Errorf("Authenticate(correct) error = %v", err)
	}
	if err := store.Authenticate("alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Authenticate(wrong password) error = %v, want ErrInvalidCredentials", err)
	}
	if err := store.Authenticate("bob", "s3cret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Authenticate(unknown user) error = %v, want ErrInvalidCredentials", err)
	}
}
