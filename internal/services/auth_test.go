package services

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestAuthService_GenerateAndValidateToken(t *testing.T) {
	authService := NewAuthService("test-secret", time.Hour)

	tests := []struct {
		name      string
		username  string
		sessionID string
	}{
		{"identity and session", "alice", "s1"},
		{"identity only", "bob", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := authService.GenerateToken(tt.username, tt.sessionID)
			if err != nil {
				t.Fatalf("GenerateToken() error = %v", err)
			}

			if token == "" {
				t.Fatal("GenerateToken() returned empty token")
			}

			claims, err := authService.ValidateToken(token)
			if err != nil {
				t.Fatalf("ValidateToken() error = %v", err)
			}

			if claims.Subject != tt.username {
				t.Errorf("Subject = %v, want %v", claims.Subject, tt.username)
			}

			if claims.SessionID != tt.sessionID {
				t.Errorf("SessionID = %v, want %v", claims.SessionID, tt.sessionID)
			}

			if claims.IssuedAt == nil || claims.ExpiresAt == nil {
				t.Fatal("issued-at and expiry must be set")
			}
			if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != time.Hour {
				t.Errorf("token lifetime = %v, want %v", got, time.Hour)
			}
		})
	}
}

func TestAuthService_InvalidToken(t *testing.T) {
	authService := NewAuthService("test-secret", time.Hour)

	_, err := authService.ValidateToken("invalid-token")
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("ValidateToken() error = %v, want ErrInvalidToken", err)
	}
}

func TestAuthService_WrongSecret(t *testing.T) {
	authService1 := NewAuthService("secret-1", time.Hour)
	authService2 := NewAuthService("secret-2", time.Hour)

	token, _ := authService1.GenerateToken("alice", "s1")

	_, err := authService2.ValidateToken(token)
	if err == nil {
		t.Error("ValidateToken() should return error for token signed with different secret")
	}
}

func TestAuthService_ExpiredToken(t *testing.T) {
	authService := NewAuthService("test-secret", -time.Hour)

	token, _ := authService.GenerateToken("alice", "s1")

	_, err := authService.ValidateToken(token)
	if err == nil {
		t.Error("ValidateToken() should return error for expired token")
	}
}

func TestAuthService_RejectsOtherAlgorithms(t *testing.T) {
	authService := NewAuthService("test-secret", time.Hour)

	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "mallory",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	if _, err := authService.ValidateToken(token); err == nil {
		t.Error("ValidateToken() should reject HS512 tokens")
	}
}
