// Package crypto provides credential hashing and the key agreement and
// sealing helpers clients use to encrypt payloads end to end.
package crypto

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// Scrypt parameters for stored credentials.
// N=16384 (2^14), r=8, p=1 are recommended for interactive logins.
const (
	scryptN      = 16384
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
)

// HashWithScrypt hashes an input string using scrypt with the given salt.
// The salt is lowercased before use. Returns hex-encoded hash.
func HashWithScrypt(input, salt string) (string, error) {
	saltBytes := []byte(strings.ToLower(salt))
	dk, err := scrypt.Key([]byte(input), saltBytes, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return "", fmt.Errorf("scrypt key derivation failed: %w", err)
	}
	return hex.EncodeToString(dk), nil
}

// HashCredential derives the stored hash for a user's password. The
// username is the salt.
func HashCredential(username, password string) (string, error) {
	return HashWithScrypt(password, username)
}

// VerifyCredential reports whether password matches the stored hex hash.
func VerifyCredential(username, password, storedHash string) bool {
	hash, err := HashCredential(username, password)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(hash), []byte(strings.ToLower(storedHash))) == 1
}
