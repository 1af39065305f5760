package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

const nonceSize = 12

var ErrCiphertextTooShort = errors.New("ciphertext too short")

// Seal encrypts data with AES-256-GCM using a 32-byte shared secret as the
// key. The output is nonce || ciphertext.
func Seal(data, sharedSecret []byte) ([]byte, error) {
	aead, err := newGCM(sharedSecret)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize, nonceSize+len(data)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, data, nil), nil
}

// Open reverses Seal.
func Open(sealed, sharedSecret []byte) ([]byte, error) {
	if len(sealed) <= nonceSize {
		return nil, ErrCiphertextTooShort
	}
	aead, err := newGCM(sharedSecret)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid key length %d, want 32", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
