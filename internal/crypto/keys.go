package crypto

import (
	"crypto/ecdh"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/curve25519"
)

// KeyType selects the curve of the server's advertised key pair.
type KeyType string

const (
	KeyTypeP256   KeyType = "p256"
	KeyTypeX25519 KeyType = "x25519"
)

const p256CoordLen = 32

var ErrInvalidPublicKey = errors.New("invalid public key")

// ParseKeyType accepts "p256" or "x25519", case-insensitively.
func ParseKeyType(s string) (KeyType, error) {
	switch KeyType(strings.ToLower(strings.TrimSpace(s))) {
	case KeyTypeP256:
		return KeyTypeP256, nil
	case KeyTypeX25519:
		return KeyTypeX25519, nil
	}
	return "", fmt.Errorf("unknown key type %q", s)
}

// KeyPair is an ECDH key pair whose public half is published to clients.
// P-256 public keys are encoded as compressed SEC1 points so browsers can
// import them; X25519 public keys are the raw 32 bytes.
type KeyPair struct {
	keyType   KeyType
	p256      *ecdh.PrivateKey
	x25519    []byte
	publicKey []byte
}

// GenerateKeyPair creates a fresh key pair of the given type.
func GenerateKeyPair(t KeyType) (*KeyPair, error) {
	switch t {
	case KeyTypeP256:
		priv, err := ecdh.P256().GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate p256 key: %w", err)
		}
		return &KeyPair{
			keyType:   t,
			p256:      priv,
			publicKey: compressP256(priv.PublicKey().Bytes()),
		}, nil

	case KeyTypeX25519:
		priv := make([]byte, curve25519.ScalarSize)
		if _, err := rand.Read(priv); err != nil {
			return nil, fmt.Errorf("generate x25519 key: %w", err)
		}
		pub, err := curve25519.X25519(priv, curve25519.Basepoint)
		if err != nil {
			return nil, fmt.Errorf("derive x25519 public key: %w", err)
		}
		return &KeyPair{keyType: t, x25519: priv, publicKey: pub}, nil
	}
	return nil, fmt.Errorf("unknown key type %q", t)
}

// Type returns the curve of the key pair.
func (k *KeyPair) Type() KeyType {
	return k.keyType
}

// PublicKey returns the base64-encoded public key.
func (k *KeyPair) PublicKey() string {
	return base64.StdEncoding.EncodeToString(k.publicKey)
}

// SharedSecret derives the 32-byte ECDH secret with a peer's base64 public
// key. For P-256 both compressed and uncompressed points are accepted.
func (k *KeyPair) SharedSecret(peerPublicKey string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(peerPublicKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}

	switch k.keyType {
	case KeyTypeP256:
		peer, err := parseP256PublicKey(raw)
		if err != nil {
			return nil, err
		}
		secret, err := k.p256.ECDH(peer)
		if err != nil {
			return nil, fmt.Errorf("p256 key agreement: %w", err)
		}
		return secret, nil

	case KeyTypeX25519:
		if len(raw) != curve25519.PointSize {
			return nil, fmt.Errorf("%w: x25519 key must be %d bytes", ErrInvalidPublicKey, curve25519.PointSize)
		}
		secret, err := curve25519.X25519(k.x25519, raw)
		if err != nil {
			return nil, fmt.Errorf("x25519 key agreement: %w", err)
		}
		return secret, nil
	}
	return nil, fmt.Errorf("unknown key type %q", k.keyType)
}

// compressP256 turns an uncompressed SEC1 point (0x04 || X || Y) into its
// compressed form (0x02|0x03 || X).
func compressP256(uncompressed []byte) []byte {
	x := uncompressed[1 : 1+p256CoordLen]
	y := uncompressed[1+p256CoordLen:]

	out := make([]byte, 0, 1+p256CoordLen)
	out = append(out, 0x02|(y[len(y)-1]&1))
	return append(out, x...)
}

func parseP256PublicKey(raw []byte) (*ecdh.PublicKey, error) {
	if len(raw) == 1+p256CoordLen {
		x, y := elliptic.UnmarshalCompressed(elliptic.P256(), raw)
		if x == nil {
			return nil, fmt.Errorf("%w: not a p256 point", ErrInvalidPublicKey)
		}
		uncompressed := make([]byte, 1+2*p256CoordLen)
		uncompressed[0] = 0x04
		x.FillBytes(uncompressed[1 : 1+p256CoordLen])
		y.FillBytes(uncompressed[1+p256CoordLen:])
		raw = uncompressed
	}

	pub, err := ecdh.P256().NewPublicKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return pub, nil
}
