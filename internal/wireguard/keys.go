// Package wireguard holds key handling, address assignment and client
// configuration rendering for WireGuard networks.
package wireguard

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/curve25519"

	"github.com/dwongdev/defguard/internal/errs"
)

// KeyLength is the byte length of a WireGuard key.
const KeyLength = 32

// Keypair is a curve25519 key pair, base64 encoded.
type Keypair struct {
	Private string
	Public  string
}

// GenerateKeypair creates a fresh server key pair.
func GenerateKeypair() (Keypair, error) {
	priv := make([]byte, KeyLength)
	if _, err := rand.Read(priv); err != nil {
		return Keypair{}, err
	}
	// clamp per curve25519
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64

	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return Keypair{}, err
	}
	return Keypair{
		Private: base64.StdEncoding.EncodeToString(priv),
		Public:  base64.StdEncoding.EncodeToString(pub),
	}, nil
}

// GeneratePresharedKey creates a random preshared key.
func GeneratePresharedKey() (string, error) {
	b := make([]byte, KeyLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// ValidateKey checks that s is a base64-encoded 32-byte WireGuard key.
func ValidateKey(s string) error {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return fmt.Errorf("%w: invalid key encoding", errs.ErrValidation)
	}
	if len(b) != KeyLength {
		return fmt.Errorf("%w: key must be %d bytes", errs.ErrValidation, KeyLength)
	}
	return nil
}
