// Package crypto implements random token and secret generation for the
// authorization flow.
package crypto

import (
	"crypto/rand"
	"encoding/hex"
)

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// NewToken returns a URL-safe random token identifying one pending
// authorization attempt. It doubles as the OAuth state parameter.
func NewToken() (string, error) {
	b, err := RandBytes(32)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// NewTOTPSecret returns a fresh shared secret for TOTP enrollment.
func NewTOTPSecret() ([]byte, error) {
	return RandBytes(20)
}
