package internal

import (
	"crypto/rand"
	"encoding/base64"
)

const placeholderSecretSize = 32

// NewPlaceholderSecret returns 32 random bytes, base64url encoded. Accounts
// created through an external identity get the digest of such a secret as
// their password so that no password sign-in can match.
func NewPlaceholderSecret() (string, error) {
	var raw [placeholderSecretSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}
