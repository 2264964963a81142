package password

import "strings"

// Migrating reads legacy MD5 and Argon2id digests and writes Argon2id.
type Migrating struct {
	argon *Argon2
	md5   MD5
}

// NewMigrating wraps an Argon2 hasher with legacy MD5 verification.
func NewMigrating(a *Argon2) *Migrating {
	return &Migrating{argon: a}
}

// Hash always produces an Argon2id digest.
func (m *Migrating) Hash(password string) (string, error) {
	return m.argon.Hash(password)
}

// Verify dispatches on the stored digest format.
func (m *Migrating) Verify(password, encoded string) (bool, error) {
	switch {
	case strings.HasPrefix(encoded, argon2Prefix):
		return m.argon.Verify(password, encoded)
	case isMD5Digest(encoded):
		return m.md5.Verify(password, encoded)
	default:
		return false, ErrUnknownFormat
	}
}

// NeedsRehash reports whether encoded should be replaced after a successful
// verification: legacy digests always, Argon2 digests on parameter drift.
func (m *Migrating) NeedsRehash(encoded string) bool {
	if isMD5Digest(encoded) {
		return true
	}
	return m.argon.NeedsRehash(encoded)
}
