package password

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
)

// MD5 is the legacy scheme: lowercase hex MD5 of the raw password bytes, no
// salt, no key. It is total over byte strings and never returns an error.
type MD5 struct{}

// Hash returns the hex digest of password.
func (MD5) Hash(password string) (string, error) {
	return md5Hex(password), nil
}

// Verify reports whether Hash(password) equals encoded.
func (MD5) Verify(password, encoded string) (bool, error) {
	return subtle.ConstantTimeCompare([]byte(md5Hex(password)), []byte(encoded)) == 1, nil
}

func md5Hex(password string) string {
	sum := md5.Sum([]byte(password))
	return hex.EncodeToString(sum[:])
}

func isMD5Digest(encoded string) bool {
	if len(encoded) != md5.Size*2 {
		return false
	}
	for i := 0; i < len(encoded); i++ {
		c := encoded[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
