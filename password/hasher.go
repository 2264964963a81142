package password

import "errors"

// Hasher turns plaintext passwords into stored digests and checks them back.
//
// Verify returns (false, nil) for a wrong password. A non-nil error means the
// stored digest could not be interpreted at all.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}

// Scheme names a hashing scheme selectable through configuration.
type Scheme string

const (
	// SchemeMD5 selects the legacy unsalted MD5 digest.
	SchemeMD5 Scheme = "md5"
	// SchemeArgon2id selects salted Argon2id.
	SchemeArgon2id Scheme = "argon2id"
	// SchemeMigrating verifies both and writes Argon2id.
	SchemeMigrating Scheme = "migrating"
)

var (
	// ErrEmptyPassword is returned by Hash for an empty plaintext.
	ErrEmptyPassword = errors.New("password must not be empty")
	// ErrPasswordTooLong is returned when the plaintext exceeds Config.MaxPasswordBytes.
	ErrPasswordTooLong = errors.New("password exceeds maximum length")
	// ErrMalformedDigest is returned by Verify for an Argon2id digest that
	// cannot be decoded.
	ErrMalformedDigest = errors.New("malformed argon2id digest")
	// ErrUnknownFormat is returned when a stored digest matches no known scheme.
	ErrUnknownFormat = errors.New("unrecognized password digest format")
)

// New builds the hasher for a scheme name.
func New(scheme Scheme, cfg Config) (Hasher, error) {
	switch scheme {
	case SchemeMD5:
		return MD5{}, nil
	case SchemeArgon2id:
		return NewArgon2(cfg)
	case SchemeMigrating, "":
		a, err := NewArgon2(cfg)
		if err != nil {
			return nil, err
		}
		return NewMigrating(a), nil
	default:
		return nil, errors.New("unsupported password scheme")
	}
}
