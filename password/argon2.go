package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argon2Prefix = "$argon2id$"

const defaultMaxPasswordBytes = 1024

// Config holds Argon2id cost parameters. MaxPasswordBytes caps the plaintext
// length accepted by Hash and Verify; zero selects 1024.
type Config struct {
	Memory           uint32 // KiB
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
}

// DefaultConfig returns the parameters used when configuration leaves them unset.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// floor is the weakest configuration NewArgon2 accepts and the weakest digest
// Verify will recompute.
var floor = Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16}

func (c Config) validate() error {
	var errs []error
	check := func(ok bool, field string, min uint32) {
		if !ok {
			errs = append(errs, fmt.Errorf("password %s must be >= %d", field, min))
		}
	}
	check(c.Memory >= floor.Memory, "memory (KiB)", floor.Memory)
	check(c.Time >= floor.Time, "time", floor.Time)
	check(c.Parallelism >= floor.Parallelism, "parallelism", uint32(floor.Parallelism))
	check(c.SaltLength >= floor.SaltLength, "salt length", floor.SaltLength)
	check(c.KeyLength >= floor.KeyLength, "key length", floor.KeyLength)
	return errors.Join(errs...)
}

// digest is one decoded "$argon2id$v=19$m=..,t=..,p=..$salt$key" string.
type digest struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (d digest) String() string {
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Prefix, argon2.Version, d.memory, d.time, d.parallelism,
		base64.RawStdEncoding.EncodeToString(d.salt),
		base64.RawStdEncoding.EncodeToString(d.key))
}

func parseDigest(encoded string) (digest, error) {
	var d digest
	rest, ok := strings.CutPrefix(encoded, argon2Prefix)
	if !ok {
		return d, fmt.Errorf("%w: not argon2id", ErrMalformedDigest)
	}
	fields := strings.Split(rest, "$")
	if len(fields) != 4 {
		return d, fmt.Errorf("%w: want 4 fields after the prefix, got %d", ErrMalformedDigest, len(fields))
	}

	var version int
	if _, err := fmt.Sscanf(fields[0], "v=%d", &version); err != nil || fmt.Sprintf("v=%d", version) != fields[0] {
		return d, fmt.Errorf("%w: bad version %q", ErrMalformedDigest, fields[0])
	}
	if version != argon2.Version {
		return d, fmt.Errorf("%w: argon2 version %d", ErrMalformedDigest, version)
	}

	// Only the canonical m,t,p order is accepted.
	if _, err := fmt.Sscanf(fields[1], "m=%d,t=%d,p=%d", &d.memory, &d.time, &d.parallelism); err != nil ||
		fmt.Sprintf("m=%d,t=%d,p=%d", d.memory, d.time, d.parallelism) != fields[1] {
		return d, fmt.Errorf("%w: bad parameters %q", ErrMalformedDigest, fields[1])
	}
	if d.memory < floor.Memory || d.time < floor.Time || d.parallelism < floor.Parallelism {
		return d, fmt.Errorf("%w: parameters below floor", ErrMalformedDigest)
	}

	var err error
	if d.salt, err = decodeB64(fields[2]); err != nil || len(d.salt) < int(floor.SaltLength) {
		return d, fmt.Errorf("%w: bad salt", ErrMalformedDigest)
	}
	if d.key, err = decodeB64(fields[3]); err != nil || len(d.key) == 0 {
		return d, fmt.Errorf("%w: bad key", ErrMalformedDigest)
	}
	return d, nil
}

// decodeB64 reads unpadded PHC base64 and tolerates the padded form other
// tools emit.
func decodeB64(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

// Argon2 hashes with Argon2id and verifies any well-formed Argon2id digest,
// whatever parameters it was written with.
type Argon2 struct {
	config Config
}

// NewArgon2 validates cfg and returns a hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.MaxPasswordBytes <= 0 {
		cfg.MaxPasswordBytes = defaultMaxPasswordBytes
	}
	return &Argon2{config: cfg}, nil
}

// Hash derives a fresh salt. Password bytes are used as given, without
// Unicode normalization.
func (a *Argon2) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > a.config.MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	d := digest{
		memory:      a.config.Memory,
		time:        a.config.Time,
		parallelism: a.config.Parallelism,
		salt:        make([]byte, a.config.SaltLength),
	}
	if _, err := rand.Read(d.salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	d.key = argon2.IDKey([]byte(password), d.salt, d.time, d.memory, d.parallelism, a.config.KeyLength)
	return d.String(), nil
}

// Verify recomputes the key with the digest's own parameters. Oversized
// plaintexts fail before any key derivation runs.
func (a *Argon2) Verify(password, encoded string) (bool, error) {
	if len(password) > a.config.MaxPasswordBytes {
		return false, nil
	}
	d, err := parseDigest(encoded)
	if err != nil {
		return false, err
	}
	key := argon2.IDKey([]byte(password), d.salt, d.time, d.memory, d.parallelism, uint32(len(d.key)))
	return subtle.ConstantTimeCompare(key, d.key) == 1, nil
}

// NeedsRehash reports whether encoded was written with weaker cost, a shorter
// salt or a different key length than the current configuration. Malformed
// digests report false; Verify has already rejected them.
func (a *Argon2) NeedsRehash(encoded string) bool {
	d, err := parseDigest(encoded)
	if err != nil {
		return false
	}
	return d.memory < a.config.Memory ||
		d.time < a.config.Time ||
		d.parallelism < a.config.Parallelism ||
		uint32(len(d.salt)) < a.config.SaltLength ||
		uint32(len(d.key)) != a.config.KeyLength
}
