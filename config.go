package mpauth

import (
	"errors"
	"time"
)

// Config holds every tunable of the engine. Values are read once by
// Builder.Build and treated as immutable afterwards.
type Config struct {
	JWT        JWTConfig
	Lockout    LockoutConfig
	Password   PasswordConfig
	Provider   ProviderConfig
	Store      StoreConfig
	Revocation RevocationConfig
	Security   SecurityConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures bearer token issuance.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	// PrivateKey is the shared secret for hs256 (>= 32 bytes) or the Ed25519
	// private key for ed25519.
	PrivateKey []byte
	PublicKey  []byte
	Issuer     string
	Audience   string
	Leeway     time.Duration
	KeyID      string
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig holds the progressive lockout policy.
type LockoutConfig struct {
	MaxAttempts int
	Duration    time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig selects the hashing scheme and its cost.
type PasswordConfig struct {
	Scheme         string // "migrating" (default), "argon2id" or "md5"
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	MaxBytes       int
	UpgradeOnLogin bool
}

/*
====================================
PROVIDER CONFIG
====================================
*/

// ProviderConfig identifies this application to the external identity provider.
type ProviderConfig struct {
	AppID    string
	Secret   string
	Endpoint string
	Timeout  time.Duration
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig bounds account store access.
type StoreConfig struct {
	Timeout       time.Duration
	MaxCASRetries int
}

// RevocationConfig configures the token denylist.
type RevocationConfig struct {
	RedisPrefix string
	Timeout     time.Duration
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig groups posture switches.
type SecurityConfig struct {
	ProductionMode bool
	// RequireCaptcha makes an empty session captcha a mismatch.
	RequireCaptcha bool
	// VerifyPayloadSignature checks sha1(rawData+sessionKey) on DecryptProfile.
	VerifyPayloadSignature bool
	// EnableIPThrottle limits sign-in attempts per client IP (see WithClientIP).
	EnableIPThrottle      bool
	MaxIPAttempts         int
	IPThrottleWindow      time.Duration
	IPThrottleRedisPrefix string
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns a Config with every default applied. JWT.PrivateKey
// and Provider credentials are left empty and must be supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     60 * time.Second,
			SigningMethod: "hs256",
			Leeway:        0,
		},
		Lockout: LockoutConfig{
			MaxAttempts: 5,
			Duration:    2 * time.Hour,
		},
		Password: PasswordConfig{
			Scheme:         "migrating",
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			MaxBytes:       1024,
			UpgradeOnLogin: true,
		},
		Provider: ProviderConfig{
			Endpoint: "https://api.weixin.qq.com/sns/jscode2session",
			Timeout:  5 * time.Second,
		},
		Store: StoreConfig{
			Timeout:       3 * time.Second,
			MaxCASRetries: 8,
		},
		Revocation: RevocationConfig{
			RedisPrefix: "arv:",
			Timeout:     time.Second,
		},
		Security: SecurityConfig{
			ProductionMode:         false,
			RequireCaptcha:         false,
			VerifyPayloadSignature: true,
			EnableIPThrottle:       false,
			MaxIPAttempts:          50,
			IPThrottleWindow:       15 * time.Minute,
			IPThrottleRedisPrefix:  "ali:",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

const minProductionArgon2Memory = 19 * 1024

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
		if len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Lockout
	if c.Lockout.MaxAttempts <= 0 {
		return errors.New("Lockout MaxAttempts must be > 0")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}

	// Password
	switch c.Password.Scheme {
	case "migrating", "argon2id":
		if c.Password.Memory < 8*1024 {
			return errors.New("Password Memory must be >= 8192 KB")
		}
		if c.Security.ProductionMode && c.Password.Memory < minProductionArgon2Memory {
			return errors.New("Password Memory must be >= 19456 KB in ProductionMode")
		}
		if c.Password.Time < 1 {
			return errors.New("Password Time must be >= 1")
		}
		if c.Password.Parallelism < 1 {
			return errors.New("Password Parallelism must be >= 1")
		}
		if c.Password.SaltLength < 16 {
			return errors.New("Password SaltLength must be >= 16")
		}
		if c.Password.KeyLength < 16 {
			return errors.New("Password KeyLength must be >= 16")
		}
	case "md5":
		if c.Security.ProductionMode {
			return errors.New("Password Scheme md5 is not allowed in ProductionMode")
		}
	default:
		return errors.New("Password Scheme must be 'migrating', 'argon2id' or 'md5'")
	}

	// Provider
	if c.Provider.Timeout <= 0 {
		return errors.New("Provider Timeout must be > 0")
	}

	// Store
	if c.Store.Timeout <= 0 {
		return errors.New("Store Timeout must be > 0")
	}
	if c.Store.MaxCASRetries <= 0 {
		return errors.New("Store MaxCASRetries must be > 0")
	}
	if c.Revocation.Timeout <= 0 {
		return errors.New("Revocation Timeout must be > 0")
	}

	// Security
	if c.Security.EnableIPThrottle {
		if c.Security.MaxIPAttempts <= 0 {
			return errors.New("Security MaxIPAttempts must be > 0 when EnableIPThrottle is true")
		}
		if c.Security.IPThrottleWindow <= 0 {
			return errors.New("Security IPThrottleWindow must be > 0 when EnableIPThrottle is true")
		}
	}
	if c.Security.ProductionMode && !c.Security.VerifyPayloadSignature {
		return errors.New("Security VerifyPayloadSignature must be true in ProductionMode")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}
