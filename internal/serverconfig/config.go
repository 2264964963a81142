// Package serverconfig loads the mpauth-server configuration: defaults, then
// MPAUTH_* environment variables, then command-line flags.
package serverconfig

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/MrEthical07/mpauth"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

// Server is the resolved server configuration.
type Server struct {
	ListenAddr      string
	MetricsAddr     string
	OTLPEndpoint    string
	OTLPInterval    time.Duration
	ShutdownTimeout time.Duration
	TrustProxy      bool

	LogLevel  string
	LogFormat string

	StoreBackend  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PostgresDSN   string
	MongoURI      string
	MongoDatabase string

	CaptchaEnabled bool
	CaptchaTTL     time.Duration

	SuperAdminUsername string
	SuperAdminPassword string

	Engine mpauth.Config
}

// serverEnv holds raw env values.
type serverEnv struct {
	ListenAddr      string        `env:"MPAUTH_LISTEN_ADDR"      envDefault:":8080"`
	MetricsAddr     string        `env:"MPAUTH_METRICS_ADDR"`
	OTLPEndpoint    string        `env:"MPAUTH_OTLP_ENDPOINT"`
	OTLPInterval    time.Duration `env:"MPAUTH_OTLP_INTERVAL"    envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"MPAUTH_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	TrustProxy      bool          `env:"MPAUTH_TRUST_PROXY"`

	LogLevel  string `env:"MPAUTH_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"MPAUTH_LOG_FORMAT" envDefault:"json"`

	StoreBackend  string `env:"MPAUTH_STORE"          envDefault:"memory"`
	RedisAddr     string `env:"MPAUTH_REDIS_ADDR"`
	RedisPassword string `env:"MPAUTH_REDIS_PASSWORD"`
	RedisDB       int    `env:"MPAUTH_REDIS_DB"`
	PostgresDSN   string `env:"MPAUTH_POSTGRES_DSN"`
	MongoURI      string `env:"MPAUTH_MONGO_URI"`
	MongoDatabase string `env:"MPAUTH_MONGO_DATABASE" envDefault:"mpauth"`

	CaptchaEnabled bool          `env:"MPAUTH_CAPTCHA_ENABLED" envDefault:"true"`
	CaptchaTTL     time.Duration `env:"MPAUTH_CAPTCHA_TTL"     envDefault:"5m"`

	SuperAdminUsername string `env:"MPAUTH_SUPER_ADMIN_USERNAME"`
	SuperAdminPassword string `env:"MPAUTH_SUPER_ADMIN_PASSWORD"`

	JWTSecret        string        `env:"MPAUTH_JWT_SECRET"`
	JWTSigningMethod string        `env:"MPAUTH_JWT_SIGNING_METHOD"`
	JWTPrivateKey    string        `env:"MPAUTH_JWT_PRIVATE_KEY"`
	JWTPublicKey     string        `env:"MPAUTH_JWT_PUBLIC_KEY"`
	JWTKeyID         string        `env:"MPAUTH_JWT_KEY_ID"`
	JWTIssuer        string        `env:"MPAUTH_JWT_ISSUER"`
	JWTAudience      string        `env:"MPAUTH_JWT_AUDIENCE"`
	AccessTTL        time.Duration `env:"MPAUTH_ACCESS_TTL"`

	LockoutMaxAttempts int           `env:"MPAUTH_LOCKOUT_MAX_ATTEMPTS"`
	LockoutDuration    time.Duration `env:"MPAUTH_LOCKOUT_DURATION"`

	PasswordScheme string `env:"MPAUTH_PASSWORD_SCHEME"`

	ProviderAppID    string        `env:"MPAUTH_PROVIDER_APP_ID"`
	ProviderSecret   string        `env:"MPAUTH_PROVIDER_SECRET"`
	ProviderEndpoint string        `env:"MPAUTH_PROVIDER_ENDPOINT"`
	ProviderTimeout  time.Duration `env:"MPAUTH_PROVIDER_TIMEOUT"`

	StoreTimeout time.Duration `env:"MPAUTH_STORE_TIMEOUT"`

	ProductionMode         bool  `env:"MPAUTH_PRODUCTION"`
	RequireCaptcha         bool  `env:"MPAUTH_REQUIRE_CAPTCHA"`
	VerifyPayloadSignature *bool `env:"MPAUTH_VERIFY_PAYLOAD_SIGNATURE"`
	EnableIPThrottle       bool  `env:"MPAUTH_IP_THROTTLE"`
	MaxIPAttempts          int   `env:"MPAUTH_IP_THROTTLE_MAX"`

	AuditEnabled   bool `env:"MPAUTH_AUDIT"`
	MetricsEnabled bool `env:"MPAUTH_METRICS" envDefault:"true"`
}

// Load resolves the configuration from environ (KEY=VALUE pairs, as from
// os.Environ) and args (without the program name). Flags win over the
// environment.
func Load(args []string, environ []string) (*Server, error) {
	var raw serverEnv
	if err := env.ParseWithOptions(&raw, env.Options{Environment: toMap(environ)}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	fs := flag.NewFlagSet("mpauth-server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&raw.ListenAddr, "addr", raw.ListenAddr, "HTTP listen address")
	fs.StringVar(&raw.MetricsAddr, "metrics-addr", raw.MetricsAddr, "separate listen address for /metrics (empty serves it on -addr)")
	fs.StringVar(&raw.OTLPEndpoint, "otlp-endpoint", raw.OTLPEndpoint, "OTLP/HTTP metrics endpoint URL (empty disables push)")
	fs.StringVar(&raw.StoreBackend, "store", raw.StoreBackend, "account store: memory|redis|postgres|mongo")
	fs.StringVar(&raw.RedisAddr, "redis-addr", raw.RedisAddr, "Redis address (empty starts an in-process Redis)")
	fs.StringVar(&raw.PostgresDSN, "postgres-dsn", raw.PostgresDSN, "Postgres DSN for -store=postgres")
	fs.StringVar(&raw.MongoURI, "mongo-uri", raw.MongoURI, "MongoDB URI for -store=mongo")
	fs.StringVar(&raw.LogLevel, "log-level", raw.LogLevel, "debug|info|warn|error")
	fs.StringVar(&raw.LogFormat, "log-format", raw.LogFormat, "json|text")
	fs.BoolVar(&raw.ProductionMode, "production", raw.ProductionMode, "enable production hardening")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	cfg := &Server{
		ListenAddr:         raw.ListenAddr,
		MetricsAddr:        raw.MetricsAddr,
		OTLPEndpoint:       raw.OTLPEndpoint,
		OTLPInterval:       raw.OTLPInterval,
		ShutdownTimeout:    raw.ShutdownTimeout,
		TrustProxy:         raw.TrustProxy,
		LogLevel:           raw.LogLevel,
		LogFormat:          raw.LogFormat,
		StoreBackend:       strings.ToLower(raw.StoreBackend),
		RedisAddr:          raw.RedisAddr,
		RedisPassword:      raw.RedisPassword,
		RedisDB:            raw.RedisDB,
		PostgresDSN:        raw.PostgresDSN,
		MongoURI:           raw.MongoURI,
		MongoDatabase:      raw.MongoDatabase,
		CaptchaEnabled:     raw.CaptchaEnabled,
		CaptchaTTL:         raw.CaptchaTTL,
		SuperAdminUsername: raw.SuperAdminUsername,
		SuperAdminPassword: raw.SuperAdminPassword,
		Engine:             engineConfig(raw),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func engineConfig(raw serverEnv) mpauth.Config {
	c := mpauth.DefaultConfig()

	if raw.JWTSigningMethod != "" {
		c.JWT.SigningMethod = strings.ToLower(raw.JWTSigningMethod)
	}
	if c.JWT.SigningMethod == "ed25519" {
		c.JWT.PrivateKey = []byte(raw.JWTPrivateKey)
		c.JWT.PublicKey = []byte(raw.JWTPublicKey)
	} else {
		c.JWT.PrivateKey = []byte(raw.JWTSecret)
	}
	c.JWT.KeyID = raw.JWTKeyID
	c.JWT.Issuer = raw.JWTIssuer
	c.JWT.Audience = raw.JWTAudience
	if raw.AccessTTL > 0 {
		c.JWT.AccessTTL = raw.AccessTTL
	}

	if raw.LockoutMaxAttempts > 0 {
		c.Lockout.MaxAttempts = raw.LockoutMaxAttempts
	}
	if raw.LockoutDuration > 0 {
		c.Lockout.Duration = raw.LockoutDuration
	}
	if raw.PasswordScheme != "" {
		c.Password.Scheme = strings.ToLower(raw.PasswordScheme)
	}

	c.Provider.AppID = raw.ProviderAppID
	c.Provider.Secret = raw.ProviderSecret
	if raw.ProviderEndpoint != "" {
		c.Provider.Endpoint = raw.ProviderEndpoint
	}
	if raw.ProviderTimeout > 0 {
		c.Provider.Timeout = raw.ProviderTimeout
	}
	if raw.StoreTimeout > 0 {
		c.Store.Timeout = raw.StoreTimeout
	}

	c.Security.ProductionMode = raw.ProductionMode
	c.Security.RequireCaptcha = raw.RequireCaptcha
	if raw.VerifyPayloadSignature != nil {
		c.Security.VerifyPayloadSignature = *raw.VerifyPayloadSignature
	}
	c.Security.EnableIPThrottle = raw.EnableIPThrottle
	if raw.MaxIPAttempts > 0 {
		c.Security.MaxIPAttempts = raw.MaxIPAttempts
	}

	c.Audit.Enabled = raw.AuditEnabled
	c.Metrics.Enabled = raw.MetricsEnabled
	c.Metrics.EnableLatencyHistograms = raw.MetricsEnabled
	return c
}

// Validate checks server-level settings and the embedded engine config.
func (s *Server) Validate() error {
	switch s.StoreBackend {
	case StoreMemory, StoreRedis:
	case StorePostgres:
		if s.PostgresDSN == "" {
			return errors.New("postgres store requires MPAUTH_POSTGRES_DSN")
		}
	case StoreMongo:
		if s.MongoURI == "" {
			return errors.New("mongo store requires MPAUTH_MONGO_URI")
		}
	default:
		return fmt.Errorf("unknown store backend %q", s.StoreBackend)
	}
	if s.OTLPEndpoint != "" && s.OTLPInterval <= 0 {
		return errors.New("MPAUTH_OTLP_INTERVAL must be positive")
	}
	if s.Engine.Security.ProductionMode && s.RedisAddr == "" {
		return errors.New("production mode requires MPAUTH_REDIS_ADDR")
	}
	if s.Engine.Security.RequireCaptcha && !s.CaptchaEnabled {
		return errors.New("MPAUTH_REQUIRE_CAPTCHA needs the captcha endpoint enabled")
	}
	if (s.SuperAdminUsername == "") != (s.SuperAdminPassword == "") {
		return errors.New("super admin needs both username and password")
	}
	if err := s.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}
	return nil
}

func toMap(environ []string) map[string]string {
	out := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			out[k] = v
		}
	}
	return out
}
