package mpauth

import (
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/mpauth/internal/audit"
	internalflows "github.com/MrEthical07/mpauth/internal/flows"
	"github.com/MrEthical07/mpauth/internal/logging"
	"github.com/MrEthical07/mpauth/internal/rate"
	"github.com/MrEthical07/mpauth/jwt"
	"github.com/MrEthical07/mpauth/password"
	"github.com/MrEthical07/mpauth/revocation"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. A Builder can be built once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts  AccountStore
	provider  IdentityProvider
	auditSink AuditSink
	logger    *slog.Logger
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing token revocation and the sign-in throttle.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccountStore sets the account persistence backend.
func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.accounts = store
	return b
}

// WithIdentityProvider sets the provider used by the external identity
// methods. Without one those methods return ErrEngineNotReady.
func (b *Builder) WithIdentityProvider(p IdentityProvider) *Builder {
	b.provider = p
	return b
}

// WithAuditSink sets where audit events go when auditing is enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger for infrastructure failures. The default
// discards everything.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock overrides the time source for lockout and token issuance.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.accounts == nil {
		return nil, errors.New("account store required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	engine := &Engine{
		config:   cloneConfig(cfg),
		accounts: b.accounts,
		provider: b.provider,
		now:      now,
		metrics:  NewMetrics(cfg.Metrics),
		logger:   logging.NewSlogLogger(b.logger),
	}

	engine.revocations = revocation.NewStore(b.redis, cfg.Revocation.RedisPrefix).WithClock(now)
	if cfg.Security.EnableIPThrottle {
		engine.rateLimiter = rate.New(b.redis, rate.Config{
			MaxAttempts: cfg.Security.MaxIPAttempts,
			Window:      cfg.Security.IPThrottleWindow,
			Prefix:      cfg.Security.IPThrottleRedisPrefix,
		})
	}

	sink := b.auditSink
	if sink == nil && b.logger != nil {
		sink = audit.NewSlogSink(b.logger)
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Critical:   criticalAuditEvents,
	}, sink)

	hasher, err := password.New(password.Scheme(cfg.Password.Scheme), password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MaxPasswordBytes: cfg.Password.MaxBytes,
	})
	if err != nil {
		return nil, err
	}
	engine.hasher = hasher

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	engine.flows = internalflows.New(engine.flowDeps())

	b.built = true

	return engine, nil
}
