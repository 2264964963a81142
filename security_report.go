package mpauth

import "time"

// SecurityReport summarises the effective security posture of an Engine.
type SecurityReport struct {
	ProductionMode           bool
	SigningAlgorithm         string
	AccessTTL                time.Duration
	PasswordScheme           string
	Argon2                   PasswordConfigReport
	UpgradeHashOnLogin       bool
	LockoutMaxAttempts       int
	LockoutDuration          time.Duration
	CaptchaRequired          bool
	PayloadSignatureVerified bool
	IPThrottleActive         bool
	ExternalIdentityEnabled  bool
	AuditEnabled             bool
}

type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	return SecurityReport{
		ProductionMode:   e.config.Security.ProductionMode,
		SigningAlgorithm: e.config.JWT.SigningMethod,
		AccessTTL:        e.config.JWT.AccessTTL,
		PasswordScheme:   e.config.Password.Scheme,
		Argon2: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		UpgradeHashOnLogin:       e.config.Password.UpgradeOnLogin,
		LockoutMaxAttempts:       e.config.Lockout.MaxAttempts,
		LockoutDuration:          e.config.Lockout.Duration,
		CaptchaRequired:          e.config.Security.RequireCaptcha,
		PayloadSignatureVerified: e.config.Security.VerifyPayloadSignature,
		IPThrottleActive:         e.rateLimiter != nil,
		ExternalIdentityEnabled:  e.provider != nil,
		AuditEnabled:             e.audit != nil,
	}
}
