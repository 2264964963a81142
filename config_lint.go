package mpauth

import (
	"errors"
	"strings"
	"time"
)

// LintSeverity ranks configuration warnings.
type LintSeverity int

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "INFO"
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// LintWarning is one advisory finding. Unlike Validate errors, warnings do
// not prevent Build.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult is the ordered list of findings returned by Config.Lint.
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, 0, len(r))
	for _, w := range r {
		out = append(out, w.Code)
	}
	return out
}

// BySeverity returns the warnings at or above min.
func (r LintResult) BySeverity(min LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError joins every warning at or above min into one error, or returns nil.
func (r LintResult) AsError(min LintSeverity) error {
	selected := r.BySeverity(min)
	if len(selected) == 0 {
		return nil
	}
	parts := make([]string, 0, len(selected))
	for _, w := range selected {
		parts = append(parts, w.Severity.String()+" "+w.Code+": "+w.Message)
	}
	return errors.New("config lint: " + strings.Join(parts, "; "))
}

// Lint reports settings that are valid but weaken the deployment.
func (c Config) Lint() LintResult {
	var out LintResult
	add := func(code string, sev LintSeverity, msg string) {
		out = append(out, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	if c.JWT.AccessTTL > 10*time.Minute {
		add("access_ttl_long", LintWarn, "access tokens live longer than 10m; revocation is the only way to end them early")
	}
	if c.JWT.Leeway > 60*time.Second {
		add("leeway_large", LintWarn, "JWT leeway above 60s extends every token's effective lifetime")
	}
	if c.JWT.SigningMethod == "hs256" {
		add("hs256_shared_secret", LintInfo, "hs256 requires every verifier to hold the signing secret")
	}

	if c.Password.Scheme == "md5" {
		add("password_md5", LintHigh, "md5 digests are unsalted and fast to brute force")
	}
	if c.Password.Scheme == "migrating" && !c.Password.UpgradeOnLogin {
		add("legacy_hashes_kept", LintWarn, "legacy md5 digests are accepted but never upgraded")
	}
	if c.Password.Scheme != "md5" && c.Password.Memory < 64*1024 {
		add("argon2_memory_low", LintWarn, "argon2id memory below 64 MiB")
	}

	if c.Lockout.MaxAttempts > 10 {
		add("lockout_lenient", LintWarn, "more than 10 attempts before lockout")
	}
	if c.Lockout.Duration < time.Minute {
		add("lockout_short", LintWarn, "lock lasts less than a minute")
	}

	if !c.Security.VerifyPayloadSignature {
		add("payload_signature_off", LintHigh, "profile payload signatures are accepted without verification")
	}
	if !c.Security.EnableIPThrottle {
		add("ip_throttle_disabled", LintInfo, "per-IP sign-in throttle is off; only per-account lockout applies")
	}
	if !c.Security.RequireCaptcha {
		add("captcha_optional", LintInfo, "sign-in accepts requests without a captcha")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", LintInfo, "audit events are not recorded")
	}

	return out
}
