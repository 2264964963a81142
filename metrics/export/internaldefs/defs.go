package internaldefs

import (
	"github.com/MrEthical07/mpauth"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   mpauth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   mpauth.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter exported for Engine.AuditDropped.
const AuditDroppedName = "mpauth_audit_dropped_total"

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: mpauth.MetricSignUpSuccess, Name: "mpauth_signup_success_total", Help: "Accounts created through username and password."},
	{ID: mpauth.MetricSignUpDuplicate, Name: "mpauth_signup_duplicate_total", Help: "Sign-ups rejected because the username was taken."},
	{ID: mpauth.MetricSignInSuccess, Name: "mpauth_signin_success_total", Help: "Successful password sign-ins."},
	{ID: mpauth.MetricSignInFailure, Name: "mpauth_signin_failure_total", Help: "Failed password sign-ins of any kind."},
	{ID: mpauth.MetricSignInLocked, Name: "mpauth_signin_locked_total", Help: "Sign-ins rejected because the account was locked."},
	{ID: mpauth.MetricLockEngaged, Name: "mpauth_lock_engaged_total", Help: "Account locks engaged by repeated failures."},
	{ID: mpauth.MetricSignInRateLimited, Name: "mpauth_signin_rate_limited_total", Help: "Sign-ins denied by the per-IP throttle."},
	{ID: mpauth.MetricCaptchaMismatch, Name: "mpauth_captcha_mismatch_total", Help: "Sign-ins rejected for a wrong captcha code."},
	{ID: mpauth.MetricPasswordRehashed, Name: "mpauth_password_rehashed_total", Help: "Legacy password digests upgraded on sign-in."},
	{ID: mpauth.MetricStoreConflict, Name: "mpauth_store_conflict_total", Help: "Operations that exhausted compare-and-swap retries."},
	{ID: mpauth.MetricSignOut, Name: "mpauth_signout_total", Help: "Tokens revoked by sign-out."},
	{ID: mpauth.MetricValidateSuccess, Name: "mpauth_validate_success_total", Help: "Bearer tokens accepted."},
	{ID: mpauth.MetricValidateFailure, Name: "mpauth_validate_failure_total", Help: "Bearer tokens rejected."},
	{ID: mpauth.MetricRevokedTokenRejected, Name: "mpauth_revoked_token_rejected_total", Help: "Bearer tokens rejected as revoked."},
	{ID: mpauth.MetricPasswordResetSuccess, Name: "mpauth_password_reset_success_total", Help: "Successful password resets."},
	{ID: mpauth.MetricPasswordResetFailure, Name: "mpauth_password_reset_failure_total", Help: "Failed password resets."},
	{ID: mpauth.MetricExternalSignUp, Name: "mpauth_external_signup_total", Help: "Accounts created through the identity provider."},
	{ID: mpauth.MetricExternalSignIn, Name: "mpauth_external_signin_total", Help: "Sign-ins through the identity provider."},
	{ID: mpauth.MetricExternalFailure, Name: "mpauth_external_failure_total", Help: "Failed identity-provider sign-ups and sign-ins."},
	{ID: mpauth.MetricProfileDecrypted, Name: "mpauth_profile_decrypted_total", Help: "Profile payloads decrypted."},
	{ID: mpauth.MetricProfileRejected, Name: "mpauth_profile_rejected_total", Help: "Profile payloads rejected."},
	{ID: mpauth.MetricProfileUnverified, Name: "mpauth_profile_unverified_total", Help: "Profile payloads accepted without a signature check."},
	{ID: mpauth.MetricBackendFailure, Name: "mpauth_backend_failure_total", Help: "Store, revocation, throttle or provider failures."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: mpauth.MetricValidateLatency, Name: "mpauth_validate_latency_seconds", Help: "Validate latency histogram."},
}

// HistogramBounds are the upper bounds of the latency buckets in seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds spelled for instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling missing buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
