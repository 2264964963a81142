package mpauth

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventSignUpSuccess         = "signup_success"
	auditEventSignUpFailure         = "signup_failure"
	auditEventSignInSuccess         = "signin_success"
	auditEventSignInFailure         = "signin_failure"
	auditEventSignInRateLimited     = "signin_rate_limited"
	auditEventLockEngaged           = "lock_engaged"
	auditEventPasswordRehashed      = "password_rehashed"
	auditEventSignOut               = "signout"
	auditEventPasswordReset         = "password_reset"
	auditEventSuperAdminCreated     = "super_admin_created"
	auditEventExternalSignUp        = "external_signup"
	auditEventExternalSignIn        = "external_signin"
	auditEventProfileDecrypted      = "profile_decrypted"
	auditEventProfileUnverified     = "profile_signature_unverified"
	auditEventTokenRejected         = "token_rejected"
)

// criticalAuditEvents are never dropped under backpressure: they record
// state changes an operator must be able to reconstruct.
var criticalAuditEvents = []string{
	auditEventLockEngaged,
	auditEventSignOut,
	auditEventPasswordReset,
	auditEventSuperAdminCreated,
}

// AuditErrorCode is the stable error label written into AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrInvalidInput       AuditErrorCode = "invalid_input"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrCaptcha            AuditErrorCode = "captcha_mismatch"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrWrongPassword      AuditErrorCode = "wrong_password"
	auditErrAccountNotFound    AuditErrorCode = "account_not_found"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrNotRegistered      AuditErrorCode = "not_registered"
	auditErrProvider           AuditErrorCode = "provider_error"
	auditErrSignature          AuditErrorCode = "signature_mismatch"
	auditErrDecryption         AuditErrorCode = "decryption_failed"
	auditErrTokenExpired       AuditErrorCode = "token_expired"
	auditErrTokenRevoked       AuditErrorCode = "token_revoked"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrConflict           AuditErrorCode = "conflict"
	auditErrTimeout            AuditErrorCode = "timeout"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

type auditRecord struct {
	eventType string
	success   bool
	accountID string
	username  string
	tokenID   string
	err       error
	metadata  func() map[string]string
}

func (e *Engine) emitAudit(ctx context.Context, rec auditRecord) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if rec.metadata != nil {
		metadata = rec.metadata()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: rec.eventType,
		AccountID: rec.accountID,
		Username:  rec.username,
		TokenID:   rec.tokenID,
		IP:        clientIPFromContext(ctx),
		Success:   rec.success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(rec.err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return auditErrInvalidInput
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrCaptchaMismatch):
		return auditErrCaptcha
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrWrongPassword):
		return auditErrWrongPassword
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenRevoked):
		return auditErrTokenRevoked
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrAccountNotFound):
		return auditErrAccountNotFound
	case errors.Is(err, ErrUsernameTaken),
		errors.Is(err, ErrAlreadyRegistered):
		return auditErrDuplicate
	case errors.Is(err, ErrNotRegistered):
		return auditErrNotRegistered
	case errors.Is(err, ErrProvider):
		return auditErrProvider
	case errors.Is(err, ErrSignatureMismatch):
		return auditErrSignature
	case errors.Is(err, ErrDecryption):
		return auditErrDecryption
	case errors.Is(err, ErrStoreConflict):
		return auditErrConflict
	case errors.Is(err, ErrTimeout):
		return auditErrTimeout
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrRevocationUnavailable),
		errors.Is(err, ErrProviderUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}

func lockMetadata(until time.Time) func() map[string]string {
	return func() map[string]string {
		return map[string]string{"lock_until": until.UTC().Format(time.RFC3339)}
	}
}
