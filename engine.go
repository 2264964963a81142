package mpauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	internalflows "github.com/MrEthical07/mpauth/internal/flows"
	"github.com/MrEthical07/mpauth/internal/audit"
	"github.com/MrEthical07/mpauth/internal/logging"
	"github.com/MrEthical07/mpauth/internal/rate"
	"github.com/MrEthical07/mpauth/jwt"
	"github.com/MrEthical07/mpauth/password"
	"github.com/MrEthical07/mpauth/revocation"
)

// Engine verifies credentials, issues and revokes bearer tokens and talks to
// the identity provider. Build one with [Builder]; all methods are safe for
// concurrent use.
type Engine struct {
	config      Config
	accounts    AccountStore
	provider    IdentityProvider
	hasher      password.Hasher
	jwtManager  *jwt.Manager
	revocations *revocation.Store
	rateLimiter *rate.Limiter
	audit       *audit.Dispatcher
	metrics     *Metrics
	logger      logging.Logger
	now         func() time.Time
	flows       internalflows.Service
}

// Close drains the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Ready pings the revocation backend. Validate fails closed while it is
// down, so a server should not take traffic until Ready returns nil.
func (e *Engine) Ready(ctx context.Context) error {
	if e == nil || e.revocations == nil {
		return ErrEngineNotReady
	}
	ctx, cancel := context.WithTimeout(ctx, e.config.Revocation.Timeout)
	defer cancel()
	if err := e.revocations.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
	}
	return nil
}

// AuditDroppedByType breaks AuditDropped down by event type.
func (e *Engine) AuditDroppedByType() map[string]uint64 {
	if e == nil || e.audit == nil {
		return map[string]uint64{}
	}
	return e.audit.DroppedByType()
}

// MetricsSnapshot returns the current counter values.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.flows.Initialized()
}

// SignUp creates a username/password account and returns its id. No token is
// issued; the caller signs in separately.
func (e *Engine) SignUp(ctx context.Context, username, password string) (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}

	res := e.flows.SignUp(ctx, username, password)
	switch res.Failure {
	case internalflows.SignUpFailureNone:
		e.metricInc(MetricSignUpSuccess)
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventSignUpSuccess,
			success:   true,
			accountID: res.Account.ID,
			username:  username,
		})
		return res.Account.ID, nil
	case internalflows.SignUpFailureInvalidInput:
		return "", ErrInvalidInput
	case internalflows.SignUpFailureUsernameTaken:
		e.metricInc(MetricSignUpDuplicate)
		e.emitAudit(ctx, auditRecord{eventType: auditEventSignUpFailure, username: username, err: ErrUsernameTaken})
		return "", ErrUsernameTaken
	default:
		err := e.backendError(ctx, "signup", res.Backend, res.Err)
		e.emitAudit(ctx, auditRecord{eventType: auditEventSignUpFailure, username: username, err: err})
		return "", err
	}
}

// SignIn verifies credentials under the lockout policy and issues a token.
//
// Unknown usernames and wrong passwords both return ErrInvalidCredentials. A
// locked account returns *LockedError, also when this attempt engaged the
// lock. Attach the caller's address with WithClientIP to enable the per-IP
// throttle.
func (e *Engine) SignIn(ctx context.Context, req SignInRequest) (*SignInResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	res := e.flows.SignIn(ctx, internalflows.SignInInput{
		Username:           req.Username,
		Password:           req.Password,
		CaptchaCode:        req.CaptchaCode,
		SessionCaptchaCode: req.SessionCaptchaCode,
	})

	if res.Rehashed {
		e.metricInc(MetricPasswordRehashed)
		e.emitAudit(ctx, auditRecord{eventType: auditEventPasswordRehashed, success: true, accountID: res.AccountID})
	}
	if res.LockEngaged {
		e.metricInc(MetricLockEngaged)
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventLockEngaged,
			accountID: res.AccountID,
			username:  req.Username,
			err:       ErrAccountLocked,
			metadata:  lockMetadata(res.LockUntil),
		})
	}

	var err error
	switch res.Failure {
	case internalflows.SignInFailureNone:
		e.metricInc(MetricSignInSuccess)
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventSignInSuccess,
			success:   true,
			accountID: res.AccountID,
			username:  req.Username,
			tokenID:   res.Claims.TokenID(),
		})
		return &SignInResult{
			Token:     res.Token,
			AccountID: res.AccountID,
			ExpiresAt: res.Claims.Expiry(),
		}, nil
	case internalflows.SignInFailureInvalidInput:
		return nil, ErrInvalidInput
	case internalflows.SignInFailureCaptcha:
		e.metricInc(MetricCaptchaMismatch)
		err = ErrCaptchaMismatch
	case internalflows.SignInFailureRateLimited:
		e.metricInc(MetricSignInRateLimited)
		e.emitAudit(ctx, auditRecord{eventType: auditEventSignInRateLimited, username: req.Username, err: ErrRateLimited})
		return nil, ErrRateLimited
	case internalflows.SignInFailureInvalidCredentials:
		err = ErrInvalidCredentials
	case internalflows.SignInFailureLocked:
		e.metricInc(MetricSignInLocked)
		err = &LockedError{Until: res.LockUntil}
	case internalflows.SignInFailureConflict:
		e.metricInc(MetricStoreConflict)
		e.logger.Warn(ctx, "sign-in lost every compare-and-swap round", "op", "signin", "retries", e.config.Store.MaxCASRetries)
		err = ErrStoreConflict
	default:
		if res.Backend == internalflows.BackendRateLimiter {
			// The throttle fails closed.
			e.logger.Error(ctx, "sign-in throttle unavailable", "op", "signin", "err", res.Err)
			e.metricInc(MetricBackendFailure)
			err = ErrRateLimited
			break
		}
		err = e.backendError(ctx, "signin", res.Backend, res.Err)
	}

	e.metricInc(MetricSignInFailure)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventSignInFailure,
		accountID: res.AccountID,
		username:  req.Username,
		err:       err,
	})
	return nil, err
}

// Validate resolves a bearer token to its account. It checks the signature
// and expiry, then the revocation list, then that the account still exists.
// A revocation backend failure rejects the token.
func (e *Engine) Validate(ctx context.Context, token string) (*AuthResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	var start time.Time
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start = time.Now()
		defer func() { e.metrics.Observe(MetricValidateLatency, time.Since(start)) }()
	}

	res := e.flows.Validate(ctx, token)
	if res.Failure == internalflows.ValidateFailureNone {
		e.metricInc(MetricValidateSuccess)
		return &AuthResult{
			AccountID: res.Account.ID,
			Username:  res.Account.Username,
			TokenID:   res.Claims.TokenID(),
			ExpiresAt: res.Claims.Expiry(),
		}, nil
	}

	e.metricInc(MetricValidateFailure)
	if res.Failure == internalflows.ValidateFailureRevoked {
		e.metricInc(MetricRevokedTokenRejected)
	}
	return nil, e.tokenError(ctx, "validate", res.Failure, res.Backend, res.Err)
}

// SignOut revokes token. The revocation is durable before SignOut returns,
// so a later Validate on any instance rejects it. A token that is already
// missing, invalid, expired or revoked yields ErrNotAuthenticated.
func (e *Engine) SignOut(ctx context.Context, token string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	res := e.flows.SignOut(ctx, token)
	if res.Failure != internalflows.ValidateFailureNone {
		err := e.tokenError(ctx, "signout", res.Failure, res.Backend, res.Err)
		if res.Failure == internalflows.ValidateFailureRevoked {
			e.emitAudit(ctx, auditRecord{
				eventType: auditEventTokenRejected,
				accountID: res.Claims.AccountID(),
				tokenID:   res.Claims.TokenID(),
				err:       err,
			})
		}
		return err
	}

	e.metricInc(MetricSignOut)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventSignOut,
		success:   true,
		accountID: res.Claims.AccountID(),
		tokenID:   res.Claims.TokenID(),
	})
	return nil
}

// ResetPassword replaces the password of accountID after verifying the old
// one. It reports ErrAccountNotFound, ErrInvalidInput and ErrWrongPassword in
// that order of precedence.
func (e *Engine) ResetPassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	res := e.flows.ResetPassword(ctx, accountID, oldPassword, newPassword)

	var err error
	switch res.Failure {
	case internalflows.ResetPasswordFailureNone:
		e.metricInc(MetricPasswordResetSuccess)
		e.emitAudit(ctx, auditRecord{eventType: auditEventPasswordReset, success: true, accountID: accountID})
		return nil
	case internalflows.ResetPasswordFailureAccountNotFound:
		err = ErrAccountNotFound
	case internalflows.ResetPasswordFailureInvalidInput:
		err = ErrInvalidInput
	case internalflows.ResetPasswordFailureWrongPassword:
		err = ErrWrongPassword
	case internalflows.ResetPasswordFailureConflict:
		e.metricInc(MetricStoreConflict)
		err = ErrStoreConflict
	default:
		err = e.backendError(ctx, "reset_password", res.Backend, res.Err)
	}

	e.metricInc(MetricPasswordResetFailure)
	e.emitAudit(ctx, auditRecord{eventType: auditEventPasswordReset, accountID: accountID, err: err})
	return err
}

// InitializeSuperAdmin creates the administrator account when no account with
// username exists. It is safe to call on every start; created reports whether
// this call inserted the account.
func (e *Engine) InitializeSuperAdmin(ctx context.Context, username, password string) (bool, error) {
	if !e.ready() {
		return false, ErrEngineNotReady
	}
	if username == "" || password == "" {
		return false, ErrInvalidInput
	}

	res := e.flows.SignUp(ctx, username, password)
	switch res.Failure {
	case internalflows.SignUpFailureNone:
		e.logger.Info(ctx, "super admin account created", "account_id", res.Account.ID)
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventSuperAdminCreated,
			success:   true,
			accountID: res.Account.ID,
			username:  username,
		})
		return true, nil
	case internalflows.SignUpFailureUsernameTaken:
		return false, nil
	case internalflows.SignUpFailureInvalidInput:
		return false, ErrInvalidInput
	default:
		return false, e.backendError(ctx, "init_super_admin", res.Backend, res.Err)
	}
}

func (e *Engine) tokenError(ctx context.Context, op string, kind internalflows.ValidateFailureKind, backend internalflows.BackendFailure, cause error) error {
	switch kind {
	case internalflows.ValidateFailureMissing, internalflows.ValidateFailureInvalid:
		return ErrTokenInvalid
	case internalflows.ValidateFailureExpired:
		return ErrTokenExpired
	case internalflows.ValidateFailureRevoked:
		return ErrTokenRevoked
	case internalflows.ValidateFailureSubjectGone:
		return ErrSubjectGone
	default:
		return e.backendError(ctx, op, backend, cause)
	}
}

// backendError maps an infrastructure failure to its root sentinel and logs
// it. The cause is only kept as text so callers cannot match driver errors.
func (e *Engine) backendError(ctx context.Context, op string, backend internalflows.BackendFailure, cause error) error {
	e.metricInc(MetricBackendFailure)

	if errors.Is(cause, context.DeadlineExceeded) {
		e.logger.Warn(ctx, "backend call timed out", "op", op, "backend", backendName(backend), "err", cause)
		return ErrTimeout
	}

	var err error
	switch backend {
	case internalflows.BackendStore:
		if errors.Is(cause, ErrStoreUnavailable) {
			err = cause
		} else {
			err = fmt.Errorf("%w: %v", ErrStoreUnavailable, cause)
		}
	case internalflows.BackendRevocation:
		err = fmt.Errorf("%w: %v", ErrRevocationUnavailable, cause)
	case internalflows.BackendRateLimiter:
		err = fmt.Errorf("%w: %v", ErrRateLimited, cause)
	case internalflows.BackendHasher:
		if errors.Is(cause, password.ErrPasswordTooLong) || errors.Is(cause, password.ErrEmptyPassword) {
			return fmt.Errorf("%w: %v", ErrInvalidInput, cause)
		}
		err = fmt.Errorf("password hashing failed: %w", cause)
	case internalflows.BackendToken:
		err = fmt.Errorf("token issuance failed: %w", cause)
	case internalflows.BackendProvider:
		return e.providerError(ctx, op, cause)
	default:
		err = fmt.Errorf("%s failed: %w", op, cause)
	}

	e.logger.Error(ctx, "backend failure", "op", op, "backend", backendName(backend), "err", cause)
	return err
}

func backendName(b internalflows.BackendFailure) string {
	switch b {
	case internalflows.BackendStore:
		return "store"
	case internalflows.BackendRevocation:
		return "revocation"
	case internalflows.BackendRateLimiter:
		return "rate_limiter"
	case internalflows.BackendHasher:
		return "hasher"
	case internalflows.BackendToken:
		return "token"
	case internalflows.BackendProvider:
		return "provider"
	default:
		return "unknown"
	}
}
