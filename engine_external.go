package mpauth

import (
	"context"
	"errors"
	"fmt"

	internalflows "github.com/MrEthical07/mpauth/internal/flows"
	"github.com/MrEthical07/mpauth/payload"
)

// ExternalProfile is a decrypted, watermark-checked identity-provider profile.
type ExternalProfile = payload.Profile

// ExchangeCode trades a client login code for the external identity.
// Provider-reported failures are returned as *ProviderError unchanged.
func (e *Engine) ExchangeCode(ctx context.Context, code string) (ExternalIdentity, error) {
	if !e.ready() {
		return ExternalIdentity{}, ErrEngineNotReady
	}
	if code == "" {
		return ExternalIdentity{}, ErrInvalidInput
	}

	ident, err := e.exchange(ctx, code)
	if err != nil {
		return ExternalIdentity{}, e.providerError(ctx, "exchange_code", err)
	}
	return ExternalIdentity{
		OpenID:     ident.OpenID,
		SessionKey: ident.SessionKey,
		UnionID:    ident.UnionID,
	}, nil
}

// SignUpViaExternalIdentity creates an account keyed by the external open id
// and signs it in. The account carries a password nobody knows, so it can
// only ever sign in through the provider.
func (e *Engine) SignUpViaExternalIdentity(ctx context.Context, code string) (*SignInResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	res := e.flows.ExternalSignUp(ctx, code)
	if res.Failure != internalflows.ExternalFailureNone {
		err := e.externalError(ctx, "external_signup", res.Failure, res.Backend, res.Err)
		e.metricInc(MetricExternalFailure)
		e.emitAudit(ctx, auditRecord{eventType: auditEventExternalSignUp, username: res.Identity.OpenID, err: err})
		return nil, err
	}

	e.metricInc(MetricExternalSignUp)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventExternalSignUp,
		success:   true,
		accountID: res.Account.ID,
		username:  res.Identity.OpenID,
		tokenID:   res.Claims.TokenID(),
	})
	return &SignInResult{Token: res.Token, AccountID: res.Account.ID, ExpiresAt: res.Claims.Expiry()}, nil
}

// SignInViaExternalIdentity issues a token for a registered external
// identity. The lockout policy does not apply.
func (e *Engine) SignInViaExternalIdentity(ctx context.Context, code string) (*SignInResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	res := e.flows.ExternalSignIn(ctx, code)
	if res.Failure != internalflows.ExternalFailureNone {
		err := e.externalError(ctx, "external_signin", res.Failure, res.Backend, res.Err)
		e.metricInc(MetricExternalFailure)
		e.emitAudit(ctx, auditRecord{eventType: auditEventExternalSignIn, username: res.Identity.OpenID, err: err})
		return nil, err
	}

	e.metricInc(MetricExternalSignIn)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventExternalSignIn,
		success:   true,
		accountID: res.Account.ID,
		username:  res.Identity.OpenID,
		tokenID:   res.Claims.TokenID(),
	})
	return &SignInResult{Token: res.Token, AccountID: res.Account.ID, ExpiresAt: res.Claims.Expiry()}, nil
}

// DecryptProfile exchanges req.Code for a session key, checks the payload
// signature when enabled and decrypts the profile. The profile watermark must
// name the configured application.
func (e *Engine) DecryptProfile(ctx context.Context, req ProfileRequest) (*ExternalProfile, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	res := e.flows.DecryptProfile(ctx, internalflows.ProfileInput{
		Code:          req.Code,
		EncryptedData: req.EncryptedData,
		IV:            req.IV,
		RawData:       req.RawData,
		Signature:     req.Signature,
	})
	if res.Failure != internalflows.ExternalFailureNone {
		err := e.externalError(ctx, "decrypt_profile", res.Failure, res.Backend, res.Err)
		e.metricInc(MetricProfileRejected)
		e.emitAudit(ctx, auditRecord{eventType: auditEventProfileDecrypted, username: res.Identity.OpenID, err: err})
		return nil, err
	}

	e.metricInc(MetricProfileDecrypted)
	if !res.SignatureChecked {
		e.metricInc(MetricProfileUnverified)
		e.emitAudit(ctx, auditRecord{eventType: auditEventProfileUnverified, success: true, username: res.Identity.OpenID})
	} else {
		e.emitAudit(ctx, auditRecord{eventType: auditEventProfileDecrypted, success: true, username: res.Identity.OpenID})
	}
	return res.Profile, nil
}

func (e *Engine) externalError(ctx context.Context, op string, kind internalflows.ExternalFailureKind, backend internalflows.BackendFailure, cause error) error {
	switch kind {
	case internalflows.ExternalFailureInvalidInput:
		return ErrInvalidInput
	case internalflows.ExternalFailureProvider:
		return e.providerError(ctx, op, cause)
	case internalflows.ExternalFailureAlreadyRegistered:
		return ErrAlreadyRegistered
	case internalflows.ExternalFailureNotRegistered:
		return ErrNotRegistered
	case internalflows.ExternalFailureSignature:
		return ErrSignatureMismatch
	case internalflows.ExternalFailureDecryption:
		return fmt.Errorf("%w: %v", ErrDecryption, cause)
	default:
		return e.backendError(ctx, op, backend, cause)
	}
}

func (e *Engine) providerError(ctx context.Context, op string, cause error) error {
	var perr *ProviderError
	switch {
	case errors.As(cause, &perr):
		e.logger.Warn(ctx, "identity provider rejected code", "op", op, "code", perr.Code)
		return perr
	case errors.Is(cause, ErrEngineNotReady):
		return ErrEngineNotReady
	case errors.Is(cause, context.DeadlineExceeded):
		e.logger.Warn(ctx, "identity provider timed out", "op", op, "err", cause)
		return ErrTimeout
	case errors.Is(cause, ErrProviderUnavailable):
		e.logger.Error(ctx, "identity provider unavailable", "op", op, "err", cause)
		return cause
	default:
		e.logger.Error(ctx, "identity provider call failed", "op", op, "err", cause)
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, cause)
	}
}
