package mpauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/mpauth/internal"
	internalflows "github.com/MrEthical07/mpauth/internal/flows"
	"github.com/MrEthical07/mpauth/internal/lockout"
	"github.com/MrEthical07/mpauth/internal/rate"
	"github.com/MrEthical07/mpauth/password"
)

func (e *Engine) flowDeps() internalflows.Deps {
	return internalflows.Deps{
		SignUp:        e.signUpFlowDeps(),
		SignIn:        e.signInFlowDeps(),
		Validate:      e.validateFlowDeps(),
		SignOut:       e.signOutFlowDeps(),
		ResetPassword: e.resetPasswordFlowDeps(),
		External:      e.externalFlowDeps(),
	}
}

func (e *Engine) signUpFlowDeps() internalflows.SignUpDeps {
	return internalflows.SignUpDeps{
		FindByUsername: e.findByUsername,
		Insert:         e.insertAccount,
		HashPassword:   e.hasher.Hash,
		IsDuplicate:    isDuplicate,
	}
}

func (e *Engine) signInFlowDeps() internalflows.SignInDeps {
	deps := internalflows.SignInDeps{
		RequireCaptcha: e.config.Security.RequireCaptcha,
		UpgradeOnLogin: e.config.Password.UpgradeOnLogin,
		Policy: lockout.Policy{
			MaxAttempts: e.config.Lockout.MaxAttempts,
			Duration:    e.config.Lockout.Duration,
		},
		MaxRetries:     e.config.Store.MaxCASRetries,
		Now:            e.now,
		FindByUsername: e.findByUsername,
		CompareAndSwap: e.compareAndSwap,
		VerifyPassword: e.hasher.Verify,
		HashPassword:   e.hasher.Hash,
		IssueToken:     e.jwtManager.Issue,
		Warn:           e.logger.Warn,
	}
	if m, ok := e.hasher.(*password.Migrating); ok {
		deps.NeedsRehash = m.NeedsRehash
	}
	if e.config.Security.EnableIPThrottle && e.rateLimiter != nil {
		deps.CheckRate = e.checkSignInRate
	}
	return deps
}

func (e *Engine) validateFlowDeps() internalflows.ValidateDeps {
	return internalflows.ValidateDeps{
		Verify:    e.jwtManager.Verify,
		IsRevoked: e.isRevoked,
		FindByID:  e.findByID,
	}
}

func (e *Engine) signOutFlowDeps() internalflows.SignOutDeps {
	return internalflows.SignOutDeps{
		Verify:    e.jwtManager.Verify,
		IsRevoked: e.isRevoked,
		Revoke:    e.revoke,
		Leeway:    e.config.JWT.Leeway,
	}
}

func (e *Engine) resetPasswordFlowDeps() internalflows.ResetPasswordDeps {
	return internalflows.ResetPasswordDeps{
		MaxRetries:     e.config.Store.MaxCASRetries,
		Now:            e.now,
		FindByID:       e.findByID,
		CompareAndSwap: e.compareAndSwap,
		VerifyPassword: e.hasher.Verify,
		HashPassword:   e.hasher.Hash,
	}
}

func (e *Engine) externalFlowDeps() internalflows.ExternalDeps {
	return internalflows.ExternalDeps{
		AppID:             e.config.Provider.AppID,
		VerifySignature:   e.config.Security.VerifyPayloadSignature,
		Exchange:          e.exchange,
		FindByUsername:    e.findByUsername,
		Insert:            e.insertAccount,
		IsDuplicate:       isDuplicate,
		HashPassword:      e.hasher.Hash,
		PlaceholderSecret: internal.NewPlaceholderSecret,
		IssueToken:        e.jwtManager.Issue,
		Warn:              e.logger.Warn,
	}
}

func (e *Engine) findByUsername(ctx context.Context, username string) (*internalflows.AccountRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.Store.Timeout)
	defer cancel()

	acc, err := e.accounts.FindByUsername(ctx, username)
	if err != nil {
		return nil, deadlineAware(ctx, err)
	}
	return toFlowAccount(acc), nil
}

func (e *Engine) findByID(ctx context.Context, id string) (*internalflows.AccountRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.Store.Timeout)
	defer cancel()

	acc, err := e.accounts.FindByID(ctx, id)
	if err != nil {
		return nil, deadlineAware(ctx, err)
	}
	return toFlowAccount(acc), nil
}

func (e *Engine) insertAccount(ctx context.Context, username, passwordHash string) (*internalflows.AccountRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.Store.Timeout)
	defer cancel()

	now := e.now()
	acc, err := e.accounts.Insert(ctx, &Account{
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, deadlineAware(ctx, err)
	}
	return toFlowAccount(acc), nil
}

func (e *Engine) compareAndSwap(ctx context.Context, id string, version int64, m internalflows.AccountMutation) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.Store.Timeout)
	defer cancel()

	acc, err := e.accounts.AtomicUpdate(ctx, id, version, fromFlowMutation(m))
	if err != nil {
		return false, deadlineAware(ctx, err)
	}
	return acc != nil, nil
}

func (e *Engine) isRevoked(ctx context.Context, tokenID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.Revocation.Timeout)
	defer cancel()

	revoked, err := e.revocations.IsRevoked(ctx, tokenID)
	if err != nil {
		return false, deadlineAware(ctx, err)
	}
	return revoked, nil
}

func (e *Engine) revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, e.config.Revocation.Timeout)
	defer cancel()

	return deadlineAware(ctx, e.revocations.Revoke(ctx, tokenID, expiresAt))
}

func (e *Engine) checkSignInRate(ctx context.Context) (bool, error) {
	ip := clientIPFromContext(ctx)
	ctx, cancel := context.WithTimeout(ctx, e.config.Revocation.Timeout)
	defer cancel()

	err := e.rateLimiter.Allow(ctx, ip)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, rate.ErrRateLimited):
		return true, nil
	default:
		return false, deadlineAware(ctx, err)
	}
}

func (e *Engine) exchange(ctx context.Context, code string) (internalflows.ExternalIdentityRecord, error) {
	if e.provider == nil {
		return internalflows.ExternalIdentityRecord{}, ErrEngineNotReady
	}
	ctx, cancel := context.WithTimeout(ctx, e.config.Provider.Timeout)
	defer cancel()

	ident, err := e.provider.Exchange(ctx, code)
	if err != nil {
		return internalflows.ExternalIdentityRecord{}, deadlineAware(ctx, err)
	}
	return internalflows.ExternalIdentityRecord{
		OpenID:     ident.OpenID,
		SessionKey: ident.SessionKey,
		UnionID:    ident.UnionID,
	}, nil
}

// deadlineAware keeps context.DeadlineExceeded matchable when a backend
// flattened the cause into text.
func deadlineAware(ctx context.Context, err error) error {
	if err == nil || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
	}
	return err
}

func isDuplicate(err error) bool {
	return errors.Is(err, ErrUsernameTaken)
}

func toFlowAccount(a *Account) *internalflows.AccountRecord {
	if a == nil {
		return nil
	}
	return &internalflows.AccountRecord{
		ID:            a.ID,
		Username:      a.Username,
		PasswordHash:  a.PasswordHash,
		LoginAttempts: a.LoginAttempts,
		LockUntil:     a.LockUntil,
		Version:       a.Version,
	}
}

func fromFlowMutation(m internalflows.AccountMutation) AccountUpdate {
	return AccountUpdate{
		SetLockout:    m.SetLockout,
		LoginAttempts: m.LoginAttempts,
		LockUntil:     m.LockUntil,
		PasswordHash:  m.PasswordHash,
		UpdatedAt:     m.UpdatedAt,
	}
}
