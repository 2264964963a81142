package flows

import (
	"context"
	"time"
)

type ResetPasswordFailureKind int

const (
	ResetPasswordFailureNone ResetPasswordFailureKind = iota
	ResetPasswordFailureAccountNotFound
	ResetPasswordFailureInvalidInput
	ResetPasswordFailureWrongPassword
	ResetPasswordFailureConflict
	ResetPasswordFailureBackend
)

type ResetPasswordResult struct {
	Failure ResetPasswordFailureKind
	Backend BackendFailure
	Err     error
}

// ResetPasswordDeps captures password change dependencies.
type ResetPasswordDeps struct {
	MaxRetries     int
	Now            func() time.Time
	FindByID       func(context.Context, string) (*AccountRecord, error)
	CompareAndSwap func(ctx context.Context, id string, version int64, m AccountMutation) (bool, error)
	VerifyPassword func(password, encoded string) (bool, error)
	HashPassword   func(string) (string, error)
}

// RunResetPassword replaces the password of accountID after checking the old
// one. Checks run in order: account exists, inputs non-empty, old password.
func RunResetPassword(ctx context.Context, accountID, oldPassword, newPassword string, deps ResetPasswordDeps) ResetPasswordResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MaxRetries <= 0 {
		deps.MaxRetries = 1
	}

	var newHash string
	for attempt := 0; attempt < deps.MaxRetries; attempt++ {
		rec, err := deps.FindByID(ctx, accountID)
		if err != nil {
			return ResetPasswordResult{Failure: ResetPasswordFailureBackend, Backend: BackendStore, Err: err}
		}
		if rec == nil {
			return ResetPasswordResult{Failure: ResetPasswordFailureAccountNotFound}
		}
		if oldPassword == "" || newPassword == "" {
			return ResetPasswordResult{Failure: ResetPasswordFailureInvalidInput}
		}

		ok, err := deps.VerifyPassword(oldPassword, rec.PasswordHash)
		if err != nil || !ok {
			return ResetPasswordResult{Failure: ResetPasswordFailureWrongPassword}
		}

		if newHash == "" {
			newHash, err = deps.HashPassword(newPassword)
			if err != nil {
				return ResetPasswordResult{Failure: ResetPasswordFailureBackend, Backend: BackendHasher, Err: err}
			}
		}

		applied, err := deps.CompareAndSwap(ctx, rec.ID, rec.Version, AccountMutation{
			PasswordHash: newHash,
			UpdatedAt:    deps.Now(),
		})
		if err != nil {
			return ResetPasswordResult{Failure: ResetPasswordFailureBackend, Backend: BackendStore, Err: err}
		}
		if applied {
			return ResetPasswordResult{}
		}
	}

	return ResetPasswordResult{Failure: ResetPasswordFailureConflict}
}
