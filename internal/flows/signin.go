package flows

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/MrEthical07/mpauth/internal/lockout"
	"github.com/MrEthical07/mpauth/jwt"
)

// SignInFailureKind classifies sign-in failures for root-level mapping.
type SignInFailureKind int

const (
	SignInFailureNone SignInFailureKind = iota
	SignInFailureInvalidInput
	SignInFailureCaptcha
	SignInFailureRateLimited
	SignInFailureInvalidCredentials
	SignInFailureLocked
	SignInFailureConflict
	SignInFailureBackend
)

// SignInInput is the flow-local sign-in request.
type SignInInput struct {
	Username           string
	Password           string
	CaptchaCode        string
	SessionCaptchaCode string
}

// SignInResult carries either an issued token or a classified failure.
type SignInResult struct {
	Failure SignInFailureKind
	Backend BackendFailure
	Err     error

	AccountID   string
	Decision    lockout.Decision
	LockEngaged bool
	LockUntil   time.Time
	Rehashed    bool

	Token  string
	Claims *jwt.Claims
}

// SignInDeps captures sign-in dependencies. Store calls receive a context that
// is detached from caller cancellation; the engine bounds each call with its
// own timeout.
type SignInDeps struct {
	RequireCaptcha bool
	UpgradeOnLogin bool
	Policy         lockout.Policy
	MaxRetries     int
	Now            func() time.Time

	// CheckRate returns true when the caller is over its sign-in budget.
	CheckRate      func(context.Context) (bool, error)
	FindByUsername func(context.Context, string) (*AccountRecord, error)
	CompareAndSwap func(ctx context.Context, id string, version int64, m AccountMutation) (bool, error)
	VerifyPassword func(password, encoded string) (bool, error)
	NeedsRehash    func(encoded string) bool
	HashPassword   func(string) (string, error)
	IssueToken     func(accountID string) (string, *jwt.Claims, error)
	Warn           func(ctx context.Context, msg string, args ...any)
}

// CaptchaMatches compares the supplied captcha code with the one issued to the
// session in constant time. An empty session code only passes when captcha is
// optional and nothing was supplied either.
func CaptchaMatches(supplied, session string, required bool) bool {
	if session == "" && required {
		return false
	}
	if len(supplied) != len(session) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(session)) == 1
}

// RunSignIn verifies credentials under the lockout policy and issues a token.
//
// The read-evaluate-write cycle is an optimistic compare-and-swap on the
// account version. A lost race re-reads and re-evaluates, so every attempt is
// counted exactly once.
func RunSignIn(ctx context.Context, in SignInInput, deps SignInDeps) SignInResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Warn == nil {
		deps.Warn = func(context.Context, string, ...any) {}
	}
	if deps.MaxRetries <= 0 {
		deps.MaxRetries = 1
	}

	if in.Username == "" || in.Password == "" {
		return SignInResult{Failure: SignInFailureInvalidInput}
	}
	if !CaptchaMatches(in.CaptchaCode, in.SessionCaptchaCode, deps.RequireCaptcha) {
		return SignInResult{Failure: SignInFailureCaptcha}
	}

	if deps.CheckRate != nil {
		limited, err := deps.CheckRate(ctx)
		if err != nil {
			return SignInResult{Failure: SignInFailureBackend, Backend: BackendRateLimiter, Err: err}
		}
		if limited {
			return SignInResult{Failure: SignInFailureRateLimited}
		}
	}

	// A recorded failure must survive a client disconnect.
	base := context.WithoutCancel(ctx)

	// Hash verification is slow; a retry against the same digest reuses the answer.
	verified := make(map[string]bool, 1)

	for attempt := 0; attempt < deps.MaxRetries; attempt++ {
		rec, err := deps.FindByUsername(base, in.Username)
		if err != nil {
			return SignInResult{Failure: SignInFailureBackend, Backend: BackendStore, Err: err}
		}

		var state *lockout.State
		if rec != nil {
			state = &lockout.State{LoginAttempts: rec.LoginAttempts, LockUntil: rec.LockUntil}
		}

		check := func() bool {
			if ok, seen := verified[rec.PasswordHash]; seen {
				return ok
			}
			ok, err := deps.VerifyPassword(in.Password, rec.PasswordHash)
			if err != nil {
				deps.Warn(ctx, "stored password digest not recognized", "account_id", rec.ID, "err", err)
				ok = false
			}
			verified[rec.PasswordHash] = ok
			return ok
		}

		now := deps.Now()
		out := lockout.Evaluate(state, check, now, deps.Policy)
		if out.Decision == lockout.AccountNotFound {
			return SignInResult{Failure: SignInFailureInvalidCredentials, Decision: out.Decision}
		}

		m := AccountMutation{UpdatedAt: now}
		write := out.Write
		if out.Write {
			m.SetLockout = true
			m.LoginAttempts = out.Next.LoginAttempts
			m.LockUntil = out.Next.LockUntil
		}

		rehashed := false
		if out.Decision == lockout.Authenticated && deps.UpgradeOnLogin &&
			deps.NeedsRehash != nil && deps.HashPassword != nil &&
			deps.NeedsRehash(rec.PasswordHash) {
			upgraded, err := deps.HashPassword(in.Password)
			if err != nil {
				deps.Warn(ctx, "password hash upgrade generation failed", "account_id", rec.ID, "err", err)
			} else {
				m.PasswordHash = upgraded
				write = true
				rehashed = true
			}
		}

		if write {
			applied, err := deps.CompareAndSwap(base, rec.ID, rec.Version, m)
			if err != nil {
				return SignInResult{Failure: SignInFailureBackend, Backend: BackendStore, Err: err}
			}
			if !applied {
				continue
			}
		}

		res := SignInResult{
			AccountID:   rec.ID,
			Decision:    out.Decision,
			LockEngaged: out.LockEngaged,
			Rehashed:    rehashed,
		}

		switch {
		case out.Decision == lockout.AccountLocked:
			res.Failure = SignInFailureLocked
			res.LockUntil = *state.LockUntil
			return res
		case out.LockEngaged:
			res.Failure = SignInFailureLocked
			res.LockUntil = *out.Next.LockUntil
			return res
		case out.Decision == lockout.PasswordIncorrect:
			res.Failure = SignInFailureInvalidCredentials
			return res
		}

		token, claims, err := deps.IssueToken(rec.ID)
		if err != nil {
			return SignInResult{Failure: SignInFailureBackend, Backend: BackendToken, Err: err, AccountID: rec.ID}
		}
		res.Token = token
		res.Claims = claims
		return res
	}

	return SignInResult{Failure: SignInFailureConflict}
}
