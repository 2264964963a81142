package mpauth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidInput reports a caller-correctable request (empty fields, bad shapes).
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidCredentials covers both unknown usernames and wrong passwords on sign-in.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is matched by *LockedError.
	ErrAccountLocked = errors.New("account locked")
	// ErrCaptchaMismatch is returned when the supplied captcha code differs from the session one.
	ErrCaptchaMismatch = errors.New("captcha mismatch")
	// ErrWrongPassword is returned by ResetPassword when the old password does not verify.
	ErrWrongPassword = errors.New("wrong password")
	// ErrAccountNotFound reports a missing account where the caller named it explicitly.
	ErrAccountNotFound = errors.New("account not found")
	// ErrUsernameTaken is returned by SignUp and by stores on a duplicate username.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrAlreadyRegistered is returned when an external identity already has an account.
	ErrAlreadyRegistered = errors.New("external identity already registered")
	// ErrNotRegistered is returned when an external identity has no account.
	ErrNotRegistered = errors.New("external identity not registered")
	// ErrProvider is matched by *ProviderError.
	ErrProvider = errors.New("identity provider error")
	// ErrProviderUnavailable reports a transport failure talking to the identity provider.
	ErrProviderUnavailable = errors.New("identity provider unavailable")
	// ErrDecryption reports a malformed or undecryptable profile payload.
	ErrDecryption = errors.New("payload decryption failed")
	// ErrSignatureMismatch reports a profile payload whose signature does not verify.
	ErrSignatureMismatch = errors.New("payload signature mismatch")
	// ErrTimeout reports an external call that exceeded its deadline. Callers may retry.
	ErrTimeout = errors.New("operation timed out")
	// ErrNotAuthenticated is the umbrella for every rejected bearer token.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrTokenInvalid wraps ErrNotAuthenticated.
	ErrTokenInvalid = fmt.Errorf("%w: invalid token", ErrNotAuthenticated)
	// ErrTokenExpired wraps ErrNotAuthenticated.
	ErrTokenExpired = fmt.Errorf("%w: token expired", ErrNotAuthenticated)
	// ErrTokenRevoked wraps ErrNotAuthenticated.
	ErrTokenRevoked = fmt.Errorf("%w: token revoked", ErrNotAuthenticated)
	// ErrSubjectGone wraps ErrNotAuthenticated and ErrAccountNotFound. The
	// token's account no longer resolves.
	ErrSubjectGone = fmt.Errorf("%w: %w", ErrNotAuthenticated, ErrAccountNotFound)
	// ErrRateLimited is returned when the per-IP sign-in throttle denies a request.
	ErrRateLimited = errors.New("sign-in rate limited")
	// ErrStoreConflict is returned when optimistic updates kept losing to concurrent writers.
	ErrStoreConflict = errors.New("account store conflict")
	// ErrStoreUnavailable wraps account store failures.
	ErrStoreUnavailable = errors.New("account store unavailable")
	// ErrRevocationUnavailable wraps revocation store failures. Validation fails closed on it.
	ErrRevocationUnavailable = errors.New("revocation store unavailable")
	// ErrEngineNotReady is returned by methods called on a nil or partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// ProviderError carries an identity-provider error payload verbatim.
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("identity provider error %d: %s", e.Code, e.Message)
}

// Is makes errors.Is(err, ErrProvider) hold.
func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

// LockedError reports an active lock and when it ends.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return "account locked until " + e.Until.UTC().Format(time.RFC3339)
}

// Is makes errors.Is(err, ErrAccountLocked) hold.
func (e *LockedError) Is(target error) bool { return target == ErrAccountLocked }

// Remaining returns how long the lock still holds at now.
func (e *LockedError) Remaining(now time.Time) time.Duration {
	if d := e.Until.Sub(now); d > 0 {
		return d
	}
	return 0
}

// IsNotAuthenticated reports whether err rejects a bearer token.
func IsNotAuthenticated(err error) bool {
	return errors.Is(err, ErrNotAuthenticated)
}
