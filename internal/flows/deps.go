package flows

import "time"

// Deps groups flow dependency sets. Root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	SignUp        SignUpDeps
	SignIn        SignInDeps
	Validate      ValidateDeps
	SignOut       SignOutDeps
	ResetPassword ResetPasswordDeps
	External      ExternalDeps
}

// AccountRecord is the flow-local view of a stored account.
type AccountRecord struct {
	ID            string
	Username      string
	PasswordHash  string
	LoginAttempts int
	LockUntil     *time.Time
	Version       int64
}

// AccountMutation is the flow-local mirror of the root AccountUpdate.
type AccountMutation struct {
	SetLockout    bool
	LoginAttempts int
	LockUntil     *time.Time
	PasswordHash  string
	UpdatedAt     time.Time
}

// BackendFailure tags which dependency produced a backend error so the engine
// can wrap it with the matching sentinel.
type BackendFailure int

const (
	BackendNone BackendFailure = iota
	BackendStore
	BackendRevocation
	BackendRateLimiter
	BackendHasher
	BackendToken
	BackendProvider
)
