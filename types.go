package mpauth

import (
	"context"
	"time"
)

// Account is the persisted identity record. Profile fields are opaque to the
// engine and only carried through.
//
// LockUntil is non-nil only while a lock has been recorded; an expired value
// is cleared on the next sign-in evaluation rather than by a sweeper.
// Version increases by one on every successful AtomicUpdate.
type Account struct {
	ID           string
	Username     string
	PasswordHash string

	Nickname string
	Avatar   string
	Tel      string
	Email    string
	Gender   int
	Birthday *time.Time

	LoginAttempts int
	LockUntil     *time.Time
	Version       int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy of a.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	if a.LockUntil != nil {
		t := *a.LockUntil
		out.LockUntil = &t
	}
	if a.Birthday != nil {
		t := *a.Birthday
		out.Birthday = &t
	}
	return &out
}

// AccountUpdate is the mutation half of AtomicUpdate.
//
// When SetLockout is true LoginAttempts and LockUntil replace the stored
// values (a nil LockUntil clears the lock). A non-empty PasswordHash replaces
// the stored hash. UpdatedAt is always written.
type AccountUpdate struct {
	SetLockout    bool
	LoginAttempts int
	LockUntil     *time.Time
	PasswordHash  string
	UpdatedAt     time.Time
}

// Apply mutates a in place and bumps its version. Store implementations that
// hold records in memory use it to stay consistent with the SQL and document
// stores.
func (u AccountUpdate) Apply(a *Account) {
	if u.SetLockout {
		a.LoginAttempts = u.LoginAttempts
		if u.LockUntil != nil {
			t := *u.LockUntil
			a.LockUntil = &t
		} else {
			a.LockUntil = nil
		}
	}
	if u.PasswordHash != "" {
		a.PasswordHash = u.PasswordHash
	}
	a.UpdatedAt = u.UpdatedAt
	a.Version++
}

// AccountStore persists accounts.
//
// Lookups return (nil, nil) when no record matches. Insert assigns ID,
// Version and timestamps when unset and returns an error matching
// ErrUsernameTaken on a duplicate username. AtomicUpdate applies upd only
// when the stored version equals expectedVersion and returns (nil, nil) when
// that predicate fails or the record is gone.
type AccountStore interface {
	FindByUsername(ctx context.Context, username string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	Insert(ctx context.Context, account *Account) (*Account, error)
	AtomicUpdate(ctx context.Context, id string, expectedVersion int64, upd AccountUpdate) (*Account, error)
}

// ExternalIdentity is what the identity provider returns for a login code.
type ExternalIdentity struct {
	OpenID     string
	SessionKey string
	UnionID    string
}

// IdentityProvider trades a short-lived client login code for an external
// identity. Provider-reported failures must be returned as *ProviderError.
type IdentityProvider interface {
	Exchange(ctx context.Context, code string) (ExternalIdentity, error)
}

// SignInRequest is the input of Engine.SignIn.
type SignInRequest struct {
	Username           string
	Password           string
	CaptchaCode        string
	SessionCaptchaCode string
}

// SignInResult carries an issued bearer token.
type SignInResult struct {
	Token     string
	AccountID string
	ExpiresAt time.Time
}

// AuthResult is returned by Engine.Validate for an accepted token.
type AuthResult struct {
	AccountID string
	Username  string
	TokenID   string
	ExpiresAt time.Time
}

// ProfileRequest is the input of Engine.DecryptProfile. All payload fields
// are passed through exactly as the client delivered them.
type ProfileRequest struct {
	Code          string
	EncryptedData string
	IV            string
	RawData       string
	Signature     string
}
