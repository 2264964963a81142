package flows

import (
	"context"

	"github.com/MrEthical07/mpauth/jwt"
	"github.com/MrEthical07/mpauth/payload"
)

// ExternalFailureKind classifies identity exchange failures.
type ExternalFailureKind int

const (
	ExternalFailureNone ExternalFailureKind = iota
	ExternalFailureInvalidInput
	// ExternalFailureProvider carries the provider error in Err unchanged.
	ExternalFailureProvider
	ExternalFailureAlreadyRegistered
	ExternalFailureNotRegistered
	ExternalFailureSignature
	ExternalFailureDecryption
	ExternalFailureBackend
)

// ExternalIdentityRecord is the flow-local provider exchange result.
type ExternalIdentityRecord struct {
	OpenID     string
	SessionKey string
	UnionID    string
}

type ExternalResult struct {
	Failure ExternalFailureKind
	Backend BackendFailure
	Err     error

	Identity ExternalIdentityRecord
	Account  *AccountRecord
	Created  bool
	Token    string
	Claims   *jwt.Claims
}

// ProfileInput is the flow-local profile decryption request.
type ProfileInput struct {
	Code          string
	EncryptedData string
	IV            string
	RawData       string
	Signature     string
}

type ProfileResult struct {
	Failure ExternalFailureKind
	Backend BackendFailure
	Err     error

	Identity ExternalIdentityRecord
	Profile  *payload.Profile
	// SignatureChecked is false when verification was switched off or no
	// signature material was supplied.
	SignatureChecked bool
}

// ExternalDeps captures identity provider flow dependencies.
type ExternalDeps struct {
	AppID           string
	VerifySignature bool

	Exchange          func(context.Context, string) (ExternalIdentityRecord, error)
	FindByUsername    func(context.Context, string) (*AccountRecord, error)
	Insert            func(ctx context.Context, username, passwordHash string) (*AccountRecord, error)
	IsDuplicate       func(error) bool
	HashPassword      func(string) (string, error)
	PlaceholderSecret func() (string, error)
	IssueToken        func(accountID string) (string, *jwt.Claims, error)
	Warn              func(ctx context.Context, msg string, args ...any)
}

func exchange(ctx context.Context, code string, deps ExternalDeps) (ExternalIdentityRecord, ExternalFailureKind, error) {
	if code == "" {
		return ExternalIdentityRecord{}, ExternalFailureInvalidInput, nil
	}
	ident, err := deps.Exchange(ctx, code)
	if err != nil {
		return ExternalIdentityRecord{}, ExternalFailureProvider, err
	}
	return ident, ExternalFailureNone, nil
}

// RunExternalSignUp creates an account keyed by the external open id and
// issues a token for it. The account gets a password digest of a random
// secret nobody knows, so username/password sign-in can never succeed for it.
func RunExternalSignUp(ctx context.Context, code string, deps ExternalDeps) ExternalResult {
	ident, kind, err := exchange(ctx, code, deps)
	if kind != ExternalFailureNone {
		return ExternalResult{Failure: kind, Err: err}
	}

	existing, err := deps.FindByUsername(ctx, ident.OpenID)
	if err != nil {
		return ExternalResult{Failure: ExternalFailureBackend, Backend: BackendStore, Err: err, Identity: ident}
	}
	if existing != nil {
		return ExternalResult{Failure: ExternalFailureAlreadyRegistered, Identity: ident}
	}

	secret, err := deps.PlaceholderSecret()
	if err != nil {
		return ExternalResult{Failure: ExternalFailureBackend, Backend: BackendHasher, Err: err, Identity: ident}
	}
	hash, err := deps.HashPassword(secret)
	if err != nil {
		return ExternalResult{Failure: ExternalFailureBackend, Backend: BackendHasher, Err: err, Identity: ident}
	}

	rec, err := deps.Insert(ctx, ident.OpenID, hash)
	if err != nil {
		if deps.IsDuplicate != nil && deps.IsDuplicate(err) {
			return ExternalResult{Failure: ExternalFailureAlreadyRegistered, Identity: ident}
		}
		return ExternalResult{Failure: ExternalFailureBackend, Backend: BackendStore, Err: err, Identity: ident}
	}

	token, claims, err := deps.IssueToken(rec.ID)
	if err != nil {
		return ExternalResult{Failure: ExternalFailureBackend, Backend: BackendToken, Err: err, Identity: ident, Account: rec, Created: true}
	}
	return ExternalResult{Identity: ident, Account: rec, Created: true, Token: token, Claims: claims}
}

// RunExternalSignIn issues a token for an already registered external
// identity. The provider has authenticated the user; lockout does not apply.
func RunExternalSignIn(ctx context.Context, code string, deps ExternalDeps) ExternalResult {
	ident, kind, err := exchange(ctx, code, deps)
	if kind != ExternalFailureNone {
		return ExternalResult{Failure: kind, Err: err}
	}

	rec, err := deps.FindByUsername(ctx, ident.OpenID)
	if err != nil {
		return ExternalResult{Failure: ExternalFailureBackend, Backend: BackendStore, Err: err, Identity: ident}
	}
	if rec == nil {
		return ExternalResult{Failure: ExternalFailureNotRegistered, Identity: ident}
	}

	token, claims, err := deps.IssueToken(rec.ID)
	if err != nil {
		return ExternalResult{Failure: ExternalFailureBackend, Backend: BackendToken, Err: err, Identity: ident, Account: rec}
	}
	return ExternalResult{Identity: ident, Account: rec, Token: token, Claims: claims}
}

// RunDecryptProfile exchanges the code for a session key, checks the payload
// signature and decrypts the profile.
func RunDecryptProfile(ctx context.Context, in ProfileInput, deps ExternalDeps) ProfileResult {
	if deps.Warn == nil {
		deps.Warn = func(context.Context, string, ...any) {}
	}
	if in.EncryptedData == "" || in.IV == "" {
		return ProfileResult{Failure: ExternalFailureInvalidInput}
	}

	ident, kind, err := exchange(ctx, in.Code, deps)
	if kind != ExternalFailureNone {
		return ProfileResult{Failure: kind, Err: err}
	}

	checked := false
	switch {
	case !deps.VerifySignature:
		deps.Warn(ctx, "profile signature accepted without verification", "open_id", ident.OpenID)
	case in.RawData == "" || in.Signature == "":
		return ProfileResult{Failure: ExternalFailureSignature, Err: payload.ErrSignatureMismatch, Identity: ident}
	default:
		if err := payload.VerifySignature(in.RawData, ident.SessionKey, in.Signature); err != nil {
			return ProfileResult{Failure: ExternalFailureSignature, Err: err, Identity: ident}
		}
		checked = true
	}

	plaintext, err := payload.Decrypt(ident.SessionKey, in.EncryptedData, in.IV)
	if err != nil {
		return ProfileResult{Failure: ExternalFailureDecryption, Err: err, Identity: ident}
	}
	profile, err := payload.DecodeProfile(plaintext, deps.AppID)
	if err != nil {
		return ProfileResult{Failure: ExternalFailureDecryption, Err: err, Identity: ident}
	}

	return ProfileResult{Identity: ident, Profile: profile, SignatureChecked: checked}
}
