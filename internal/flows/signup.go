package flows

import "context"

// SignUpFailureKind classifies sign-up failures.
type SignUpFailureKind int

const (
	SignUpFailureNone SignUpFailureKind = iota
	SignUpFailureInvalidInput
	SignUpFailureUsernameTaken
	SignUpFailureBackend
)

type SignUpResult struct {
	Failure SignUpFailureKind
	Backend BackendFailure
	Err     error
	Account *AccountRecord
}

// SignUpDeps captures account creation dependencies.
type SignUpDeps struct {
	FindByUsername func(context.Context, string) (*AccountRecord, error)
	Insert         func(ctx context.Context, username, passwordHash string) (*AccountRecord, error)
	HashPassword   func(string) (string, error)
	// IsDuplicate reports whether an Insert error is a duplicate-username race.
	IsDuplicate func(error) bool
}

// RunSignUp creates a username/password account. The pre-check is advisory;
// the store's uniqueness constraint decides concurrent races.
func RunSignUp(ctx context.Context, username, password string, deps SignUpDeps) SignUpResult {
	if username == "" || password == "" {
		return SignUpResult{Failure: SignUpFailureInvalidInput}
	}

	existing, err := deps.FindByUsername(ctx, username)
	if err != nil {
		return SignUpResult{Failure: SignUpFailureBackend, Backend: BackendStore, Err: err}
	}
	if existing != nil {
		return SignUpResult{Failure: SignUpFailureUsernameTaken}
	}

	hash, err := deps.HashPassword(password)
	if err != nil {
		return SignUpResult{Failure: SignUpFailureBackend, Backend: BackendHasher, Err: err}
	}

	rec, err := deps.Insert(ctx, username, hash)
	if err != nil {
		if deps.IsDuplicate != nil && deps.IsDuplicate(err) {
			return SignUpResult{Failure: SignUpFailureUsernameTaken}
		}
		return SignUpResult{Failure: SignUpFailureBackend, Backend: BackendStore, Err: err}
	}

	return SignUpResult{Account: rec}
}
