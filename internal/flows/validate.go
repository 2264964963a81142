package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/mpauth/jwt"
)

// ValidateFailureKind classifies validation failures for root-level mapping.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureMissing
	ValidateFailureInvalid
	ValidateFailureExpired
	ValidateFailureRevoked
	ValidateFailureSubjectGone
	ValidateFailureBackend
)

// ValidateResult returns either the resolved claims and account or a
// classified failure.
type ValidateResult struct {
	Failure ValidateFailureKind
	Backend BackendFailure
	Err     error
	Claims  *jwt.Claims
	Account *AccountRecord
}

// ValidateDeps captures bearer token validation dependencies.
type ValidateDeps struct {
	Verify    func(string) (*jwt.Claims, error)
	IsRevoked func(context.Context, string) (bool, error)
	FindByID  func(context.Context, string) (*AccountRecord, error)
}

// RunValidate checks signature and expiry, then the revocation list, then that
// the subject still resolves. Backend failures fail closed.
func RunValidate(ctx context.Context, token string, deps ValidateDeps) ValidateResult {
	claims, res := verifyToken(token, deps.Verify)
	if res.Failure != ValidateFailureNone {
		return res
	}

	revoked, err := deps.IsRevoked(ctx, claims.TokenID())
	if err != nil {
		return ValidateResult{Failure: ValidateFailureBackend, Backend: BackendRevocation, Err: err}
	}
	if revoked {
		return ValidateResult{Failure: ValidateFailureRevoked, Claims: claims}
	}

	rec, err := deps.FindByID(ctx, claims.AccountID())
	if err != nil {
		return ValidateResult{Failure: ValidateFailureBackend, Backend: BackendStore, Err: err}
	}
	if rec == nil {
		return ValidateResult{Failure: ValidateFailureSubjectGone, Claims: claims}
	}

	return ValidateResult{Claims: claims, Account: rec}
}

func verifyToken(token string, verify func(string) (*jwt.Claims, error)) (*jwt.Claims, ValidateResult) {
	if token == "" {
		return nil, ValidateResult{Failure: ValidateFailureMissing}
	}
	claims, err := verify(token)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return nil, ValidateResult{Failure: ValidateFailureExpired, Err: err}
		}
		return nil, ValidateResult{Failure: ValidateFailureInvalid, Err: err}
	}
	return claims, ValidateResult{}
}
