package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/mpauth/jwt"
)

type SignOutResult struct {
	Failure ValidateFailureKind
	Backend BackendFailure
	Err     error
	Claims  *jwt.Claims
}

// SignOutDeps captures token revocation dependencies.
type SignOutDeps struct {
	Verify    func(string) (*jwt.Claims, error)
	IsRevoked func(context.Context, string) (bool, error)
	Revoke    func(ctx context.Context, tokenID string, expiresAt time.Time) error
	// Leeway is the verifier's clock-skew allowance. The denylist entry must
	// outlive exp by the same amount.
	Leeway time.Duration
}

// RunSignOut revokes a live token. The revocation write completes before the
// flow returns so a subsequent Validate on any instance rejects the token.
func RunSignOut(ctx context.Context, token string, deps SignOutDeps) SignOutResult {
	claims, res := verifyToken(token, deps.Verify)
	if res.Failure != ValidateFailureNone {
		return SignOutResult{Failure: res.Failure, Err: res.Err}
	}

	revoked, err := deps.IsRevoked(ctx, claims.TokenID())
	if err != nil {
		return SignOutResult{Failure: ValidateFailureBackend, Backend: BackendRevocation, Err: err}
	}
	if revoked {
		return SignOutResult{Failure: ValidateFailureRevoked, Claims: claims}
	}

	if err := deps.Revoke(context.WithoutCancel(ctx), claims.TokenID(), claims.Expiry().Add(deps.Leeway)); err != nil {
		return SignOutResult{Failure: ValidateFailureBackend, Backend: BackendRevocation, Err: err}
	}
	return SignOutResult{Claims: claims}
}
