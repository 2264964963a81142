// Package jwt issues and verifies the bearer session tokens handed out after a
// successful sign-in.
//
// A token carries the account id (sub), a unique token id (jti) used as the
// revocation key, and issued-at/expiry timestamps. Everything needed to
// validate a token is recoverable from the token itself.
//
// Verification fails closed: any decode error, signature mismatch, algorithm
// substitution or expiry yields [ErrInvalid] or [ErrExpired] and never a
// partial identity.
package jwt
