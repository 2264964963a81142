// Package revocation keeps the server-side denylist that makes sign-out work
// for self-contained bearer tokens.
//
// A revoked token id is stored under <prefix><jti> with a TTL equal to the
// token's remaining lifetime, so entries disappear once the token would have
// expired anyway. Revoking an already-expired token is a no-op.
//
// # What this package must NOT do
//
//   - Parse or verify tokens. Callers pass the jti and expiry they verified.
//   - Swallow backend errors. Callers must treat them as "cannot prove
//     not revoked" and fail closed.
package revocation
