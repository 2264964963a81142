// Package mpauth is the authentication backend of a mini-program service:
// username/password sign-in under a progressive lockout policy, stateless
// bearer tokens with server-side revocation, and identity-provider code
// exchange with encrypted profile decryption.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// mpauth is the public surface. It exposes [Engine], [Builder], [Config], the
// [AccountStore] and [IdentityProvider] interfaces and value types. Flow
// orchestration, the lockout policy, rate limiting and audit dispatch live
// under internal/. Store implementations (store/...) and the provider client
// (provider) import this package; this package never imports them.
//
// # Consistency
//
// Failed-attempt counters are updated with an optimistic compare-and-swap on
// the account version, so concurrent sign-ins against one account are each
// counted once. A recorded failure survives client cancellation. Revocation
// writes complete before SignOut returns.
package mpauth
