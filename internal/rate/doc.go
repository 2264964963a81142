// Package rate throttles sign-in requests per client IP with Redis counters.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Keys are
// prefix + IP (default prefix "ali:").
//
// The per-account budget is the lockout policy, not this package.
package rate
