// Package internal holds secure random helpers private to mpauth.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: pure-function flow orchestrators for every Engine operation
//   - lockout: the progressive lockout state machine
//   - logging: structured logger interface over log/slog
//   - rate: Redis-backed per-IP sign-in throttle
//   - server: process wiring for cmd/mpauth-server
//   - serverconfig: environment and flag loading for cmd/mpauth-server
//   - stores: Redis-backed captcha challenge store
package internal
