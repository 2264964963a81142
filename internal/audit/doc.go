// Package audit relays sign-up, sign-in, sign-out, lockout and identity
// exchange outcomes to a pluggable sink without blocking the request path.
//
// # Components
//
//   - [Sink]: event consumer (no-op, channel, JSON lines, slog).
//   - [Dispatcher]: buffered async relay with drop-if-full or block-if-full semantics.
//   - [Event]: structured record with timestamp, type, account, IP and metadata.
//
// The engine decides which events to emit; this package only buffers and delivers.
// It must not import mpauth or any sibling internal package.
package audit
