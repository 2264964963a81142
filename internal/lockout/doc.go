// Package lockout holds the progressive account lockout state machine.
//
// [Evaluate] is pure: it reads an attempt state, the outcome of a password
// check, a clock reading and a [Policy], and returns the decision together
// with the state the caller must persist. Persisting that state atomically
// (compare-and-swap on the account version) is the caller's job.
//
// # What this package must NOT do
//
//   - Perform I/O or hold state between calls.
//   - Return errors for expected input. Every input yields a Decision.
package lockout
