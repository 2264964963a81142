// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunSignIn, RunValidate, RunSignOut, etc.) accepts a typed
// dependency struct and returns a result carrying a classified failure kind.
// The root engine maps failure kinds to its public errors, records metrics and
// emits audit events.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the account store, password hasher, token
// manager, revocation store and identity provider. They do NOT own any of these
// resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import mpauth (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency funcs.
package flows
