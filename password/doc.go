// Package password implements the pluggable password hashing used by the engine.
//
// # Schemes
//
//   - [MD5]: the legacy unsalted hex digest. Kept so accounts created by the
//     previous deployment keep signing in. Never pick it for new deployments.
//   - [Argon2]: salted Argon2id in PHC string format:
//
//     $argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
//   - [Migrating]: verifies either format and hashes new passwords with Argon2.
//     [Migrating.NeedsRehash] reports legacy or outdated digests so the caller
//     can re-hash on the next successful sign-in.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Input policy (empty
// passwords, lockout) is enforced by the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive digests.
//   - Import any other mpauth package.
//   - Log plaintext passwords or digests.
package password
