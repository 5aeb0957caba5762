// Package password implements password hashing and verification with Argon2id defaults.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Verifier] also accepts bcrypt hashes held by older credential stores, and
// [Verifier.DummyVerify] equalizes timing for unknown users.
//
// [Verifier.NeedsRehash] flags bcrypt hashes and Argon2id hashes produced
// with weaker parameters, so the caller can re-hash after a successful login.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other seccore package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
