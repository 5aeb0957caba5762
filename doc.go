// Package seccore is the security core: credential authentication with
// lockout, JWT issuance and revocation, AES-256-GCM encryption with key
// rotation, role-based permissions and OAuth2 federation.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// seccore is the public surface. It exposes [Engine], [Builder], [Config] and
// value types (TokenPair, MetricsSnapshot, SecurityReport). Flow
// orchestration, rate limiting, lockout counters, audit dispatch and
// scheduling live under internal/. The encryption, jwt, permission, oauth,
// password and cache packages are usable on their own.
//
// # What this package must NOT do
//
//   - Persist users. Credentials are read through [CredentialStore] only.
//   - Log or audit passwords, tokens or key material.
//   - Perform I/O outside of Engine methods.
//   - Import any sub-package that re-imports seccore (no import cycles).
//
// # Performance contract
//
// ValidateToken is the hot path: one signature check and one blacklist
// lookup. AuthenticateUser is dominated by password hashing and makes a
// bounded number of cache round trips.
package seccore
