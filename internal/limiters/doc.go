// Package limiters provides the failed-login lockout counter built on the
// shared cache.
//
// # Limiters
//
//   - [Lockout]: per-email count of consecutive failures on
//     failed_attempts:{email}. Reaching the threshold blocks authentication
//     until the counter expires or is reset after a success.
//
// All limiters are nil-safe: calling any method on a nil receiver returns nil.
//
// # What this package must NOT do
//
//   - Import seccore or any sibling internal package.
//   - Make policy decisions beyond counting. Flow functions decide consequences.
package limiters
