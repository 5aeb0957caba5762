// Package internal groups the machinery behind seccore.Engine that is not
// part of the public API.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher and Sink implementations)
//   - cmd: the seccore command line
//   - flows: flow orchestrators for login, refresh, validate and logout
//   - limiters: failed-login lockout counters
//   - metrics: lock-free counters and the validate latency histogram
//   - rate: Redis fixed-window and in-process token bucket limiters
//   - scheduler: periodic jobs such as encryption key rotation
//   - security: security report assembly
//   - stores: token blacklist and token cache adapters
//
// # What this package must NOT do
//
//   - Export types that appear in the public seccore API except through aliases.
//   - Be imported by any package outside the seccore module.
package internal
