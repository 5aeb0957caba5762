// Package cache defines the key/value collaborator used for lockout counters,
// rate-limit windows, the token blacklist and cached token pairs, plus an
// in-process memoization wrapper for static lookups.
//
// # Key namespace
//
//   - tokens:{user_id}         JSON token pair, short TTL
//   - failed_attempts:{email}  lockout counter, 1h TTL
//   - rate_limit:{scope}:{id}  fixed-window counters, TTL = window
//   - token_blacklist:{jti}    presence flag, TTL = token remaining lifetime
//
// # What this package must NOT do
//
//   - Interpret values; callers own encoding.
//   - Retry silently. Backend failures surface as [ErrUnavailable].
package cache
