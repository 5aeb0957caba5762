// Package rate provides the non-blocking limiters guarding authentication
// entry points.
//
// # Limiters
//
//   - [Bucket]: in-process token bucket per subject on golang.org/x/time/rate.
//     Idle subjects are evicted.
//   - [Window]: distributed fixed window. INCR and the first-hit EXPIRE run as
//     one atomic cache call on rate_limit:{scope}:{subject}.
//
// Subjects are user ids, organization ids or provider names.
//
// # What this package must NOT do
//
//   - Block waiting for capacity. TryAcquire either admits or refuses.
//   - Implement lockout policy (that lives in internal/limiters).
package rate
