package internaldefs

import (
	"github.com/coreos-platform/seccore/internal/metrics"
)

// Namespace prefixes every exported metric name.
const Namespace = "seccore"

// CounterDef binds a counter slot to its exported name.
type CounterDef struct {
	ID   metrics.MetricID
	Name string
	Help string
}

// HistogramDef binds a histogram slot to its exported name.
type HistogramDef struct {
	ID   metrics.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in slot order.
var CounterDefs = []CounterDef{
	{ID: metrics.MetricLoginSuccess, Name: "seccore_login_success_total", Help: "Successful password logins."},
	{ID: metrics.MetricLoginFailure, Name: "seccore_login_failure_total", Help: "Failed password logins."},
	{ID: metrics.MetricLoginRateLimited, Name: "seccore_login_rate_limited_total", Help: "Logins rejected by the request budget."},
	{ID: metrics.MetricLoginLocked, Name: "seccore_login_locked_total", Help: "Logins rejected while the account was locked."},
	{ID: metrics.MetricLockoutTriggered, Name: "seccore_lockout_triggered_total", Help: "Failure counters that reached the lockout threshold."},
	{ID: metrics.MetricRefreshSuccess, Name: "seccore_refresh_success_total", Help: "Successful refresh token rotations."},
	{ID: metrics.MetricRefreshFailure, Name: "seccore_refresh_failure_total", Help: "Failed refresh attempts."},
	{ID: metrics.MetricReplayDetected, Name: "seccore_refresh_replay_detected_total", Help: "Refresh tokens presented after they were consumed."},
	{ID: metrics.MetricValidateSuccess, Name: "seccore_validate_success_total", Help: "Access tokens that passed validation."},
	{ID: metrics.MetricValidateFailure, Name: "seccore_validate_failure_total", Help: "Access tokens that failed validation."},
	{ID: metrics.MetricPermissionDenied, Name: "seccore_permission_denied_total", Help: "Permission checks that denied access."},
	{ID: metrics.MetricLogout, Name: "seccore_logout_total", Help: "Logout operations."},
	{ID: metrics.MetricOAuthLoginSuccess, Name: "seccore_oauth_login_success_total", Help: "Successful federated logins."},
	{ID: metrics.MetricOAuthLoginFailure, Name: "seccore_oauth_login_failure_total", Help: "Failed federated logins."},
	{ID: metrics.MetricKeyRotation, Name: "seccore_encryption_key_rotation_total", Help: "Encryption key rotations."},
	{ID: metrics.MetricKeyRotationFailure, Name: "seccore_encryption_key_rotation_failure_total", Help: "Failed encryption key rotations."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: metrics.MetricValidateLatency, Name: "seccore_validate_latency_seconds", Help: "ValidateToken latency."},
}

// AuditDroppedName is the counter for events dropped by the audit dispatcher.
const (
	AuditDroppedName = "seccore_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped under dispatcher backpressure."
)

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// slot of a snapshot is the +Inf bucket.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that
// cannot carry an le label.
var HistogramBoundSuffix = [metrics.HistBucketCount]string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, padding with zeros.
func NormalizeBuckets(raw []uint64) [metrics.HistBucketCount]uint64 {
	var out [metrics.HistBucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals, so the last
// slot is the sample count.
func CumulativeBuckets(raw [metrics.HistBucketCount]uint64) [metrics.HistBucketCount]uint64 {
	var out [metrics.HistBucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
