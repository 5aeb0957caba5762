package seccore

import (
	"fmt"
	"strings"
	"time"
)

// LintSeverity ranks configuration warnings.
type LintSeverity int

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "INFO"
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	default:
		return fmt.Sprintf("LintSeverity(%d)", int(s))
	}
}

// LintWarning is one finding from Config.Lint.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult is the list of findings from Config.Lint.
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, len(r))
	for i, w := range r {
		out[i] = w.Code
	}
	return out
}

// BySeverity returns the warnings at or above min.
func (r LintResult) BySeverity(min LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError folds every warning at or above min into one error, or nil.
func (r LintResult) AsError(min LintSeverity) error {
	hits := r.BySeverity(min)
	if len(hits) == 0 {
		return nil
	}
	parts := make([]string, len(hits))
	for i, w := range hits {
		parts[i] = fmt.Sprintf("[%s] %s: %s", w.Severity, w.Code, w.Message)
	}
	return fmt.Errorf("config lint: %s", strings.Join(parts, "; "))
}

// Lint reports settings that are valid but risky. It never fails; use
// Validate for hard errors.
func (c *Config) Lint() LintResult {
	var ws LintResult
	add := func(code string, sev LintSeverity, format string, args ...any) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: fmt.Sprintf(format, args...)})
	}

	if c.JWT.Leeway > time.Minute {
		add("leeway_large", LintWarn, "JWT leeway %s extends every token's life", c.JWT.Leeway)
	}
	if c.JWT.AccessTTL > 30*time.Minute {
		add("access_ttl_long", LintWarn, "access tokens live %s", c.JWT.AccessTTL)
	}
	if c.JWT.RefreshTTL > 7*24*time.Hour {
		add("refresh_ttl_long", LintWarn, "refresh tokens live %s", c.JWT.RefreshTTL)
	}
	if c.JWT.Secret == "" {
		add("signing_secret_derived", LintInfo, "signing secret is derived from the encryption key")
	}
	if c.Encryption.Key == "" {
		add("encryption_key_ephemeral", LintWarn, "no encryption key configured; data sealed by this process is unreadable after restart")
	}
	if c.Encryption.RotationInterval == 0 {
		add("key_rotation_disabled", LintWarn, "encryption keys are never rotated")
	}
	if c.RBAC.DecisionTTL > c.JWT.AccessTTL {
		add("decision_cache_outlives_access", LintHigh, "permission decisions (%s) may be cached longer than access tokens live (%s)", c.RBAC.DecisionTTL, c.JWT.AccessTTL)
	}
	if c.Lockout.Threshold > 10 {
		add("lockout_threshold_high", LintWarn, "lockout only after %d failures", c.Lockout.Threshold)
	}
	if c.Password.Memory < 64*1024 {
		add("argon2_memory_low", LintWarn, "argon2id memory %d KB is below 64 MB", c.Password.Memory)
	}
	if !c.Audit.Enabled {
		add("audit_disabled", LintInfo, "audit events are discarded")
	}
	return ws
}
