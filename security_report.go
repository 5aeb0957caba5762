package seccore

import (
	"github.com/coreos-platform/seccore/internal/security"
)

// SecurityReport summarizes the effective security settings of an Engine.
type SecurityReport = security.Report

// PasswordConfigReport lists argon2id parameters.
type PasswordConfigReport = security.PasswordReport

// SecurityReport returns the current posture, including config lint codes.
// It never includes secrets or key material.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	var providers []string
	if e.oauth != nil {
		providers = e.oauth.Providers()
	}
	var activeKey, previousKey string
	if e.encryption != nil {
		activeKey = e.encryption.ActiveKey().ID
		previousKey = e.encryption.PreviousKeyID()
	}
	var version uint32
	if e.tokens != nil {
		version = e.tokens.Version()
	}

	return security.BuildReport(security.ReportInput{
		SigningAlgorithm: "HS256",
		SigningSecret:    e.config.JWT.Secret,
		TokenVersion:     version,
		AccessTTL:        e.config.JWT.AccessTTL,
		RefreshTTL:       e.config.JWT.RefreshTTL,
		Password: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		ActiveKeyID:         activeKey,
		PreviousKeyID:       previousKey,
		KeyRotationInterval: e.config.Encryption.RotationInterval,
		LockoutThreshold:    e.config.Lockout.Threshold,
		LockoutWindow:       e.config.Lockout.Window,
		LoginRateLimit:      e.config.RateLimit.LoginLimit,
		LoginRateWindow:     e.config.RateLimit.LoginWindow,
		AuditEnabled:        e.config.Audit.Enabled,
		OAuthProviders:      providers,
		LintCodes:           e.config.Lint().Codes(),
	})
}
