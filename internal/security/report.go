package security

import (
	"slices"
	"time"
)

// PasswordReport lists the argon2id parameters applied to new hashes.
type PasswordReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Report is a read-only summary of the security posture of an engine.
type Report struct {
	SigningAlgorithm     string
	SigningSecretDerived bool
	TokenVersion         uint32
	AccessTTL            time.Duration
	RefreshTTL           time.Duration
	Argon2               PasswordReport
	ActiveKeyID          string
	PreviousKeyRetained  bool
	KeyRotationInterval  time.Duration
	KeyRotationActive    bool
	LockoutThreshold     int
	LockoutWindow        time.Duration
	RateLimitingActive   bool
	AuditEnabled         bool
	OAuthProviders       []string
	LintCodes            []string
}

// ReportInput carries the raw settings BuildReport summarizes.
type ReportInput struct {
	SigningAlgorithm    string
	SigningSecret       string
	TokenVersion        uint32
	AccessTTL           time.Duration
	RefreshTTL          time.Duration
	Password            PasswordReport
	ActiveKeyID         string
	PreviousKeyID       string
	KeyRotationInterval time.Duration
	LockoutThreshold    int
	LockoutWindow       time.Duration
	LoginRateLimit      int
	LoginRateWindow     time.Duration
	AuditEnabled        bool
	OAuthProviders      []string
	LintCodes           []string
}

// BuildReport derives a Report from input. Secret values never reach the
// report; only whether the signing secret was derived.
func BuildReport(input ReportInput) Report {
	providers := slices.Clone(input.OAuthProviders)
	slices.Sort(providers)

	return Report{
		SigningAlgorithm:     input.SigningAlgorithm,
		SigningSecretDerived: input.SigningSecret == "",
		TokenVersion:         input.TokenVersion,
		AccessTTL:            input.AccessTTL,
		RefreshTTL:           input.RefreshTTL,
		Argon2:               input.Password,
		ActiveKeyID:          input.ActiveKeyID,
		PreviousKeyRetained:  input.PreviousKeyID != "",
		KeyRotationInterval:  input.KeyRotationInterval,
		KeyRotationActive:    input.KeyRotationInterval > 0,
		LockoutThreshold:     input.LockoutThreshold,
		LockoutWindow:        input.LockoutWindow,
		RateLimitingActive:   input.LoginRateLimit > 0 && input.LoginRateWindow > 0,
		AuditEnabled:         input.AuditEnabled,
		OAuthProviders:       providers,
		LintCodes:            slices.Clone(input.LintCodes),
	}
}
