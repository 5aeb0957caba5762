package seccore

import (
	"testing"
	"time"
)

func TestLint_DefaultConfigHasNoHighWarnings(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Lint().AsError(LintHigh); err != nil {
		t.Errorf("default config should not fail AsError(LintHigh): %v", err)
	}
}

func TestLint_Codes(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		code   string
		want   bool
	}{
		{"large leeway", func(c *Config) { c.JWT.Leeway = 90 * time.Second }, "leeway_large", true},
		{"long access ttl", func(c *Config) { c.JWT.AccessTTL = time.Hour }, "access_ttl_long", true},
		{"default access ttl", func(c *Config) {}, "access_ttl_long", false},
		{"long refresh ttl", func(c *Config) { c.JWT.RefreshTTL = 30 * 24 * time.Hour }, "refresh_ttl_long", true},
		{"rotation disabled", func(c *Config) { c.Encryption.RotationInterval = 0 }, "key_rotation_disabled", true},
		{"ephemeral key", func(c *Config) {}, "encryption_key_ephemeral", true},
		{"configured key", func(c *Config) { c.Encryption.Key = testKeyB64 }, "encryption_key_ephemeral", false},
		{"low argon2 memory", func(c *Config) { c.Password.Memory = 16 * 1024 }, "argon2_memory_low", true},
		{"good argon2 memory", func(c *Config) { c.Password.Memory = 64 * 1024 }, "argon2_memory_low", false},
		{"audit disabled", func(c *Config) { c.Audit.Enabled = false }, "audit_disabled", true},
		{"high lockout threshold", func(c *Config) { c.Lockout.Threshold = 50 }, "lockout_threshold_high", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mutate(&cfg)
			if got := containsCode(cfg.Lint().Codes(), tc.code); got != tc.want {
				t.Fatalf("code %q present = %v, want %v", tc.code, got, tc.want)
			}
		})
	}
}

func TestLint_SeverityAndAsError(t *testing.T) {
	cfg := defaultConfig()
	cfg.RBAC.DecisionTTL = time.Hour
	ws := cfg.Lint()

	high := ws.BySeverity(LintHigh)
	if len(high) != 1 || high[0].Code != "decision_cache_outlives_access" {
		t.Fatalf("BySeverity(LintHigh) = %+v", high)
	}
	if high[0].Severity.String() != "HIGH" {
		t.Fatalf("severity string = %s", high[0].Severity)
	}
	if err := ws.AsError(LintHigh); err == nil {
		t.Fatal("expected AsError(LintHigh) to fail")
	}
}

// helpers

func containsCode(codes []string, code string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
