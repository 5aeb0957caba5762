package seccore

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/coreos-platform/seccore/encryption"
	"github.com/coreos-platform/seccore/jwt"
	"github.com/coreos-platform/seccore/oauth"
)

// Config defines the tunables of an Engine.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	JWT        JWTConfig        `yaml:"jwt"`
	Encryption EncryptionConfig `yaml:"encryption"`
	Password   PasswordConfig   `yaml:"password"`
	Lockout    LockoutConfig    `yaml:"lockout"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	RBAC       RBACConfig       `yaml:"rbac"`
	TokenCache TokenCacheConfig `yaml:"token_cache"`
	OAuth      OAuthConfig      `yaml:"oauth"`
	Audit      AuditConfig      `yaml:"audit"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Timeouts   TimeoutConfig    `yaml:"timeouts"`
	Redis      RedisConfig      `yaml:"redis"`
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures token issuance.
type JWTConfig struct {
	AccessTTL  time.Duration `yaml:"access_ttl"`
	RefreshTTL time.Duration `yaml:"refresh_ttl"`
	Issuer     string        `yaml:"issuer"`
	Leeway     time.Duration `yaml:"leeway"`
	// Secret is the HS256 signing secret. When empty, a secret is derived
	// from the active encryption key.
	Secret string `yaml:"secret"`
}

/*
====================================
ENCRYPTION CONFIG
====================================
*/

// EncryptionConfig configures the AEAD service and its rotation schedule.
type EncryptionConfig struct {
	// Key is the base64 (std) encoding of a 32-byte key. When empty a key is
	// generated at build time.
	Key              string        `yaml:"key"`
	KeyID            string        `yaml:"key_id"`
	RotationInterval time.Duration `yaml:"rotation_interval"`
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id parameters for new hashes.
type PasswordConfig struct {
	Memory           uint32 `yaml:"memory"` // in KB
	Time             uint32 `yaml:"time"`
	Parallelism      uint8  `yaml:"parallelism"`
	SaltLength       uint32 `yaml:"salt_length"`
	KeyLength        uint32 `yaml:"key_length"`
	MaxPasswordBytes int    `yaml:"max_password_bytes"`
}

/*
====================================
LIMITS
====================================
*/

// LockoutConfig configures failed-login lockout.
type LockoutConfig struct {
	Threshold int           `yaml:"threshold"`
	Window    time.Duration `yaml:"window"`
}

// RateLimitConfig configures the login request budget.
type RateLimitConfig struct {
	LoginLimit  int           `yaml:"login_limit"`
	LoginWindow time.Duration `yaml:"login_window"`
}

// RBACConfig configures permission caching.
type RBACConfig struct {
	PermissionTTL time.Duration `yaml:"permission_ttl"`
	DecisionTTL   time.Duration `yaml:"decision_ttl"`
	CacheSize     int           `yaml:"cache_size"`
}

// TokenCacheConfig configures the tokens:{user_id} session cache.
type TokenCacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// OAuthConfig configures identity providers. A nil Providers map selects
// oauth.DefaultProviders.
type OAuthConfig struct {
	Providers map[string]oauth.Provider `yaml:"providers"`
}

// AuditConfig configures the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

// MetricsConfig configures in-process counters.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

// TimeoutConfig bounds calls into collaborators.
type TimeoutConfig struct {
	Store time.Duration `yaml:"store"`
	Cache time.Duration `yaml:"cache"`
}

// RedisConfig is used by the command line tools when they dial Redis themselves.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultKeyRotationInterval is the encryption key lifetime.
const DefaultKeyRotationInterval = 30 * 24 * time.Hour

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:  jwt.DefaultAccessTTL,
			RefreshTTL: jwt.DefaultRefreshTTL,
		},
		Encryption: EncryptionConfig{
			RotationInterval: DefaultKeyRotationInterval,
		},
		Password: PasswordConfig{
			Memory:           65536,
			Time:             3,
			Parallelism:      2,
			SaltLength:       16,
			KeyLength:        32,
			MaxPasswordBytes: 1024,
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Window:    time.Hour,
		},
		RateLimit: RateLimitConfig{
			LoginLimit:  100,
			LoginWindow: time.Minute,
		},
		RBAC: RBACConfig{
			PermissionTTL: 5 * time.Minute,
			DecisionTTL:   30 * time.Second,
			CacheSize:     4096,
		},
		TokenCache: TokenCacheConfig{
			TTL: 300 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Timeouts: TimeoutConfig{
			Store: 2 * time.Second,
			Cache: 500 * time.Millisecond,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
	}
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.OAuth.Providers != nil {
		out.OAuth.Providers = make(map[string]oauth.Provider, len(cfg.OAuth.Providers))
		for k, v := range cfg.OAuth.Providers {
			out.OAuth.Providers[k] = v
		}
	}
	return out
}

/*
====================================
LOADING
====================================
*/

// LoadConfig reads a YAML file over the defaults, applies SECCORE_*
// environment overrides and validates the result. An empty path skips the
// file.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg, os.LookupEnv); err != nil {
		return Config{}, fmt.Errorf("applying environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	// Secrets (always override in production)
	str("SECCORE_JWT_SECRET", &cfg.JWT.Secret)
	str("SECCORE_ENCRYPTION_KEY", &cfg.Encryption.Key)
	str("SECCORE_ENCRYPTION_KEY_ID", &cfg.Encryption.KeyID)

	// Redis
	str("SECCORE_REDIS_ADDR", &cfg.Redis.Addr)
	str("SECCORE_REDIS_PASSWORD", &cfg.Redis.Password)

	return errors.Join(
		dur("SECCORE_JWT_ACCESS_TTL", &cfg.JWT.AccessTTL),
		dur("SECCORE_JWT_REFRESH_TTL", &cfg.JWT.RefreshTTL),
		dur("SECCORE_KEY_ROTATION_INTERVAL", &cfg.Encryption.RotationInterval),
		num("SECCORE_LOCKOUT_THRESHOLD", &cfg.Lockout.Threshold),
		dur("SECCORE_LOCKOUT_WINDOW", &cfg.Lockout.Window),
		num("SECCORE_LOGIN_RATE_LIMIT", &cfg.RateLimit.LoginLimit),
		num("SECCORE_REDIS_DB", &cfg.Redis.DB),
	)
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be >= AccessTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}
	if c.JWT.Secret != "" && len(c.JWT.Secret) < jwt.MinSecretSize {
		return fmt.Errorf("JWT Secret must be at least %d bytes", jwt.MinSecretSize)
	}

	// Encryption
	if c.Encryption.Key != "" {
		if _, err := decodeKey(c.Encryption.Key); err != nil {
			return err
		}
	}
	if c.Encryption.RotationInterval < 0 {
		return errors.New("Encryption RotationInterval must be >= 0")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MaxPasswordBytes <= 0 {
		return errors.New("Password MaxPasswordBytes must be > 0")
	}

	// Limits
	if c.Lockout.Threshold <= 0 {
		return errors.New("Lockout Threshold must be > 0")
	}
	if c.Lockout.Window <= 0 {
		return errors.New("Lockout Window must be > 0")
	}
	if c.RateLimit.LoginLimit <= 0 || c.RateLimit.LoginWindow <= 0 {
		return errors.New("RateLimit LoginLimit and LoginWindow must be > 0")
	}

	// RBAC
	if c.RBAC.PermissionTTL <= 0 || c.RBAC.DecisionTTL <= 0 {
		return errors.New("RBAC PermissionTTL and DecisionTTL must be > 0")
	}
	if c.RBAC.CacheSize <= 0 {
		return errors.New("RBAC CacheSize must be > 0")
	}

	if c.TokenCache.TTL <= 0 {
		return errors.New("TokenCache TTL must be > 0")
	}

	for name, p := range c.OAuth.Providers {
		if p.Name == "" {
			p.Name = name
		}
		if err := p.Validate(); err != nil {
			return err
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}
	if c.Timeouts.Store <= 0 || c.Timeouts.Cache <= 0 {
		return errors.New("Timeouts Store and Cache must be > 0")
	}
	return nil
}

func decodeKey(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("Encryption Key must be base64: %w", err)
	}
	if len(b) != encryption.KeySize {
		return nil, fmt.Errorf("Encryption Key must decode to %d bytes", encryption.KeySize)
	}
	return b, nil
}
