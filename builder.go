package seccore

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/coreos-platform/seccore/cache"
	"github.com/coreos-platform/seccore/encryption"
	"github.com/coreos-platform/seccore/internal/audit"
	"github.com/coreos-platform/seccore/internal/limiters"
	"github.com/coreos-platform/seccore/internal/rate"
	"github.com/coreos-platform/seccore/internal/scheduler"
	"github.com/coreos-platform/seccore/internal/stores"
	"github.com/coreos-platform/seccore/jwt"
	"github.com/coreos-platform/seccore/oauth"
	"github.com/coreos-platform/seccore/password"
	"github.com/coreos-platform/seccore/permission"
)

// signingSecretInfo is the HKDF info string for the derived token secret.
const signingSecretInfo = "seccore/jwt-signing-secret/v1"

const loginRateScope = "login"

// Builder assembles an [Engine]. A Builder is single-use.
type Builder struct {
	config Config
	cache  cache.Cache

	store      CredentialStore
	auditSink  AuditSink
	hierarchy  *permission.Hierarchy
	logger     *zap.Logger
	clock      clock.Clock
	httpClient *http.Client

	built bool
}

// New returns a Builder holding the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis stores counters, the blacklist and the token cache in Redis.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.cache = cache.NewRedis(client)
	return b
}

// WithCache installs a custom cache backend. It overrides WithRedis.
func (b *Builder) WithCache(c cache.Cache) *Builder {
	b.cache = c
	return b
}

// WithCredentialStore sets the user lookup used by AuthenticateUser.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.store = store
	return b
}

// WithAuditSink sets the audit destination and turns auditing on. Without a
// sink, Audit.Enabled routes events to the engine logger.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithRoleHierarchy replaces the built-in role table.
func (b *Builder) WithRoleHierarchy(h *permission.Hierarchy) *Builder {
	b.hierarchy = h
	return b
}

// WithLogger sets the structured logger. Components log through named
// children of it. Defaults to a no-op logger.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock drives token expiry, key timestamps and scheduled rotation.
func (b *Builder) WithClock(clk clock.Clock) *Builder {
	b.clock = clk
	return b
}

// WithHTTPClient sets the client used for identity provider calls.
func (b *Builder) WithHTTPClient(client *http.Client) *Builder {
	b.httpClient = client
	return b
}

// WithMetricsEnabled toggles the in-process counters read by the exporters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the validate latency histogram. It has no
// effect unless metrics are enabled.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and constructs every component, leaves
// first.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if b.auditSink != nil {
		cfg.Audit.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.cache == nil {
		return nil, errors.New("redis client or cache required")
	}
	if b.store == nil {
		return nil, errors.New("credential store required")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := b.clock
	if clk == nil {
		clk = clock.New()
	}

	// -------- ENCRYPTION --------
	encCfg := encryption.Config{
		Now:          clk.Now,
		Logger:       logger.Named("encryption"),
		InitialKeyID: cfg.Encryption.KeyID,
	}
	if cfg.Encryption.Key != "" {
		key, err := decodeKey(cfg.Encryption.Key)
		if err != nil {
			return nil, err
		}
		encCfg.InitialKey = key
	}
	enc, err := encryption.New(encCfg)
	if err != nil {
		return nil, fmt.Errorf("encryption: %w", err)
	}

	// -------- TOKENS --------
	secret := []byte(cfg.JWT.Secret)
	if len(secret) == 0 {
		if secret, err = enc.DeriveSecret(signingSecretInfo); err != nil {
			return nil, fmt.Errorf("deriving signing secret: %w", err)
		}
	}
	blacklist := stores.NewBlacklist(b.cache)
	tokens, err := jwt.NewManager(jwt.Config{
		Secret:     secret,
		AccessTTL:  cfg.JWT.AccessTTL,
		RefreshTTL: cfg.JWT.RefreshTTL,
		Issuer:     cfg.JWT.Issuer,
		Leeway:     cfg.JWT.Leeway,
		Blacklist:  blacklist,
		Now:        clk.Now,
		Logger:     logger.Named("jwt"),
	})
	if err != nil {
		return nil, fmt.Errorf("jwt: %w", err)
	}

	// -------- RBAC --------
	rbac, err := permission.NewRBAC(tokens, permission.Config{
		Hierarchy:     b.hierarchy,
		PermissionTTL: cfg.RBAC.PermissionTTL,
		DecisionTTL:   cfg.RBAC.DecisionTTL,
		CacheSize:     cfg.RBAC.CacheSize,
		Now:           clk.Now,
		Logger:        logger.Named("rbac"),
	})
	if err != nil {
		return nil, err
	}
	tokens.SetResolver(rbac.Grants)

	// -------- LIMITERS --------
	loginLimiter, err := rate.NewWindow(b.cache, rate.WindowConfig{
		Scope:  loginRateScope,
		Limit:  cfg.RateLimit.LoginLimit,
		Window: cfg.RateLimit.LoginWindow,
	})
	if err != nil {
		return nil, err
	}
	lockout := limiters.NewLockout(b.cache, limiters.LockoutConfig{
		Threshold: cfg.Lockout.Threshold,
		Window:    cfg.Lockout.Window,
	})

	// -------- PASSWORDS --------
	argon, err := password.NewArgon2(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MaxPasswordBytes: cfg.Password.MaxPasswordBytes,
	})
	if err != nil {
		return nil, err
	}

	// -------- AUDIT --------
	var dispatcher *audit.Dispatcher
	if cfg.Audit.Enabled {
		sink := b.auditSink
		if sink == nil {
			sink = audit.NewZapSink(logger.Named("audit"))
		}
		dispatcher = audit.NewDispatcher(audit.Config{
			Enabled:    true,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, sink)
	}

	e := &Engine{
		config:       cfg,
		cache:        b.cache,
		store:        b.store,
		encryption:   enc,
		tokens:       tokens,
		blacklist:    blacklist,
		tokenCache:   stores.NewTokenCache(b.cache, cfg.TokenCache.TTL),
		rbac:         rbac,
		loginLimiter: loginLimiter,
		lockout:      lockout,
		passwords:    password.NewVerifier(argon),
		metrics:      NewMetrics(cfg.Metrics),
		logger:       logger,
		clock:        clk,
		audit:        dispatcher,
		scheduler:    scheduler.New(clk, logger.Named("scheduler")),
	}

	// -------- OAUTH --------
	var oauthSink audit.Sink = audit.NoOpSink{}
	if dispatcher != nil {
		oauthSink = dispatcher
	}
	broker, err := oauth.NewBroker(oauth.Config{
		Providers:   cfg.OAuth.Providers,
		Tokens:      tokens,
		CacheTokens: e.cacheTokens,
		Audit:       oauthSink,
		HTTPClient:  b.httpClient,
		Now:         clk.Now,
		Logger:      logger.Named("oauth"),
	})
	if err != nil {
		e.Close()
		return nil, err
	}
	e.oauth = broker

	e.initFlows()

	b.built = true
	return e, nil
}
