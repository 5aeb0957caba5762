package seccore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/coreos-platform/seccore/cache"
	"github.com/coreos-platform/seccore/encryption"
	"github.com/coreos-platform/seccore/internal/audit"
	"github.com/coreos-platform/seccore/internal/flows"
	"github.com/coreos-platform/seccore/internal/limiters"
	"github.com/coreos-platform/seccore/internal/rate"
	"github.com/coreos-platform/seccore/internal/scheduler"
	"github.com/coreos-platform/seccore/internal/stores"
	"github.com/coreos-platform/seccore/jwt"
	"github.com/coreos-platform/seccore/oauth"
	"github.com/coreos-platform/seccore/password"
	"github.com/coreos-platform/seccore/permission"
)

// CachedTokens is the most recent token pair recorded for a user.
type CachedTokens = stores.CachedTokens

// ErrTokensNotCached is returned by CachedTokens when no pair is recorded.
var ErrTokensNotCached = stores.ErrTokensNotFound

// Engine is the security core. It is built by [Builder] and safe for
// concurrent use.
type Engine struct {
	config       Config
	cache        cache.Cache
	store        CredentialStore
	encryption   *encryption.Service
	tokens       *jwt.Manager
	blacklist    *stores.Blacklist
	tokenCache   *stores.TokenCache
	rbac         *permission.RBAC
	loginLimiter rate.Limiter
	lockout      *limiters.Lockout
	passwords    *password.Verifier
	oauth        *oauth.Broker
	audit        *audit.Dispatcher
	metrics      *Metrics
	logger       *zap.Logger
	clock        clock.Clock
	scheduler    *scheduler.Runner
	flows        flows.Service
}

// Close stops scheduled rotation and drains the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.scheduler != nil {
		e.scheduler.Stop()
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports audit events dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditFailed reports audit events lost because the sink panicked.
func (e *Engine) AuditFailed() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Failed()
}

// MetricsSnapshot returns a copy of the in-process counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Encryption exposes the AEAD service.
func (e *Engine) Encryption() *encryption.Service { return e.encryption }

// Tokens exposes the token service.
func (e *Engine) Tokens() *jwt.Manager { return e.tokens }

// RBAC exposes the permission engine.
func (e *Engine) RBAC() *permission.RBAC { return e.rbac }

// OAuth exposes the OAuth2 broker.
func (e *Engine) OAuth() *oauth.Broker { return e.oauth }

func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now()
	}
	return e.clock.Now()
}

/*
====================================
FLOW WIRING
====================================
*/

func (e *Engine) initFlows() {
	warn := e.logger.Sugar().Warnw
	emit := flows.AuditFunc(e.emitAudit)

	e.flows = flows.New(flows.Deps{
		Login: flows.LoginDeps{
			Timeout:          e.config.Timeouts.Cache,
			StoreTimeout:     e.config.Timeouts.Store,
			Now:              e.now,
			TryAcquire:       e.loginLimiter.TryAcquire,
			LockoutCount:     e.lockout.Count,
			LockoutThreshold: e.lockout.Threshold(),
			RecordFailure:    e.lockout.RecordFailure,
			ResetFailures:    e.lockout.Reset,
			GetUserByEmail:   e.lookupUser,
			VerifyPassword:   e.passwords.Verify,
			DummyVerify:      e.passwords.DummyVerify,
			NeedsRehash:      e.passwords.NeedsRehash,
			IssueTokens:      e.issueTokens,
			CacheTokens:      e.cacheTokens,
			MetricInc:        func(id int) { e.metricInc(MetricID(id)) },
			EmitAudit:        emit,
			Warn:             warn,
			Metrics: flows.LoginMetrics{
				LoginSuccess:     int(MetricLoginSuccess),
				LoginFailure:     int(MetricLoginFailure),
				LoginRateLimited: int(MetricLoginRateLimited),
				LoginLocked:      int(MetricLoginLocked),
				LockoutTriggered: int(MetricLockoutTriggered),
			},
			Events: flows.LoginEvents{
				LoginSuccess:     auditEventLoginSuccess,
				LoginFailure:     auditEventLoginFailure,
				LoginRateLimited: auditEventLoginRateLimited,
				LoginLocked:      auditEventLoginLocked,
				LockoutTriggered: auditEventLockoutTriggered,
			},
			Errors: flows.LoginErrors{
				EngineNotReady:     ErrEngineNotReady,
				InvalidCredentials: ErrAuthenticationFailed,
				RateLimited:        ErrRateLimited,
				Locked:             ErrAccountLocked,
				Unavailable:        ErrUnavailable,
				UserNotFound:       ErrUserNotFound,
				RateLimitedCause:   rate.ErrRateLimited,
			},
		},
		Refresh: flows.RefreshDeps{
			Timeout:     e.config.Timeouts.Cache,
			Now:         e.now,
			ParseToken:  e.tokens.VerifyToken,
			ClaimToken:  e.blacklist.Claim,
			IssueTokens: e.issueTokens,
			CacheTokens: e.cacheTokens,
			EmitAudit:   emit,
			Warn:        warn,
			Events: flows.RefreshEvents{
				Refreshed: auditEventRefreshSuccess,
				Failed:    auditEventRefreshFailure,
				Replay:    auditEventRefreshReplay,
			},
		},
		Validate: flows.ValidateDeps{
			Timeout:    e.config.Timeouts.Cache,
			ParseToken: e.tokens.VerifyToken,
		},
		Logout: flows.LogoutDeps{
			Timeout:             e.config.Timeouts.Cache,
			ParseToken:          e.tokens.VerifyToken,
			BlacklistToken:      e.tokens.BlacklistToken,
			DropCache:           e.tokenCache.Delete,
			InvalidateDecisions: e.rbac.InvalidateToken,
			EmitAudit:           emit,
			Warn:                warn,
			LogoutEvent:         auditEventLogout,
		},
	})
}

// lookupUser folds a nil record into ErrUserNotFound.
func (e *Engine) lookupUser(ctx context.Context, email string) (flows.LoginUser, error) {
	u, err := e.store.GetByEmail(ctx, limiters.NormalizeEmail(email))
	if err != nil {
		return flows.LoginUser{}, err
	}
	if u == nil {
		return flows.LoginUser{}, ErrUserNotFound
	}
	return flows.LoginUser{
		UserID:         u.UserID,
		Email:          u.Email,
		OrganizationID: u.OrganizationID,
		PasswordHash:   u.PasswordHash,
		Roles:          u.Roles,
		Permissions:    u.Permissions,
	}, nil
}

func (e *Engine) issueTokens(_ context.Context, s flows.TokenSubject) (string, string, error) {
	claims := jwt.Claims{Email: s.Email}
	claims.Subject = s.UserID
	access, err := e.tokens.CreateToken(claims, s.Roles, s.Permissions, 0)
	if err != nil {
		return "", "", err
	}
	refresh, err := e.tokens.CreateRefreshToken(s.UserID, s.Roles, s.Permissions)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (e *Engine) cacheTokens(ctx context.Context, userID, access, refresh string) error {
	return e.tokenCache.Save(ctx, userID, stores.CachedTokens{
		AccessToken:  access,
		RefreshToken: refresh,
		CreatedAt:    e.now().UTC(),
	})
}

func (e *Engine) pair(access, refresh string) *TokenPair {
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int(e.tokens.AccessTTL() / time.Second),
	}
}

/*
====================================
AUTHENTICATION
====================================
*/

// AuthenticateUser verifies email and password and issues a token pair.
//
// Errors: ErrRateLimited when the organization's login budget is spent,
// ErrAccountLocked (an ErrAuthenticationFailed kind) while a lockout is
// active, ErrAuthenticationFailed for unknown users and wrong passwords, and
// ErrUnavailable when the cache or credential store cannot answer.
func (e *Engine) AuthenticateUser(ctx context.Context, email, password string, opts AuthOptions) (*TokenPair, error) {
	if e == nil || !e.flows.Initialized() {
		return nil, ErrEngineNotReady
	}
	if opts.OrganizationID == "" {
		opts.OrganizationID = organizationIDFromContext(ctx)
	}

	res, err := e.flows.Login(ctx, strings.TrimSpace(email), password, flows.LoginOptions{
		OrganizationID: opts.OrganizationID,
	})
	if err != nil {
		return nil, err
	}
	return e.pair(res.AccessToken, res.RefreshToken), nil
}

// RefreshToken exchanges a refresh token for a new pair. The presented token
// is revoked; presenting it again fails. Every failure is reported as
// ErrAuthenticationFailed with the underlying reason attached.
func (e *Engine) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil || !e.flows.Initialized() {
		return nil, ErrEngineNotReady
	}

	res := e.flows.Refresh(ctx, refreshToken)
	switch res.Failure {
	case flows.RefreshFailureNone:
		e.metricInc(MetricRefreshSuccess)
		return e.pair(res.AccessToken, res.RefreshToken), nil
	case flows.RefreshFailureReplay:
		e.metricInc(MetricReplayDetected)
		e.metricInc(MetricRefreshFailure)
		return nil, ErrAuthenticationFailed.WithMessage("refresh token already used")
	case flows.RefreshFailureWrongType:
		e.metricInc(MetricRefreshFailure)
		return nil, ErrAuthenticationFailed.WithMessage("not a refresh token")
	default:
		e.metricInc(MetricRefreshFailure)
		if res.Err == nil {
			return nil, ErrAuthenticationFailed
		}
		return nil, ErrAuthenticationFailed.WithMessage("refresh failed").Wrap(res.Err)
	}
}

// ValidateToken verifies an access token and returns its claims. With
// requiredRoles, the token must carry at least one of them; otherwise
// ErrInsufficientRole is returned. Verification failures keep their kind
// (ErrInvalidToken, ErrTokenExpired, ErrTokenRevoked).
func (e *Engine) ValidateToken(ctx context.Context, token string, requiredRoles ...string) (*jwt.Claims, error) {
	if e == nil || !e.flows.Initialized() {
		return nil, ErrEngineNotReady
	}
	start := e.now()
	defer e.observe(MetricValidateLatency, start)

	res := e.flows.Validate(ctx, token, requiredRoles)
	switch res.Failure {
	case flows.ValidateFailureNone:
		e.metricInc(MetricValidateSuccess)
		return res.Claims, nil
	case flows.ValidateFailureRole:
		e.metricInc(MetricValidateFailure)
		return nil, ErrInsufficientRole
	case flows.ValidateFailureWrongType:
		e.metricInc(MetricValidateFailure)
		return nil, ErrInvalidToken.WithMessage("not an access token")
	default:
		e.metricInc(MetricValidateFailure)
		return nil, res.Err
	}
}

// Logout revokes the given tokens and drops the user's cached pair. Either
// token may be empty, not both.
func (e *Engine) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if e == nil || !e.flows.Initialized() {
		return ErrEngineNotReady
	}
	if err := e.flows.Logout(ctx, accessToken, refreshToken); err != nil {
		if errors.Is(err, flows.ErrNoToken) {
			return ErrInvalidToken.WithMessage("no token to revoke")
		}
		return err
	}
	e.metricInc(MetricLogout)
	return nil
}

// BlacklistToken revokes token until its expiry and drops any permission
// decision cached for it. Use it instead of Tokens().BlacklistToken so
// VerifyPermission stops granting immediately.
func (e *Engine) BlacklistToken(ctx context.Context, token string) error {
	if e == nil || e.tokens == nil || e.rbac == nil {
		return ErrEngineNotReady
	}
	cctx, cancel := context.WithTimeout(ctx, e.config.Timeouts.Cache)
	err := e.tokens.BlacklistToken(cctx, token)
	cancel()
	if err != nil {
		e.emitAudit(ctx, auditEventTokenRevoked, false, "", "", err, nil)
		return err
	}
	e.rbac.InvalidateToken(token)
	e.emitAudit(ctx, auditEventTokenRevoked, true, "", "", nil, nil)
	return nil
}

// RotateSigningKey installs a new token signing secret. Every token issued
// before the call, and every permission decision cached for one, stops
// being honoured when it returns.
func (e *Engine) RotateSigningKey(ctx context.Context, secret []byte) error {
	if e == nil || e.tokens == nil || e.rbac == nil {
		return ErrEngineNotReady
	}
	if err := e.tokens.RotateSigningKey(secret); err != nil {
		return err
	}
	e.rbac.InvalidateAll()
	e.emitAudit(ctx, auditEventSigningKeyRotated, true, "", "", nil, func() map[string]string {
		return map[string]string{"token_version": strconv.FormatUint(uint64(e.tokens.Version()), 10)}
	})
	return nil
}

// CachedTokens returns the last pair issued to userID while it is cached.
func (e *Engine) CachedTokens(ctx context.Context, userID string) (*CachedTokens, error) {
	if e == nil || e.tokenCache == nil {
		return nil, ErrEngineNotReady
	}
	ctx, cancel := context.WithTimeout(ctx, e.config.Timeouts.Cache)
	defer cancel()
	return e.tokenCache.Get(ctx, userID)
}

/*
====================================
AUTHORIZATION
====================================
*/

// VerifyPermission reports whether the token's roles grant permission. Any
// failure is a denial.
func (e *Engine) VerifyPermission(ctx context.Context, token, permission string) bool {
	if e == nil || e.rbac == nil {
		return false
	}
	ok := e.rbac.VerifyPermission(ctx, token, permission)
	if !ok {
		e.metricInc(MetricPermissionDenied)
	}
	return ok
}

// GetUserPermissions returns the effective permission names of role, sorted.
func (e *Engine) GetUserPermissions(role string) ([]string, error) {
	if e == nil || e.rbac == nil {
		return nil, ErrEngineNotReady
	}
	perms, err := e.rbac.GetUserPermissions(role)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out, nil
}

/*
====================================
FEDERATION
====================================
*/

// AuthenticateOAuth2 completes an authorization-code login with provider.
func (e *Engine) AuthenticateOAuth2(ctx context.Context, provider, code string, opts oauth.AuthOptions) (*oauth.Result, error) {
	if e == nil || e.oauth == nil {
		return nil, ErrEngineNotReady
	}
	if opts.OrganizationID == "" {
		opts.OrganizationID = organizationIDFromContext(ctx)
	}
	res, err := e.oauth.AuthenticateOAuth2(ctx, provider, code, opts)
	if err != nil {
		e.metricInc(MetricOAuthLoginFailure)
		return nil, err
	}
	e.metricInc(MetricOAuthLoginSuccess)
	return res, nil
}

/*
====================================
KEY ROTATION
====================================
*/

// RotateEncryptionKey makes a fresh key active. The previous key keeps
// decrypting until the next rotation.
func (e *Engine) RotateEncryptionKey(ctx context.Context) (encryption.Key, error) {
	if e == nil || e.encryption == nil {
		return encryption.Key{}, ErrEngineNotReady
	}
	previous := e.encryption.ActiveKey().ID
	k, err := e.encryption.RotateKey()
	if err != nil {
		e.metricInc(MetricKeyRotationFailure)
		e.emitAudit(ctx, auditEventKeyRotationFailure, false, "", "", err, nil)
		return encryption.Key{}, err
	}
	e.metricInc(MetricKeyRotation)
	e.emitAudit(ctx, auditEventKeyRotated, true, "", "", nil, func() map[string]string {
		return map[string]string{"key_id": k.ID, "previous_key_id": previous}
	})
	return k, nil
}

// StartKeyRotation rotates the encryption key every
// Encryption.RotationInterval until ctx is cancelled or Close is called.
func (e *Engine) StartKeyRotation(ctx context.Context) error {
	if e == nil || e.scheduler == nil {
		return ErrEngineNotReady
	}
	every := e.config.Encryption.RotationInterval
	if every <= 0 {
		return errors.New("key rotation disabled: Encryption RotationInterval is 0")
	}
	err := e.scheduler.Register("encryption_key_rotation", every, func(ctx context.Context, _, _ time.Time) error {
		_, err := e.RotateEncryptionKey(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("scheduling key rotation: %w", err)
	}
	e.scheduler.Start(ctx)
	return nil
}
