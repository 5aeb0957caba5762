package jwt

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coreos-platform/seccore/errs"
)

const (
	// DefaultAccessTTL is applied when CreateToken is called with ttl <= 0.
	DefaultAccessTTL = 30 * time.Minute
	// DefaultRefreshTTL is the lifetime of refresh tokens.
	DefaultRefreshTTL = 7 * 24 * time.Hour
	// MinSecretSize is the shortest HS256 secret accepted.
	MinSecretSize = 32
)

// TokenType distinguishes access tokens from refresh tokens.
type TokenType string

const (
	TypeAccess  TokenType = "access"
	TypeRefresh TokenType = "refresh"
)

var (
	// ErrWeakSecret is returned when a signing secret is shorter than MinSecretSize.
	ErrWeakSecret = errors.New("jwt: signing secret must be at least 32 bytes")
	// ErrNoBlacklist is returned by BlacklistToken when no blacklist is configured.
	ErrNoBlacklist = errors.New("jwt: no blacklist configured")
)

// Blacklist records revoked token ids until their natural expiry.
type Blacklist interface {
	Add(ctx context.Context, jti string, ttl time.Duration) error
	Contains(ctx context.Context, jti string) (bool, error)
}

// PermissionResolver reports whether any of roles grants permission.
type PermissionResolver func(roles []string, permission string) bool

// Config configures a Manager.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	Leeway     time.Duration
	Blacklist  Blacklist
	Resolver   PermissionResolver
	Now        func() time.Time
	Logger     *zap.Logger
}

// Claims is the signed claim set carried by every token.
type Claims struct {
	Roles        []string        `json:"roles"`
	Permissions  map[string]bool `json:"permissions,omitempty"`
	TokenVersion uint32          `json:"token_version"`
	Type         TokenType       `json:"typ"`
	Email        string          `json:"email,omitempty"`
	Provider     string          `json:"provider,omitempty"`
	Scope        string          `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

type signer struct {
	secret  []byte
	version uint32
}

// Manager issues, verifies and revokes HS256 tokens. Rotating the signing
// secret bumps the token version, which invalidates every earlier token.
type Manager struct {
	signer     atomic.Pointer[signer]
	rotateMu   sync.Mutex
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	leeway     time.Duration
	blacklist  Blacklist
	resolver   PermissionResolver
	now        func() time.Time
	logger     *zap.Logger
}

// NewManager describes the newmanager operation and its observable behavior.
//
// NewManager returns an error when the secret is too short or the TTL and
// leeway settings are out of range.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < MinSecretSize {
		return nil, ErrWeakSecret
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.AccessTTL < 0 || cfg.RefreshTTL < 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	m := &Manager{
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		issuer:     cfg.Issuer,
		leeway:     cfg.Leeway,
		blacklist:  cfg.Blacklist,
		resolver:   cfg.Resolver,
		now:        cfg.Now,
		logger:     cfg.Logger,
	}
	m.signer.Store(&signer{secret: clone(cfg.Secret), version: 1})
	return m, nil
}

// SetResolver installs the role-to-permission resolver used by HasPermission.
// It must be called before the manager is shared.
func (m *Manager) SetResolver(r PermissionResolver) {
	m.resolver = r
}

// AccessTTL returns the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.accessTTL }

// RefreshTTL returns the configured refresh-token lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.refreshTTL }

// Version returns the current token version.
func (m *Manager) Version() uint32 {
	return m.signer.Load().version
}

// CreateToken signs claims for ttl. iat, exp, jti and token_version are
// always set by the manager; ttl <= 0 selects the access-token default.
// The Subject and optional Email, Provider, Scope and Type fields of claims
// are kept.
func (m *Manager) CreateToken(claims Claims, roles []string, permissions map[string]bool, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = m.accessTTL
	}
	if claims.Type == "" {
		claims.Type = TypeAccess
	}
	s := m.signer.Load()
	now := m.now()

	claims.Roles = slices.Clone(roles)
	if claims.Roles == nil {
		claims.Roles = []string{}
	}
	if len(permissions) > 0 {
		claims.Permissions = make(map[string]bool, len(permissions))
		for k, v := range permissions {
			claims.Permissions[k] = v
		}
	}
	claims.TokenVersion = s.version
	claims.ID = uuid.NewString()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	if m.issuer != "" {
		claims.Issuer = m.issuer
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign: %w", err)
	}
	return signed, nil
}

// CreateRefreshToken signs a refresh token for subject with the refresh TTL.
func (m *Manager) CreateRefreshToken(subject string, roles []string, permissions map[string]bool) (string, error) {
	c := Claims{Type: TypeRefresh}
	c.Subject = subject
	return m.CreateToken(c, roles, permissions, m.refreshTTL)
}

func (m *Manager) parser(extra ...jwt.ParserOption) *jwt.Parser {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	}
	if m.leeway > 0 {
		opts = append(opts, jwt.WithLeeway(m.leeway))
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	return jwt.NewParser(append(opts, extra...)...)
}

// VerifyToken describes the verifytoken operation and its observable behavior.
//
// VerifyToken returns errs.ErrInvalidToken for malformed tokens, bad
// signatures, unexpected algorithms and version mismatches,
// errs.ErrTokenExpired once exp has passed and errs.ErrTokenRevoked for
// blacklisted ids. A blacklist that cannot be read fails closed with
// errs.ErrUnavailable.
func (m *Manager) VerifyToken(ctx context.Context, token string) (*Claims, error) {
	s := m.signer.Load()

	var claims Claims
	_, err := m.parser(jwt.WithExpirationRequired()).ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errs.ErrTokenExpired
		}
		return nil, errs.ErrInvalidToken.Wrap(err)
	}
	if claims.TokenVersion != s.version {
		return nil, errs.ErrInvalidToken.WithMessage("invalid token: version mismatch")
	}
	if claims.ID == "" {
		return nil, errs.ErrInvalidToken.WithMessage("invalid token: missing jti")
	}

	if m.blacklist != nil {
		revoked, err := m.blacklist.Contains(ctx, claims.ID)
		if err != nil {
			m.logger.Warn("token blacklist lookup failed", zap.Error(err))
			return nil, errs.ErrUnavailable.Wrap(err)
		}
		if revoked {
			return nil, errs.ErrTokenRevoked
		}
	}
	return &claims, nil
}

// BlacklistToken revokes token until its exp. The signature must verify
// under the current secret, but expiry is not checked. Tokens that are
// already expired, or were signed before the last rotation, are no-ops
// because they can no longer verify anyway. Repeated calls are harmless.
func (m *Manager) BlacklistToken(ctx context.Context, token string) error {
	if m.blacklist == nil {
		return ErrNoBlacklist
	}
	s := m.signer.Load()

	var claims Claims
	_, err := m.parser(jwt.WithoutClaimsValidation()).ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil
		}
		return errs.ErrInvalidToken.Wrap(err)
	}
	if claims.TokenVersion != s.version {
		return nil
	}
	if claims.ID == "" || claims.ExpiresAt == nil {
		return errs.ErrInvalidToken.WithMessage("invalid token: missing jti or exp")
	}

	ttl := claims.ExpiresAt.Time.Sub(m.now()) + m.leeway
	if ttl <= 0 {
		return nil
	}
	if err := m.blacklist.Add(ctx, claims.ID, ttl); err != nil {
		return errs.ErrUnavailable.Wrap(err)
	}
	return nil
}

// RotateSigningKey installs secret and bumps the token version. Every token
// issued before the call stops verifying as soon as it returns.
func (m *Manager) RotateSigningKey(secret []byte) error {
	if len(secret) < MinSecretSize {
		return ErrWeakSecret
	}
	m.rotateMu.Lock()
	defer m.rotateMu.Unlock()

	old := m.signer.Load()
	next := &signer{secret: clone(secret), version: old.version + 1}
	m.signer.Store(next)
	m.logger.Info("token signing key rotated", zap.Uint32("token_version", next.version))
	return nil
}

// verifyAccess is VerifyToken restricted to access tokens. Refresh tokens
// only ever buy a new pair; they authorize nothing.
func (m *Manager) verifyAccess(ctx context.Context, token string) (*Claims, error) {
	c, err := m.VerifyToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if c.Type != TypeAccess {
		return nil, errs.ErrInvalidToken.WithMessage("invalid token: not an access token")
	}
	return c, nil
}

// TokenRoles verifies an access token and returns its role claims and expiry.
func (m *Manager) TokenRoles(ctx context.Context, token string) ([]string, time.Time, error) {
	c, err := m.verifyAccess(ctx, token)
	if err != nil {
		return nil, time.Time{}, err
	}
	return c.Roles, c.ExpiresAt.Time, nil
}

// HasRole reports whether token is a valid access token carrying role. Any
// verification failure yields false; callers that need the reason use
// VerifyToken.
func (m *Manager) HasRole(ctx context.Context, token, role string) bool {
	c, err := m.verifyAccess(ctx, token)
	if err != nil {
		return false
	}
	return slices.Contains(c.Roles, role)
}

// HasPermission reports whether token is a valid access token granting
// permission, either through an explicit permission claim or through its
// roles. Any verification failure yields false.
func (m *Manager) HasPermission(ctx context.Context, token, permission string) bool {
	c, err := m.verifyAccess(ctx, token)
	if err != nil {
		return false
	}
	if granted, ok := c.Permissions[permission]; ok {
		return granted
	}
	if m.resolver == nil {
		return false
	}
	return m.resolver(c.Roles, permission)
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
