package permission

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/coreos-platform/seccore/cache"
)

const (
	// DefaultPermissionTTL bounds how long resolved role permissions are cached.
	DefaultPermissionTTL = 5 * time.Minute
	// DefaultDecisionTTL bounds how long a (token, permission) decision is cached.
	DefaultDecisionTTL = 30 * time.Second
)

// RoleSource verifies a token and reports its role claims and expiry.
type RoleSource interface {
	TokenRoles(ctx context.Context, token string) ([]string, time.Time, error)
}

// versionedSource is implemented by sources whose tokens are invalidated in
// bulk by bumping a version. Cached decisions are keyed by that version.
type versionedSource interface {
	Version() uint32
}

// Config configures an RBAC engine.
type Config struct {
	Hierarchy     *Hierarchy
	PermissionTTL time.Duration
	DecisionTTL   time.Duration
	CacheSize     int
	Now           func() time.Time
	Logger        *zap.Logger
}

type decisionKey struct {
	version    uint32
	tokenHash  string
	permission string
}

// RBAC resolves permissions from role claims.
//
// VerifyPermission is an authorization boundary: every failure, including
// panics in collaborators, is reported as a denial.
type RBAC struct {
	source    RoleSource
	hierarchy *Hierarchy
	now       func() time.Time
	logger    *zap.Logger

	decisionTTL time.Duration
	perms       *cache.Memo[Role, []Permission]
	decisions   *cache.Memo[decisionKey, bool]
}

// NewRBAC builds an engine reading roles from source.
func NewRBAC(source RoleSource, cfg Config) (*RBAC, error) {
	if source == nil {
		return nil, errors.New("permission: nil role source")
	}
	if cfg.Hierarchy == nil {
		cfg.Hierarchy = DefaultHierarchy()
	}
	if cfg.PermissionTTL <= 0 {
		cfg.PermissionTTL = DefaultPermissionTTL
	}
	if cfg.DecisionTTL <= 0 {
		cfg.DecisionTTL = DefaultDecisionTTL
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 10_000
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &RBAC{
		source:      source,
		hierarchy:   cfg.Hierarchy,
		now:         cfg.Now,
		logger:      cfg.Logger,
		decisionTTL: cfg.DecisionTTL,
		perms: cache.NewMemo[Role, []Permission](len(cfg.Hierarchy.closure), cfg.PermissionTTL,
			func(r Role) string { return string(r) }, cfg.Now),
		decisions: cache.NewMemo[decisionKey, bool](cfg.CacheSize, cfg.DecisionTTL,
			func(k decisionKey) string {
				return strconv.FormatUint(uint64(k.version), 10) + "|" + k.tokenHash + "|" + k.permission
			}, cfg.Now),
	}, nil
}

// GetUserPermissions returns the sorted effective permissions of role.
func (r *RBAC) GetUserPermissions(role string) ([]Permission, error) {
	parsed, err := ParseRole(role)
	if err != nil {
		return nil, err
	}
	perms, err := r.perms.GetOrLoad(parsed, r.hierarchy.Permissions)
	if err != nil {
		return nil, err
	}
	return append([]Permission(nil), perms...), nil
}

// RolesFor returns role and every role it inherits.
func (r *RBAC) RolesFor(role string) ([]Role, error) {
	parsed, err := ParseRole(role)
	if err != nil {
		return nil, err
	}
	return r.hierarchy.Inherited(parsed)
}

// Grants reports whether the union of roles grants permission. Any unknown
// role or permission denies.
func (r *RBAC) Grants(roles []string, permission string) bool {
	p, err := ParsePermission(permission)
	if err != nil {
		return false
	}
	bit, ok := r.hierarchy.registry.Bit(p)
	if !ok {
		return false
	}
	var union Mask64
	for _, name := range roles {
		role, err := ParseRole(name)
		if err != nil {
			return false
		}
		m, err := r.hierarchy.Mask(role)
		if err != nil {
			return false
		}
		union = union.Union(m)
	}
	return union.Has(bit)
}

// VerifyPermission verifies token and reports whether its roles grant
// permission. Decisions are cached for at most the decision TTL and never
// beyond the token's expiry.
func (r *RBAC) VerifyPermission(ctx context.Context, token, permission string) (allowed bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("permission check panicked", zap.Any("panic", rec))
			allowed = false
		}
	}()

	key := decisionKey{version: r.sourceVersion(), tokenHash: hashToken(token), permission: permission}
	if v, ok := r.decisions.Get(key); ok {
		return v
	}

	roles, exp, err := r.source.TokenRoles(ctx, token)
	if err != nil {
		r.logger.Debug("permission check denied", zap.String("permission", permission), zap.Error(err))
		return false
	}
	allowed = r.Grants(roles, permission)

	deadline := exp
	if limit := r.now().Add(r.decisionTTL); deadline.IsZero() || limit.Before(deadline) {
		deadline = limit
	}
	r.decisions.AddUntil(key, allowed, deadline)
	return allowed
}

// InvalidateToken drops every cached decision for token. Call it after the
// token has been revoked, never before, or a concurrent check may cache a
// grant again in between.
func (r *RBAC) InvalidateToken(token string) {
	key := decisionKey{version: r.sourceVersion(), tokenHash: hashToken(token)}
	for _, p := range AllPermissions() {
		key.permission = string(p)
		r.decisions.Remove(key)
	}
}

// InvalidateAll drops every cached decision.
func (r *RBAC) InvalidateAll() {
	r.decisions.Purge()
}

func (r *RBAC) sourceVersion() uint32 {
	if v, ok := r.source.(versionedSource); ok {
		return v.Version()
	}
	return 0
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
