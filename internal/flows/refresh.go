package flows

import (
	"context"
	"time"

	"github.com/coreos-platform/seccore/jwt"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureParse
	RefreshFailureWrongType
	RefreshFailureReplay
	RefreshFailureClaim
	RefreshFailureIssue
)

// RefreshResult carries either the issued token pair or failure metadata.
type RefreshResult struct {
	Failure      RefreshFailureKind
	Err          error
	UserID       string
	AccessToken  string
	RefreshToken string
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Timeout time.Duration
	Now     func() time.Time

	ParseToken func(ctx context.Context, token string) (*jwt.Claims, error)
	// ClaimToken atomically marks jti as consumed. It reports false when
	// another caller already consumed it.
	ClaimToken  func(ctx context.Context, jti string, ttl time.Duration) (bool, error)
	IssueTokens func(ctx context.Context, subject TokenSubject) (access, refresh string, err error)
	CacheTokens func(ctx context.Context, userID, access, refresh string) error

	EmitAudit AuditFunc
	Warn      func(string, ...any)

	Events RefreshEvents
}

// RefreshEvents carries audit event names used by the refresh flow.
type RefreshEvents struct {
	Refreshed string
	Failed    string
	Replay    string
}

// RunRefresh exchanges a refresh token for a new pair. The presented token
// is consumed exactly once: of concurrent refreshes with the same token only
// one succeeds.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}

	cctx, cancel := withTimeout(ctx, deps.Timeout)
	claims, err := deps.ParseToken(cctx, refreshToken)
	cancel()
	if err != nil {
		deps.EmitAudit(ctx, deps.Events.Failed, false, "", "", err, nil)
		return RefreshResult{Failure: RefreshFailureParse, Err: err}
	}
	if claims.Type != jwt.TypeRefresh {
		deps.EmitAudit(ctx, deps.Events.Failed, false, claims.Subject, "", nil, func() map[string]string {
			return map[string]string{"reason": "not_refresh_token"}
		})
		return RefreshResult{Failure: RefreshFailureWrongType, UserID: claims.Subject}
	}

	if deps.ClaimToken != nil {
		ttl := time.Second
		if claims.ExpiresAt != nil {
			if remaining := claims.ExpiresAt.Time.Sub(deps.Now()); remaining > ttl {
				ttl = remaining
			}
		}
		cctx, cancel := withTimeout(ctx, deps.Timeout)
		won, err := deps.ClaimToken(cctx, claims.ID, ttl)
		cancel()
		if err != nil {
			deps.Warn("refresh token claim failed", "user_id", claims.Subject, "error", err)
			return RefreshResult{Failure: RefreshFailureClaim, Err: err, UserID: claims.Subject}
		}
		if !won {
			deps.EmitAudit(ctx, deps.Events.Replay, false, claims.Subject, "", nil, nil)
			return RefreshResult{Failure: RefreshFailureReplay, UserID: claims.Subject}
		}
	}

	cctx, cancel = withTimeout(ctx, deps.Timeout)
	access, refresh, err := deps.IssueTokens(cctx, TokenSubject{
		UserID:      claims.Subject,
		Email:       claims.Email,
		Roles:       claims.Roles,
		Permissions: claims.Permissions,
	})
	cancel()
	if err != nil {
		deps.Warn("token issuance failed", "user_id", claims.Subject, "error", err)
		return RefreshResult{Failure: RefreshFailureIssue, Err: err, UserID: claims.Subject}
	}

	if deps.CacheTokens != nil {
		cctx, cancel := withTimeout(ctx, deps.Timeout)
		if err := deps.CacheTokens(cctx, claims.Subject, access, refresh); err != nil {
			deps.Warn("token cache write failed", "user_id", claims.Subject, "error", err)
		}
		cancel()
	}

	deps.EmitAudit(ctx, deps.Events.Refreshed, true, claims.Subject, "", nil, nil)
	return RefreshResult{UserID: claims.Subject, AccessToken: access, RefreshToken: refresh}
}
