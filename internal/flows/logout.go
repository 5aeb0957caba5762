package flows

import (
	"context"
	"errors"
	"time"

	"github.com/coreos-platform/seccore/jwt"
)

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	Timeout        time.Duration
	ParseToken     func(ctx context.Context, token string) (*jwt.Claims, error)
	BlacklistToken func(ctx context.Context, token string) error
	DropCache      func(ctx context.Context, userID string) error
	// InvalidateDecisions drops cached permission decisions for token. It
	// runs only once the token is on the blacklist.
	InvalidateDecisions func(token string)

	EmitAudit AuditFunc
	Warn      func(string, ...any)

	LogoutEvent string
}

// RunLogout revokes access and, when given, refresh. Tokens that are already
// expired or revoked are skipped. The first revocation failure is returned
// after every token has been attempted.
func RunLogout(ctx context.Context, access, refresh string, deps LogoutDeps) error {
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}

	var userID string
	if deps.ParseToken != nil {
		cctx, cancel := withTimeout(ctx, deps.Timeout)
		if claims, err := deps.ParseToken(cctx, access); err == nil {
			userID = claims.Subject
		}
		cancel()
	}

	var errs []error
	for _, tok := range []string{access, refresh} {
		if tok == "" {
			continue
		}
		cctx, cancel := withTimeout(ctx, deps.Timeout)
		err := deps.BlacklistToken(cctx, tok)
		cancel()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if deps.InvalidateDecisions != nil {
			deps.InvalidateDecisions(tok)
		}
	}

	if userID != "" && deps.DropCache != nil {
		cctx, cancel := withTimeout(ctx, deps.Timeout)
		if err := deps.DropCache(cctx, userID); err != nil {
			deps.Warn("token cache delete failed", "user_id", userID, "error", err)
		}
		cancel()
	}

	if len(errs) > 0 {
		deps.EmitAudit(ctx, deps.LogoutEvent, false, userID, "", errs[0], nil)
		return errs[0]
	}
	deps.EmitAudit(ctx, deps.LogoutEvent, true, userID, "", nil, nil)
	return nil
}

// ErrNoToken is returned by Logout when neither token is given.
var ErrNoToken = errors.New("flows: no token")
