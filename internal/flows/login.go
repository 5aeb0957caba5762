package flows

import (
	"context"
	"errors"
	"time"
)

// GlobalRateSubject is the rate-limit subject for requests without an
// organization.
const GlobalRateSubject = "global"

// LoginUser is a flow-local user model.
type LoginUser struct {
	UserID         string
	Email          string
	OrganizationID string
	PasswordHash   string
	Roles          []string
	Permissions    map[string]bool
}

// LoginOptions carries optional per-request login inputs.
type LoginOptions struct {
	OrganizationID string
}

// LoginResult is the flow-local login response shape.
type LoginResult struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	// NeedsRehash is set when the stored hash should be replaced with one
	// produced under the current password parameters.
	NeedsRehash bool
}

// LoginMetrics carries metric IDs needed by the login flow.
type LoginMetrics struct {
	LoginSuccess     int
	LoginFailure     int
	LoginRateLimited int
	LoginLocked      int
	LockoutTriggered int
}

// LoginEvents carries audit event names used by the login flow.
type LoginEvents struct {
	LoginSuccess     string
	LoginFailure     string
	LoginRateLimited string
	LoginLocked      string
	LockoutTriggered string
}

// LoginErrors carries host-level sentinel errors used by the login flow.
type LoginErrors struct {
	EngineNotReady     error
	InvalidCredentials error
	RateLimited        error
	Locked             error
	Unavailable        error
	UserNotFound       error
	RateLimitedCause   error
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	// Timeout bounds every cache call individually.
	Timeout time.Duration
	// StoreTimeout bounds the credential lookup. Zero falls back to Timeout.
	StoreTimeout time.Duration
	Now          func() time.Time

	TryAcquire       func(ctx context.Context, subject string) error
	LockoutCount     func(ctx context.Context, email string) (int, error)
	LockoutThreshold int
	RecordFailure    func(ctx context.Context, email string) (int, bool, error)
	ResetFailures    func(ctx context.Context, email string) error

	GetUserByEmail func(ctx context.Context, email string) (LoginUser, error)
	VerifyPassword func(password, hash string) (bool, error)
	DummyVerify    func(password string)
	NeedsRehash    func(hash string) bool

	IssueTokens func(ctx context.Context, subject TokenSubject) (access, refresh string, err error)
	CacheTokens func(ctx context.Context, userID, access, refresh string) error

	MetricInc func(int)
	EmitAudit AuditFunc
	Warn      func(string, ...any)

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// RunLogin authenticates email and password and issues a token pair.
//
// Order of checks: rate limit, lockout, credential lookup, password
// verification. Missing users and wrong passwords are indistinguishable to
// the caller and take comparable time.
func RunLogin(ctx context.Context, email, password string, opts LoginOptions, deps LoginDeps) (*LoginResult, error) {
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if deps.GetUserByEmail == nil ||
		deps.VerifyPassword == nil ||
		deps.IssueTokens == nil {
		return nil, deps.Errors.EngineNotReady
	}

	subjectHash := SubjectHash(email)
	details := func() map[string]string {
		return map[string]string{"subject_hash": subjectHash}
	}

	if deps.TryAcquire != nil {
		subject := opts.OrganizationID
		if subject == "" {
			subject = GlobalRateSubject
		}
		cctx, cancel := withTimeout(ctx, deps.Timeout)
		err := deps.TryAcquire(cctx, subject)
		cancel()
		if err != nil {
			if deps.Errors.RateLimitedCause != nil && errors.Is(err, deps.Errors.RateLimitedCause) {
				deps.MetricInc(deps.Metrics.LoginRateLimited)
				deps.EmitAudit(ctx, deps.Events.LoginRateLimited, false, "", opts.OrganizationID, deps.Errors.RateLimited, details)
				return nil, deps.Errors.RateLimited
			}
			deps.Warn("login rate limiter unavailable", "error", err)
			return nil, deps.Errors.Unavailable
		}
	}

	if deps.LockoutCount != nil && deps.LockoutThreshold > 0 {
		cctx, cancel := withTimeout(ctx, deps.Timeout)
		count, err := deps.LockoutCount(cctx, email)
		cancel()
		if err != nil {
			deps.Warn("lockout counter unavailable", "error", err)
			return nil, deps.Errors.Unavailable
		}
		if count >= deps.LockoutThreshold {
			deps.MetricInc(deps.Metrics.LoginLocked)
			deps.EmitAudit(ctx, deps.Events.LoginLocked, false, "", opts.OrganizationID, deps.Errors.Locked, details)
			return nil, deps.Errors.Locked
		}
	}

	storeTimeout := deps.StoreTimeout
	if storeTimeout <= 0 {
		storeTimeout = deps.Timeout
	}
	cctx, cancel := withTimeout(ctx, storeTimeout)
	user, err := deps.GetUserByEmail(cctx, email)
	cancel()
	if err != nil {
		if deps.Errors.UserNotFound == nil || !errors.Is(err, deps.Errors.UserNotFound) {
			deps.Warn("credential store lookup failed", "error", err)
			return nil, deps.Errors.Unavailable
		}
		if deps.DummyVerify != nil {
			deps.DummyVerify(password)
		}
		return nil, recordLoginFailure(ctx, email, "", opts.OrganizationID, details, deps)
	}

	ok, err := deps.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		if err != nil {
			deps.Warn("password verification error", "user_id", user.UserID, "error", err)
		}
		return nil, recordLoginFailure(ctx, email, user.UserID, orgOf(opts, user), details, deps)
	}

	if deps.ResetFailures != nil {
		cctx, cancel := withTimeout(ctx, deps.Timeout)
		if err := deps.ResetFailures(cctx, email); err != nil {
			deps.Warn("lockout reset failed", "user_id", user.UserID, "error", err)
		}
		cancel()
	}

	cctx, cancel = withTimeout(ctx, deps.Timeout)
	access, refresh, err := deps.IssueTokens(cctx, TokenSubject{
		UserID:         user.UserID,
		Email:          user.Email,
		OrganizationID: orgOf(opts, user),
		Roles:          user.Roles,
		Permissions:    user.Permissions,
	})
	cancel()
	if err != nil {
		deps.Warn("token issuance failed", "user_id", user.UserID, "error", err)
		return nil, deps.Errors.Unavailable
	}

	if deps.CacheTokens != nil {
		cctx, cancel := withTimeout(ctx, deps.Timeout)
		if err := deps.CacheTokens(cctx, user.UserID, access, refresh); err != nil {
			deps.Warn("token cache write failed", "user_id", user.UserID, "error", err)
		}
		cancel()
	}

	rehash := deps.NeedsRehash != nil && deps.NeedsRehash(user.PasswordHash)
	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, user.UserID, orgOf(opts, user), nil, func() map[string]string {
		m := details()
		if rehash {
			m["needs_rehash"] = "true"
		}
		return m
	})

	return &LoginResult{UserID: user.UserID, AccessToken: access, RefreshToken: refresh, NeedsRehash: rehash}, nil
}

func recordLoginFailure(ctx context.Context, email, userID, orgID string, details func() map[string]string, deps LoginDeps) error {
	deps.MetricInc(deps.Metrics.LoginFailure)

	if deps.RecordFailure != nil {
		cctx, cancel := withTimeout(ctx, deps.Timeout)
		count, reached, err := deps.RecordFailure(cctx, email)
		cancel()
		if err != nil {
			deps.Warn("lockout counter unavailable", "error", err)
			return deps.Errors.Unavailable
		}
		if reached {
			deps.MetricInc(deps.Metrics.LockoutTriggered)
			deps.EmitAudit(ctx, deps.Events.LockoutTriggered, false, userID, orgID, deps.Errors.Locked, func() map[string]string {
				m := details()
				m["failed_attempts"] = itoa(count)
				return m
			})
		}
	}

	deps.EmitAudit(ctx, deps.Events.LoginFailure, false, userID, orgID, deps.Errors.InvalidCredentials, details)
	return deps.Errors.InvalidCredentials
}

func orgOf(opts LoginOptions, user LoginUser) string {
	if opts.OrganizationID != "" {
		return opts.OrganizationID
	}
	return user.OrganizationID
}
