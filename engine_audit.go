package seccore

import (
	"context"
	"errors"
	"time"

	"github.com/coreos-platform/seccore/errs"
)

const (
	auditEventLoginSuccess       = "login_success"
	auditEventLoginFailure       = "login_failure"
	auditEventLoginRateLimited   = "login_rate_limited"
	auditEventLoginLocked        = "login_locked"
	auditEventLockoutTriggered   = "lockout_triggered"
	auditEventRefreshSuccess     = "refresh_success"
	auditEventRefreshFailure     = "refresh_failure"
	auditEventRefreshReplay      = "refresh_replay_detected"
	auditEventLogout             = "logout"
	auditEventKeyRotated         = "encryption_key_rotated"
	auditEventKeyRotationFailure = "encryption_key_rotation_failed"
	auditEventTokenRevoked       = "token_revoked"
	auditEventSigningKeyRotated  = "signing_key_rotated"
)

// AuditErrorCode is the stable error label written to AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrInsufficientRole   AuditErrorCode = "insufficient_role"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrTokenExpired       AuditErrorCode = "token_expired"
	auditErrTokenRevoked       AuditErrorCode = "token_revoked"
	auditErrIntegration        AuditErrorCode = "integration_failure"
	auditErrKeyGeneration      AuditErrorCode = "key_generation"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	organizationID string,
	err error,
	detailsBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}
	if organizationID == "" {
		organizationID = organizationIDFromContext(ctx)
	}

	var details map[string]string
	if detailsBuilder != nil {
		details = detailsBuilder()
	}

	event := AuditEvent{
		Timestamp:      e.now().UTC(),
		EventType:      eventType,
		UserID:         userID,
		OrganizationID: organizationID,
		Success:        success,
		Details:        details,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	// Locked and role failures share the authentication kind; tell them
	// apart by identity before matching on kind.
	switch err {
	case ErrAccountLocked:
		return auditErrAccountLocked
	case ErrInsufficientRole:
		return auditErrInsufficientRole
	}

	switch {
	case errors.Is(err, errs.ErrAuthenticationFailed):
		return auditErrInvalidCredentials
	case errors.Is(err, errs.ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, errs.ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, errs.ErrTokenRevoked):
		return auditErrTokenRevoked
	case errors.Is(err, errs.ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, errs.ErrIntegration):
		return auditErrIntegration
	case errors.Is(err, errs.ErrKeyGeneration):
		return auditErrKeyGeneration
	case errors.Is(err, errs.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observe(id MetricID, start time.Time) {
	if e == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(id, e.now().Sub(start))
}
