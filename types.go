package seccore

import (
	"context"
	"io"

	"go.uber.org/zap"

	internalaudit "github.com/coreos-platform/seccore/internal/audit"
	internalmetrics "github.com/coreos-platform/seccore/internal/metrics"
)

// CredentialStore looks up users for password authentication. It is owned by
// the persistence layer; the Engine never writes to it.
//
// GetByEmail returns ErrUserNotFound, or a nil record, when no user matches.
// Any other error is treated as the store being unavailable.
type CredentialStore interface {
	GetByEmail(ctx context.Context, email string) (*UserRecord, error)
}

// CredentialStoreFunc adapts a function to CredentialStore.
type CredentialStoreFunc func(ctx context.Context, email string) (*UserRecord, error)

func (f CredentialStoreFunc) GetByEmail(ctx context.Context, email string) (*UserRecord, error) {
	return f(ctx, email)
}

// UserRecord is the minimal user projection needed to authenticate.
//
// PasswordHash is an argon2id PHC string or a bcrypt hash.
type UserRecord struct {
	UserID         string
	Email          string
	OrganizationID string
	PasswordHash   string
	Roles          []string
	Permissions    map[string]bool
}

// TokenPair is returned by AuthenticateUser and RefreshToken.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int `json:"expires_in"`
}

// AuthOptions carries optional per-request authentication inputs.
type AuthOptions struct {
	// OrganizationID scopes the login rate budget. Requests without one
	// share a global budget.
	OrganizationID string
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// ZapSink is an [AuditSink] that logs events through zap.
type ZapSink = internalaudit.ZapSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewZapSink creates a [ZapSink] logging to logger.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return internalaudit.NewZapSink(logger)
}

// MetricID identifies a counter or histogram in the in-process metrics
// table.
type MetricID = internalmetrics.MetricID

const (
	MetricLoginSuccess       = internalmetrics.MetricLoginSuccess
	MetricLoginFailure       = internalmetrics.MetricLoginFailure
	MetricLoginRateLimited   = internalmetrics.MetricLoginRateLimited
	MetricLoginLocked        = internalmetrics.MetricLoginLocked
	MetricLockoutTriggered   = internalmetrics.MetricLockoutTriggered
	MetricRefreshSuccess     = internalmetrics.MetricRefreshSuccess
	MetricRefreshFailure     = internalmetrics.MetricRefreshFailure
	MetricReplayDetected     = internalmetrics.MetricReplayDetected
	MetricValidateSuccess    = internalmetrics.MetricValidateSuccess
	MetricValidateFailure    = internalmetrics.MetricValidateFailure
	MetricPermissionDenied   = internalmetrics.MetricPermissionDenied
	MetricLogout             = internalmetrics.MetricLogout
	MetricOAuthLoginSuccess  = internalmetrics.MetricOAuthLoginSuccess
	MetricOAuthLoginFailure  = internalmetrics.MetricOAuthLoginFailure
	MetricKeyRotation        = internalmetrics.MetricKeyRotation
	MetricKeyRotationFailure = internalmetrics.MetricKeyRotationFailure
	MetricValidateLatency    = internalmetrics.MetricValidateLatency
)

// Metrics holds atomic counters and optional latency histograms.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time deep copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a [Metrics] configured by cfg. When Enabled is false,
// all operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}
