package seccore

import (
	"errors"

	"github.com/coreos-platform/seccore/errs"
)

// Error is the coded error type returned by every Engine operation. Match
// kinds with errors.Is against the sentinels below.
type Error = errs.Error

var (
	// ErrAuthenticationFailed covers bad credentials, locked accounts, failed refreshes and role checks.
	ErrAuthenticationFailed = errs.ErrAuthenticationFailed
	// ErrInvalidToken is returned for malformed, foreign or superseded tokens.
	ErrInvalidToken = errs.ErrInvalidToken
	// ErrTokenExpired is returned once a token's exp claim has passed.
	ErrTokenExpired = errs.ErrTokenExpired
	// ErrTokenRevoked is returned for blacklisted tokens.
	ErrTokenRevoked = errs.ErrTokenRevoked
	// ErrRateLimited is returned when a request budget is exhausted.
	ErrRateLimited = errs.ErrRateLimited
	// ErrDecryptionAuthFailed is returned when sealed data fails authentication.
	ErrDecryptionAuthFailed = errs.ErrDecryptionAuthFailed
	// ErrKeyGeneration is returned when key material cannot be generated.
	ErrKeyGeneration = errs.ErrKeyGeneration
	// ErrIntegration is returned when an identity provider fails.
	ErrIntegration = errs.ErrIntegration
	// ErrUnavailable is returned when a collaborator times out or errors.
	ErrUnavailable = errs.ErrUnavailable

	// ErrAccountLocked is the ErrAuthenticationFailed kind returned while a lockout is active.
	ErrAccountLocked = errs.ErrAuthenticationFailed.WithMessage("account temporarily locked")
	// ErrInsufficientRole is the ErrAuthenticationFailed kind returned by ValidateToken role checks.
	ErrInsufficientRole = errs.ErrAuthenticationFailed.WithMessage("insufficient permissions")

	// ErrUserNotFound is returned by a CredentialStore when no user matches.
	ErrUserNotFound = errors.New("user not found")
	// ErrEngineNotReady is returned by a zero Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
