// Package errs defines the coded error kinds shared by every seccore component.
//
// Each kind is a sentinel *Error carrying a stable Code and a human-readable
// Message. Components return copies that wrap an internal cause; callers match
// kinds with errors.Is, which compares codes, never messages.
//
// # What this package must NOT do
//
//   - Carry secrets, passwords, raw tokens or key material in Message or cause.
//   - Import any other seccore package.
package errs

import "errors"

// Error is a coded security error.
type Error struct {
	Code    string
	Message string
	cause   error
}

var (
	// ErrAuthenticationFailed covers bad credentials, locked accounts and failed role checks.
	ErrAuthenticationFailed = &Error{Code: "auth_001", Message: "authentication failed"}
	// ErrInvalidToken covers malformed tokens, bad signatures and version mismatches.
	ErrInvalidToken = &Error{Code: "auth_002", Message: "invalid token"}
	// ErrTokenExpired is returned once a token's exp claim has passed.
	ErrTokenExpired = &Error{Code: "auth_005", Message: "token expired"}
	// ErrTokenRevoked is returned when a token's jti is blacklisted.
	ErrTokenRevoked = &Error{Code: "auth_006", Message: "token revoked"}
	// ErrRateLimited is returned when a token bucket or window is exhausted.
	ErrRateLimited = &Error{Code: "api_001", Message: "rate limit exceeded"}
	// ErrDecryptionAuthFailed is returned when an AEAD tag does not verify.
	ErrDecryptionAuthFailed = &Error{Code: "crypto_005", Message: "decryption authentication failed"}
	// ErrKeyGeneration is returned when the platform RNG cannot supply key material.
	ErrKeyGeneration = &Error{Code: "crypto_001", Message: "key generation failed"}
	// ErrIntegration is returned when an identity provider responds with a failure.
	ErrIntegration = &Error{Code: "int_001", Message: "integration failure"}
	// ErrUnavailable is returned when a collaborator (cache, credential store)
	// could not answer in time. It is recoverable.
	ErrUnavailable = &Error{Code: "sys_001", Message: "backend unavailable"}
)

// Error returns the message, followed by the cause when present.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

// Unwrap exposes the wrapped cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// Wrap returns a copy of the kind carrying cause.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Code: e.Code, Message: e.Message, cause: cause}
}

// WithMessage returns a copy of the kind with a different user-facing message.
// The code is unchanged so errors.Is still matches.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{Code: e.Code, Message: msg, cause: e.cause}
}

// Code extracts the stable code from err, or "" when err carries no kind.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
