package flows

import (
	"context"
	"slices"
	"time"

	"github.com/coreos-platform/seccore/jwt"
)

// ValidateFailureKind classifies validation failures for root-level mapping.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureToken
	ValidateFailureWrongType
	ValidateFailureRole
)

// ValidateResult returns either claims or a classified failure.
type ValidateResult struct {
	Failure ValidateFailureKind
	Err     error
	Claims  *jwt.Claims
}

// ValidateDeps captures access-token validation dependencies.
type ValidateDeps struct {
	Timeout    time.Duration
	ParseToken func(ctx context.Context, token string) (*jwt.Claims, error)
}

// RunValidate verifies an access token and, when requiredRoles is non-empty,
// requires at least one of them among the token's roles.
func RunValidate(ctx context.Context, token string, requiredRoles []string, deps ValidateDeps) ValidateResult {
	cctx, cancel := withTimeout(ctx, deps.Timeout)
	claims, err := deps.ParseToken(cctx, token)
	cancel()
	if err != nil {
		return ValidateResult{Failure: ValidateFailureToken, Err: err}
	}
	if claims.Type != "" && claims.Type != jwt.TypeAccess {
		return ValidateResult{Failure: ValidateFailureWrongType}
	}

	if len(requiredRoles) == 0 {
		return ValidateResult{Claims: claims}
	}
	for _, r := range requiredRoles {
		if slices.Contains(claims.Roles, r) {
			return ValidateResult{Claims: claims}
		}
	}
	return ValidateResult{Failure: ValidateFailureRole, Claims: claims}
}
