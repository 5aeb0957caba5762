package flows

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Deps groups flow dependency sets. Root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Login    LoginDeps
	Refresh  RefreshDeps
	Validate ValidateDeps
	Logout   LogoutDeps
}

// TokenSubject is the identity a token pair is minted for.
type TokenSubject struct {
	UserID         string
	Email          string
	OrganizationID string
	Roles          []string
	Permissions    map[string]bool
}

// AuditFunc emits one audit event. details is only invoked when the event
// is actually recorded.
type AuditFunc func(ctx context.Context, event string, success bool, userID, organizationID string, err error, details func() map[string]string)

// SubjectHash is the audit-safe identifier of an email address.
func SubjectHash(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func noopAudit(context.Context, string, bool, string, string, error, func() map[string]string) {}

func itoa(n int) string { return strconv.Itoa(n) }
