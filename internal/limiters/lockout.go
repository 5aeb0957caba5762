package limiters

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/coreos-platform/seccore/cache"
)

const (
	// DefaultLockoutThreshold is the failure count that locks an identity.
	DefaultLockoutThreshold = 5
	// DefaultLockoutWindow is how long a failure counter lives after its
	// most recent failure.
	DefaultLockoutWindow = time.Hour
)

// LockoutConfig holds configuration for the failed-login lockout limiter.
type LockoutConfig struct {
	Threshold int
	Window    time.Duration
}

var (
	// ErrLockoutUnavailable indicates the lockout backend is unreachable.
	ErrLockoutUnavailable = errors.New("lockout backend unavailable")
)

// Lockout tracks consecutive failed logins per email.
type Lockout struct {
	cache  cache.Cache
	config LockoutConfig
}

// NewLockout creates a new lockout limiter.
func NewLockout(c cache.Cache, cfg LockoutConfig) *Lockout {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultLockoutThreshold
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultLockoutWindow
	}
	return &Lockout{cache: c, config: cfg}
}

// LockoutKey returns the counter key for email.
func LockoutKey(email string) string {
	return "failed_attempts:" + NormalizeEmail(email)
}

// NormalizeEmail trims and lower-cases email so counters cannot be split by
// case variations.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Threshold returns the configured lockout threshold.
func (l *Lockout) Threshold() int {
	if l == nil {
		return DefaultLockoutThreshold
	}
	return l.config.Threshold
}

// Count returns the current failure count for email.
func (l *Lockout) Count(ctx context.Context, email string) (int, error) {
	if l == nil {
		return 0, nil
	}
	raw, err := l.cache.Get(ctx, LockoutKey(email))
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, nil
	}
	return n, nil
}

// Locked reports whether email has reached the threshold.
func (l *Lockout) Locked(ctx context.Context, email string) (bool, error) {
	if l == nil {
		return false, nil
	}
	n, err := l.Count(ctx, email)
	if err != nil {
		return false, err
	}
	return n >= l.config.Threshold, nil
}

// RecordFailure atomically increments the failure counter for email and
// restarts its window, so a lockout always lasts the full window after the
// failure that triggered it. It returns the new count and whether this
// failure reached the threshold exactly, so the caller can report the
// transition once.
func (l *Lockout) RecordFailure(ctx context.Context, email string) (int, bool, error) {
	if l == nil {
		return 0, false, nil
	}
	count, err := l.cache.IncrSliding(ctx, LockoutKey(email), l.config.Window)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return int(count), count == int64(l.config.Threshold), nil
}

// Reset clears the failure counter for email (e.g., after successful login).
func (l *Lockout) Reset(ctx context.Context, email string) error {
	if l == nil {
		return nil
	}
	if err := l.cache.Del(ctx, LockoutKey(email)); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}
