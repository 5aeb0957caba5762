package rate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/coreos-platform/seccore/cache"
)

// Limiter admits or refuses one unit of work for subject without blocking.
type Limiter interface {
	TryAcquire(ctx context.Context, subject string) error
}

// WindowConfig holds fixed-window tuning parameters.
type WindowConfig struct {
	Scope  string
	Limit  int
	Window time.Duration
}

// Window enforces Limit hits per Window per subject using shared cache
// counters, so every process sharing the cache shares the budget.
type Window struct {
	cache  cache.Cache
	config WindowConfig
}

// NewWindow creates a fixed-window [Window] on c.
func NewWindow(c cache.Cache, cfg WindowConfig) (*Window, error) {
	if c == nil {
		return nil, errors.New("rate: nil cache")
	}
	if cfg.Scope == "" || cfg.Limit <= 0 || cfg.Window <= 0 {
		return nil, errors.New("rate: invalid window configuration")
	}
	return &Window{cache: c, config: cfg}, nil
}

// Key returns the cache key of the counter for scope and subject.
func Key(scope, subject string) string {
	return "rate_limit:" + scope + ":" + subject
}

// TryAcquire counts one hit for subject and refuses once the window budget
// is exceeded. The counter lives until the window that its first hit opened
// has elapsed.
func (w *Window) TryAcquire(ctx context.Context, subject string) error {
	count, err := w.cache.IncrWithTTL(ctx, Key(w.config.Scope, subject), w.config.Window)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count > int64(w.config.Limit) {
		return ErrRateLimited
	}
	return nil
}

// Count returns the hits recorded for subject in the current window.
// Missing keys return zero.
func (w *Window) Count(ctx context.Context, subject string) (int, error) {
	raw, err := w.cache.Get(ctx, Key(w.config.Scope, subject))
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, nil
	}
	return n, nil
}
