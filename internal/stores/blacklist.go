package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos-platform/seccore/cache"
)

// ErrBlacklistBackend indicates the blacklist backend is unreachable.
var ErrBlacklistBackend = errors.New("token blacklist backend unavailable")

// Blacklist records revoked token ids in the cache.
type Blacklist struct {
	cache cache.Cache
}

func NewBlacklist(c cache.Cache) *Blacklist {
	return &Blacklist{cache: c}
}

func BlacklistKey(jti string) string {
	return "token_blacklist:" + jti
}

// Add marks jti revoked for ttl. Non-positive TTLs are ignored.
func (b *Blacklist) Add(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := b.cache.Set(ctx, BlacklistKey(jti), "1", ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrBlacklistBackend, err)
	}
	return nil
}

// Claim marks jti revoked only if it is not already, and reports whether
// this call did so. Exactly one of any number of concurrent callers wins.
func (b *Blacklist) Claim(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, nil
	}
	ok, err := b.cache.SetNX(ctx, BlacklistKey(jti), "1", ttl)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBlacklistBackend, err)
	}
	return ok, nil
}

// Contains reports whether jti is revoked.
func (b *Blacklist) Contains(ctx context.Context, jti string) (bool, error) {
	ok, err := b.cache.Exists(ctx, BlacklistKey(jti))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBlacklistBackend, err)
	}
	return ok, nil
}
