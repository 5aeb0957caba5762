package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/coreos-platform/seccore/cache"
)

// DefaultTokenCacheTTL is the lifetime of a cached token pair.
const DefaultTokenCacheTTL = 300 * time.Second

var (
	ErrTokensNotFound = errors.New("cached tokens not found")
	ErrTokensBackend  = errors.New("token cache backend unavailable")
)

// CachedTokens is the record stored under tokens:{user_id}.
type CachedTokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	CreatedAt    time.Time `json:"created_at"`
}

// TokenCache keeps the latest token pair per user for fast session lookups.
type TokenCache struct {
	cache cache.Cache
	ttl   time.Duration
}

func NewTokenCache(c cache.Cache, ttl time.Duration) *TokenCache {
	if ttl <= 0 {
		ttl = DefaultTokenCacheTTL
	}
	return &TokenCache{cache: c, ttl: ttl}
}

func TokensKey(userID string) string {
	return "tokens:" + userID
}

func (s *TokenCache) Save(ctx context.Context, userID string, record CachedTokens) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if err := s.cache.Set(ctx, TokensKey(userID), string(data), s.ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrTokensBackend, err)
	}
	return nil
}

func (s *TokenCache) Get(ctx context.Context, userID string) (*CachedTokens, error) {
	raw, err := s.cache.Get(ctx, TokensKey(userID))
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return nil, ErrTokensNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrTokensBackend, err)
	}
	var record CachedTokens
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("decode cached tokens: %w", err)
	}
	return &record, nil
}

func (s *TokenCache) Delete(ctx context.Context, userID string) error {
	if err := s.cache.Del(ctx, TokensKey(userID)); err != nil {
		return fmt.Errorf("%w: %v", ErrTokensBackend, err)
	}
	return nil
}
