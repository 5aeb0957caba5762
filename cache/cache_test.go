package cache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, NewRedis(client)
}

func TestRedisGetMissing(t *testing.T) {
	_, c := newTestRedis(t)

	_, err := c.Get(context.Background(), "absent")
	if !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss, got %v", err)
	}
}

func TestRedisSetGetExpire(t *testing.T) {
	mr, c := newTestRedis(t)
	ctx := context.Background()

	if err := c.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := c.Get(ctx, "k")
	if err != nil || got != "v" {
		t.Fatalf("Get = %q, %v", got, err)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestIncrWithTTLSetsWindowOnFirstHitOnly(t *testing.T) {
	mr, c := newTestRedis(t)
	ctx := context.Background()

	n, err := c.IncrWithTTL(ctx, "counter", time.Hour)
	if err != nil || n != 1 {
		t.Fatalf("first IncrWithTTL = %d, %v", n, err)
	}
	if ttl := mr.TTL("counter"); ttl != time.Hour {
		t.Fatalf("TTL after first hit = %v, want 1h", ttl)
	}

	mr.FastForward(30 * time.Minute)
	n, err = c.IncrWithTTL(ctx, "counter", time.Hour)
	if err != nil || n != 2 {
		t.Fatalf("second IncrWithTTL = %d, %v", n, err)
	}
	if ttl := mr.TTL("counter"); ttl != 30*time.Minute {
		t.Fatalf("second hit must not extend the window, TTL = %v", ttl)
	}
}

func TestIncrSlidingExtendsWindowOnEveryHit(t *testing.T) {
	mr, c := newTestRedis(t)
	ctx := context.Background()

	if n, err := c.IncrSliding(ctx, "sliding", time.Hour); err != nil || n != 1 {
		t.Fatalf("first IncrSliding = %d, %v", n, err)
	}
	mr.FastForward(59 * time.Minute)
	if n, err := c.IncrSliding(ctx, "sliding", time.Hour); err != nil || n != 2 {
		t.Fatalf("second IncrSliding = %d, %v", n, err)
	}
	if ttl := mr.TTL("sliding"); ttl != time.Hour {
		t.Fatalf("TTL after second hit = %v, want 1h", ttl)
	}

	mr.FastForward(59 * time.Minute)
	if !mr.Exists("sliding") {
		t.Fatal("counter expired before a full window after the last hit")
	}
	mr.FastForward(time.Minute)
	if mr.Exists("sliding") {
		t.Fatal("counter outlived its window")
	}
}

func TestIncrWithTTLConcurrentNeverUndercounts(t *testing.T) {
	mr, c := newTestRedis(t)
	ctx := context.Background()

	const workers = 32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.IncrWithTTL(ctx, "shared", time.Minute); err != nil {
				t.Errorf("IncrWithTTL: %v", err)
			}
		}()
	}
	wg.Wait()

	raw, err := mr.Get("shared")
	if err != nil {
		t.Fatalf("miniredis Get: %v", err)
	}
	if n, _ := strconv.Atoi(raw); n != workers {
		t.Fatalf("counter = %d, want %d", n, workers)
	}
}

func TestRedisDelAndExists(t *testing.T) {
	_, c := newTestRedis(t)
	ctx := context.Background()

	_ = c.Set(ctx, "a", "1", 0)
	ok, err := c.Exists(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}
	if err := c.Del(ctx, "a"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	ok, _ = c.Exists(ctx, "a")
	if ok {
		t.Fatal("key should be gone")
	}
	if err := c.Del(ctx); err != nil {
		t.Fatalf("Del with no keys: %v", err)
	}
}

func TestRedisSetNXClaimsOnce(t *testing.T) {
	mr, c := newTestRedis(t)
	ctx := context.Background()

	ok, err := c.SetNX(ctx, "claim", "1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first SetNX = %v, %v", ok, err)
	}
	ok, err = c.SetNX(ctx, "claim", "1", time.Minute)
	if err != nil || ok {
		t.Fatalf("second SetNX = %v, %v", ok, err)
	}
	if ttl := mr.TTL("claim"); ttl != time.Minute {
		t.Fatalf("TTL = %v", ttl)
	}
}

func TestRedisUnavailable(t *testing.T) {
	mr, c := newTestRedis(t)
	mr.Close()

	_, err := c.Incr(context.Background(), "x")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
