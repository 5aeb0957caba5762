package rate

import (
	"context"
	"errors"
	"sync"
	"time"

	xrate "golang.org/x/time/rate"
)

// BucketConfig holds token-bucket tuning parameters. Capacity tokens are
// refilled evenly over Period.
type BucketConfig struct {
	Capacity int
	Period   time.Duration
	// IdleTTL evicts subjects untouched for this long. Defaults to 2*Period.
	IdleTTL time.Duration
	Now     func() time.Time
}

// BucketState is a snapshot of one subject's bucket.
type BucketState struct {
	Tokens     float64
	Capacity   int
	RefillRate float64 // tokens per second
	LastRefill time.Time
}

type bucketEntry struct {
	lim      *xrate.Limiter
	lastSeen time.Time
}

// Bucket is an in-process token bucket per subject.
type Bucket struct {
	config BucketConfig
	limit  xrate.Limit

	mu        sync.Mutex
	buckets   map[string]*bucketEntry
	lastSweep time.Time
}

// NewBucket creates a [Bucket].
func NewBucket(cfg BucketConfig) (*Bucket, error) {
	if cfg.Capacity <= 0 || cfg.Period <= 0 {
		return nil, errors.New("rate: invalid bucket configuration")
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 2 * cfg.Period
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Bucket{
		config:  cfg,
		limit:   xrate.Every(cfg.Period / time.Duration(cfg.Capacity)),
		buckets: make(map[string]*bucketEntry),
	}, nil
}

// TryAcquire takes one token from subject's bucket.
func (b *Bucket) TryAcquire(_ context.Context, subject string) error {
	now := b.config.Now()

	b.mu.Lock()
	e := b.entry(subject, now)
	ok := e.lim.AllowN(now, 1)
	b.sweep(now)
	b.mu.Unlock()

	if !ok {
		return ErrRateLimited
	}
	return nil
}

// State reports subject's bucket. Unknown subjects report a full bucket.
func (b *Bucket) State(subject string) BucketState {
	now := b.config.Now()
	st := BucketState{
		Tokens:     float64(b.config.Capacity),
		Capacity:   b.config.Capacity,
		RefillRate: float64(b.limit),
		LastRefill: now,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.buckets[subject]; ok {
		st.Tokens = e.lim.TokensAt(now)
		st.LastRefill = e.lastSeen
	}
	return st
}

// Len returns the number of tracked subjects.
func (b *Bucket) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buckets)
}

func (b *Bucket) entry(subject string, now time.Time) *bucketEntry {
	e, ok := b.buckets[subject]
	if !ok {
		e = &bucketEntry{lim: xrate.NewLimiter(b.limit, b.config.Capacity)}
		b.buckets[subject] = e
	}
	e.lastSeen = now
	return e
}

// sweep drops idle subjects at most once per IdleTTL. Callers hold mu.
func (b *Bucket) sweep(now time.Time) {
	if now.Sub(b.lastSweep) < b.config.IdleTTL {
		return
	}
	b.lastSweep = now
	for k, e := range b.buckets {
		if now.Sub(e.lastSeen) >= b.config.IdleTTL {
			delete(b.buckets, k)
		}
	}
}
