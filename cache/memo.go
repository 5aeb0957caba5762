package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type memoEntry[V any] struct {
	value V
	until time.Time
}

// Memo is an in-process TTL cache keyed through a caller-supplied key
// function. Entries expire after the configured TTL or at an explicit
// deadline, whichever comes first.
type Memo[K any, V any] struct {
	lru *expirable.LRU[string, memoEntry[V]]
	key func(K) string
	now func() time.Time
}

// NewMemo builds a Memo holding at most size entries for ttl each.
// now may be nil, in which case time.Now is used for explicit deadlines.
func NewMemo[K any, V any](size int, ttl time.Duration, key func(K) string, now func() time.Time) *Memo[K, V] {
	if size <= 0 {
		size = 1024
	}
	if now == nil {
		now = time.Now
	}
	return &Memo[K, V]{
		lru: expirable.NewLRU[string, memoEntry[V]](size, nil, ttl),
		key: key,
		now: now,
	}
}

// Get returns the cached value for k.
func (m *Memo[K, V]) Get(k K) (V, bool) {
	var zero V
	if m == nil {
		return zero, false
	}
	id := m.key(k)
	e, ok := m.lru.Get(id)
	if !ok {
		return zero, false
	}
	if !e.until.IsZero() && !m.now().Before(e.until) {
		m.lru.Remove(id)
		return zero, false
	}
	return e.value, true
}

// Add caches v under k for the memo TTL.
func (m *Memo[K, V]) Add(k K, v V) {
	if m == nil {
		return
	}
	m.lru.Add(m.key(k), memoEntry[V]{value: v})
}

// AddUntil caches v under k until deadline or the memo TTL, whichever is sooner.
// A deadline that already passed is not cached.
func (m *Memo[K, V]) AddUntil(k K, v V, deadline time.Time) {
	if m == nil {
		return
	}
	if !deadline.IsZero() && !m.now().Before(deadline) {
		return
	}
	m.lru.Add(m.key(k), memoEntry[V]{value: v, until: deadline})
}

// GetOrLoad returns the cached value or calls load and caches its result.
// Load errors are returned and not cached.
func (m *Memo[K, V]) GetOrLoad(k K, load func(K) (V, error)) (V, error) {
	if v, ok := m.Get(k); ok {
		return v, nil
	}
	v, err := load(k)
	if err != nil {
		return v, err
	}
	m.Add(k, v)
	return v, nil
}

// Remove drops k.
func (m *Memo[K, V]) Remove(k K) {
	if m == nil {
		return
	}
	m.lru.Remove(m.key(k))
}

// Purge drops every entry.
func (m *Memo[K, V]) Purge() {
	if m == nil {
		return
	}
	m.lru.Purge()
}

// Len reports the number of live entries.
func (m *Memo[K, V]) Len() int {
	if m == nil {
		return 0
	}
	return m.lru.Len()
}
