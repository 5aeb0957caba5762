package cache

import (
	"errors"
	"testing"
	"time"
)

func TestMemoGetOrLoadCachesSuccessOnly(t *testing.T) {
	calls := 0
	m := NewMemo[string, int](8, time.Minute, func(s string) string { return s }, nil)

	load := func(string) (int, error) {
		calls++
		return 42, nil
	}
	for i := 0; i < 3; i++ {
		v, err := m.GetOrLoad("k", load)
		if err != nil || v != 42 {
			t.Fatalf("GetOrLoad = %d, %v", v, err)
		}
	}
	if calls != 1 {
		t.Fatalf("load called %d times, want 1", calls)
	}

	failing := func(string) (int, error) { return 0, errors.New("boom") }
	if _, err := m.GetOrLoad("bad", failing); err == nil {
		t.Fatal("expected load error")
	}
	if _, ok := m.Get("bad"); ok {
		t.Fatal("errors must not be cached")
	}
}

func TestMemoAddUntilHonoursDeadline(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	m := NewMemo[string, bool](8, time.Hour, func(s string) string { return s }, clock)

	m.AddUntil("k", true, now.Add(10*time.Second))
	if v, ok := m.Get("k"); !ok || !v {
		t.Fatal("entry should be live before its deadline")
	}

	now = now.Add(10 * time.Second)
	if _, ok := m.Get("k"); ok {
		t.Fatal("entry must expire at its deadline")
	}

	m.AddUntil("past", true, now.Add(-time.Second))
	if _, ok := m.Get("past"); ok {
		t.Fatal("past deadlines must not be cached")
	}
}

func TestMemoKeyFunction(t *testing.T) {
	type pair struct{ a, b string }
	m := NewMemo[pair, string](8, time.Minute, func(p pair) string { return p.a + ":" + p.b }, nil)

	m.Add(pair{"x", "y"}, "hit")
	if v, ok := m.Get(pair{"x", "y"}); !ok || v != "hit" {
		t.Fatalf("Get = %q, %v", v, ok)
	}
	m.Remove(pair{"x", "y"})
	if m.Len() != 0 {
		t.Fatalf("Len = %d after Remove", m.Len())
	}
}

func TestNilMemoIsInert(t *testing.T) {
	var m *Memo[string, int]
	m.Add("k", 1)
	if _, ok := m.Get("k"); ok {
		t.Fatal("nil memo must miss")
	}
	m.Purge()
}
