package seccore

import (
	"bytes"
	"context"
	"encoding/base64"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	"github.com/coreos-platform/seccore/password"
)

var testKeyB64 = base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))

const (
	testEmail    = "alice@example.com"
	testPassword = "correct-password-123"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

// testConfig keeps argon2 cheap so tests stay fast.
func testConfig() Config {
	cfg := defaultConfig()
	cfg.Encryption.Key = testKeyB64
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

func hashFor(t *testing.T, cfg Config, plain string) string {
	t.Helper()

	a, err := password.NewArgon2(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MaxPasswordBytes: cfg.Password.MaxPasswordBytes,
	})
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}
	h, err := a.Hash(plain)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	return h
}

type memStore struct {
	mu    sync.Mutex
	users map[string]UserRecord
	err   error
	calls atomic.Int64
}

func newMemStore() *memStore {
	return &memStore{users: map[string]UserRecord{}}
}

func (s *memStore) put(u UserRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[strings.ToLower(u.Email)] = u
}

func (s *memStore) failWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *memStore) GetByEmail(_ context.Context, email string) (*UserRecord, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	u, ok := s.users[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

type testEnv struct {
	engine *Engine
	redis  *miniredis.Miniredis
	rdb    *redis.Client
	store  *memStore
	clock  *clock.Mock
	sink   *captureSink
	config Config
}

type captureSink struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (s *captureSink) Emit(_ context.Context, e AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *captureSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.EventType
	}
	return out
}

func (s *captureSink) snapshot() []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AuditEvent(nil), s.events...)
}

// newTestEnv builds an engine over miniredis with alice registered as a
// standard_user. mutate may adjust the config before Build.
func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false
	cfg.Metrics.Enabled = true
	if mutate != nil {
		mutate(&cfg)
	}

	mr, rdb := newTestRedis(t)
	store := newMemStore()
	store.put(UserRecord{
		UserID:         "user-1",
		Email:          testEmail,
		OrganizationID: "org-1",
		PasswordHash:   hashFor(t, cfg, testPassword),
		Roles:          []string{"standard_user"},
	})

	clk := clock.NewMock()
	clk.Set(time.Now())
	sink := &captureSink{}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(store).
		WithAuditSink(sink).
		WithLogger(zaptest.NewLogger(t)).
		WithClock(clk).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{
		engine: engine,
		redis:  mr,
		rdb:    rdb,
		store:  store,
		clock:  clk,
		sink:   sink,
		config: cfg,
	}
}

// flushAudit drains the dispatcher so every emitted event reached the sink.
func (env *testEnv) flushAudit() {
	env.engine.audit.Close()
}
