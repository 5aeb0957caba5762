package seccore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/coreos-platform/seccore/internal/limiters"
	"github.com/coreos-platform/seccore/oauth"
	"github.com/coreos-platform/seccore/password"
)

func TestAuthenticateUserIssuesPairAndCaches(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	pair, err := env.engine.AuthenticateUser(ctx, "  Alice@Example.com", testPassword, AuthOptions{})
	if err != nil {
		t.Fatalf("AuthenticateUser: %v", err)
	}
	if pair.TokenType != "bearer" || pair.ExpiresIn != 1800 {
		t.Fatalf("unexpected pair shape: %+v", pair)
	}

	claims, err := env.engine.ValidateToken(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Subject != "user-1" || claims.Email != testEmail {
		t.Fatalf("claims = %+v", claims)
	}

	cached, err := env.engine.CachedTokens(ctx, "user-1")
	if err != nil {
		t.Fatalf("CachedTokens: %v", err)
	}
	if cached.AccessToken != pair.AccessToken || cached.RefreshToken != pair.RefreshToken {
		t.Fatal("cached pair does not match the issued pair")
	}
	if ttl := env.redis.TTL("tokens:user-1"); ttl != 300*time.Second {
		t.Fatalf("token cache TTL = %v", ttl)
	}

	env.flushAudit()
	if got := env.sink.types(); !slices.Contains(got, auditEventLoginSuccess) {
		t.Fatalf("audit events = %v", got)
	}
	for _, e := range env.sink.snapshot() {
		if e.EventType == auditEventLoginSuccess {
			if e.UserID != "user-1" || e.OrganizationID != "org-1" || e.Details["subject_hash"] == "" {
				t.Fatalf("login_success event = %+v", e)
			}
		}
	}
	if env.engine.metrics.Value(MetricLoginSuccess) != 1 {
		t.Fatal("login success not counted")
	}
}

func TestLoginFlagsLegacyHashForRehash(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	legacy, err := password.HashBcrypt("legacy-password-123", 4)
	if err != nil {
		t.Fatalf("HashBcrypt: %v", err)
	}
	env.store.put(UserRecord{UserID: "user-2", Email: "bob@example.com", PasswordHash: legacy, Roles: []string{"standard_user"}})

	if _, err := env.engine.AuthenticateUser(ctx, "bob@example.com", "legacy-password-123", AuthOptions{}); err != nil {
		t.Fatalf("bcrypt login: %v", err)
	}
	if _, err := env.engine.AuthenticateUser(ctx, testEmail, testPassword, AuthOptions{}); err != nil {
		t.Fatalf("argon2id login: %v", err)
	}

	env.flushAudit()
	flagged := map[string]string{}
	for _, e := range env.sink.snapshot() {
		if e.EventType == auditEventLoginSuccess {
			flagged[e.UserID] = e.Details["needs_rehash"]
		}
	}
	if flagged["user-2"] != "true" || flagged["user-1"] != "" {
		t.Fatalf("needs_rehash by user = %v", flagged)
	}
}

func TestLockoutAfterFiveFailures(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := env.engine.AuthenticateUser(ctx, testEmail, "wrong-password-000", AuthOptions{})
		if !errors.Is(err, ErrAuthenticationFailed) {
			t.Fatalf("attempt %d: expected ErrAuthenticationFailed, got %v", i+1, err)
		}
	}
	callsBefore := env.store.calls.Load()

	_, err := env.engine.AuthenticateUser(ctx, testEmail, testPassword, AuthOptions{})
	if !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("locked attempt: expected ErrAuthenticationFailed, got %v", err)
	}
	if err != ErrAccountLocked {
		t.Fatalf("locked attempt: expected ErrAccountLocked, got %v", err)
	}
	if env.store.calls.Load() != callsBefore {
		t.Fatal("credential store must not be consulted while locked")
	}

	env.flushAudit()
	triggered := 0
	for _, typ := range env.sink.types() {
		if typ == auditEventLockoutTriggered {
			triggered++
		}
	}
	if triggered != 1 {
		t.Fatalf("lockout_triggered emitted %d times", triggered)
	}

	env.redis.FastForward(time.Hour)
	if _, err := env.engine.AuthenticateUser(ctx, testEmail, testPassword, AuthOptions{}); err != nil {
		t.Fatalf("login after lockout window: %v", err)
	}
}

func TestLockoutCooldownStartsAtThreshold(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, _ = env.engine.AuthenticateUser(ctx, testEmail, "wrong-password-000", AuthOptions{})
	env.redis.FastForward(59 * time.Minute)
	for i := 0; i < 4; i++ {
		_, _ = env.engine.AuthenticateUser(ctx, testEmail, "wrong-password-000", AuthOptions{})
	}

	env.redis.FastForward(2 * time.Minute)
	if _, err := env.engine.AuthenticateUser(ctx, testEmail, testPassword, AuthOptions{}); err != ErrAccountLocked {
		t.Fatalf("expected ErrAccountLocked two minutes after the fifth failure, got %v", err)
	}

	env.redis.FastForward(time.Hour)
	if _, err := env.engine.AuthenticateUser(ctx, testEmail, testPassword, AuthOptions{}); err != nil {
		t.Fatalf("login after cooldown: %v", err)
	}
}

func TestSuccessfulLoginResetsFailureCounter(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, _ = env.engine.AuthenticateUser(ctx, testEmail, "wrong-password-000", AuthOptions{})
	}
	if _, err := env.engine.AuthenticateUser(ctx, testEmail, testPassword, AuthOptions{}); err != nil {
		t.Fatalf("login before threshold: %v", err)
	}
	if env.redis.Exists(limiters.LockoutKey(testEmail)) {
		t.Fatal("failure counter must be cleared by a successful login")
	}

	// Four more failures do not lock again.
	for i := 0; i < 4; i++ {
		_, _ = env.engine.AuthenticateUser(ctx, testEmail, "wrong-password-000", AuthOptions{})
	}
	if _, err := env.engine.AuthenticateUser(ctx, testEmail, testPassword, AuthOptions{}); err != nil {
		t.Fatalf("counter was not reset: %v", err)
	}
}

func TestUnknownUserIsIndistinguishable(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, errUnknown := env.engine.AuthenticateUser(ctx, "nobody@example.com", testPassword, AuthOptions{})
	_, errWrong := env.engine.AuthenticateUser(ctx, testEmail, "wrong-password-000", AuthOptions{})
	if errUnknown != errWrong {
		t.Fatalf("unknown user %v and wrong password %v must be the same error", errUnknown, errWrong)
	}
	if got, _ := env.redis.Get(limiters.LockoutKey("nobody@example.com")); got != "1" {
		t.Fatalf("unknown user failures count toward lockout, got %q", got)
	}
}

func TestStoreOutageDoesNotCountTowardLockout(t *testing.T) {
	env := newTestEnv(t, nil)
	env.store.failWith(fmt.Errorf("connection refused"))

	_, err := env.engine.AuthenticateUser(context.Background(), testEmail, testPassword, AuthOptions{})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if env.redis.Exists(limiters.LockoutKey(testEmail)) {
		t.Fatal("an outage must not increment the failure counter")
	}
}

func TestLoginRateLimitIsPerOrganization(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.RateLimit.LoginLimit = 2
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := env.engine.AuthenticateUser(ctx, testEmail, testPassword, AuthOptions{OrganizationID: "org-1"}); err != nil {
			t.Fatalf("login %d: %v", i+1, err)
		}
	}
	_, err := env.engine.AuthenticateUser(ctx, testEmail, testPassword, AuthOptions{OrganizationID: "org-1"})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if env.redis.Exists(limiters.LockoutKey(testEmail)) {
		t.Fatal("rate limiting must not touch the lockout counter")
	}

	ctx = WithOrganizationID(ctx, "org-2")
	if _, err := env.engine.AuthenticateUser(ctx, testEmail, testPassword, AuthOptions{}); err != nil {
		t.Fatalf("other organization shares no budget: %v", err)
	}
}

func TestRefreshTokenRotates(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	pair, err := env.engine.AuthenticateUser(ctx, testEmail, testPassword, AuthOptions{})
	if err != nil {
		t.Fatalf("AuthenticateUser: %v", err)
	}

	next, err := env.engine.RefreshToken(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshToken: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken || next.AccessToken == pair.AccessToken {
		t.Fatal("refresh must mint a new pair")
	}
	if _, err := env.engine.ValidateToken(ctx, next.AccessToken, "standard_user"); err != nil {
		t.Fatalf("refreshed access token: %v", err)
	}

	if _, err := env.engine.RefreshToken(ctx, pair.RefreshToken); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("reusing a refresh token: expected ErrAuthenticationFailed, got %v", err)
	}
	if _, err := env.engine.RefreshToken(ctx, pair.AccessToken); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("access token as refresh: expected ErrAuthenticationFailed, got %v", err)
	}

	cached, err := env.engine.CachedTokens(ctx, "user-1")
	if err != nil || cached.RefreshToken != next.RefreshToken {
		t.Fatalf("cache must hold the rotated pair: %v", err)
	}
}

func TestRefreshConcurrencySingleWinner(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	pair, err := env.engine.AuthenticateUser(ctx, testEmail, testPassword, AuthOptions{})
	if err != nil {
		t.Fatalf("AuthenticateUser: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := env.engine.RefreshToken(ctx, pair.RefreshToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	success := 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrAuthenticationFailed) {
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly one refresh success, got %d", success)
	}
}

func TestValidateToken(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	pair, err := env.engine.AuthenticateUser(ctx, testEmail, testPassword, AuthOptions{})
	if err != nil {
		t.Fatalf("AuthenticateUser: %v", err)
	}

	if _, err := env.engine.ValidateToken(ctx, pair.AccessToken, "org_admin", "standard_user"); err != nil {
		t.Fatalf("any matching role passes: %v", err)
	}
	if _, err := env.engine.ValidateToken(ctx, pair.AccessToken, "org_admin"); err != ErrInsufficientRole {
		t.Fatalf("expected ErrInsufficientRole, got %v", err)
	}
	if _, err := env.engine.ValidateToken(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token is not an access token, got %v", err)
	}
	if _, err := env.engine.ValidateToken(ctx, "not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	env.clock.Add(31 * time.Minute)
	if _, err := env.engine.ValidateToken(ctx, pair.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestValidateLatencyHistogram(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.Metrics.EnableLatencyHistograms = true
	})
	ctx := context.Background()

	pair, err := env.engine.AuthenticateUser(ctx, testEmail, testPassword, AuthOptions{})
	if err != nil {
		t.Fatalf("AuthenticateUser: %v", err)
	}
	_, _ = env.engine.ValidateToken(ctx, pair.AccessToken)

	snap := env.engine.MetricsSnapshot()
	var total uint64
	for _, v := range snap.Histograms[MetricValidateLatency] {
		total += v
	}
	if total != 1 || snap.Counters[MetricValidateSuccess] != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestLogoutRevokesTokensAndCache(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	pair, err := env.engine.AuthenticateUser(ctx, testEmail, testPassword, AuthOptions{})
	if err != nil {
		t.Fatalf("AuthenticateUser: %v", err)
	}
	if err := env.engine.Logout(ctx, pair.AccessToken, pair.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	if _, err := env.engine.ValidateToken(ctx, pair.AccessToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked, got %v", err)
	}
	if _, err := env.engine.RefreshToken(ctx, pair.RefreshToken); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("refresh after logout: %v", err)
	}
	if _, err := env.engine.CachedTokens(ctx, "user-1"); !errors.Is(err, ErrTokensNotCached) {
		t.Fatalf("expected ErrTokensNotCached, got %v", err)
	}
	if err := env.engine.Logout(ctx, pair.AccessToken, pair.RefreshToken); err != nil {
		t.Fatalf("logout is idempotent: %v", err)
	}
	if err := env.engine.Logout(ctx, "", ""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("empty logout: %v", err)
	}
}

func TestPermissionsThroughEngine(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	pair, err := env.engine.AuthenticateUser(ctx, testEmail, testPassword, AuthOptions{})
	if err != nil {
		t.Fatalf("AuthenticateUser: %v", err)
	}
	if !env.engine.VerifyPermission(ctx, pair.AccessToken, "write_data") {
		t.Fatal("standard_user must have write_data")
	}
	if !env.engine.VerifyPermission(ctx, pair.AccessToken, "read_data") {
		t.Fatal("standard_user inherits read_data")
	}
	if env.engine.VerifyPermission(ctx, pair.AccessToken, "manage_users") {
		t.Fatal("standard_user must not have manage_users")
	}
	if !env.engine.Tokens().HasPermission(ctx, pair.AccessToken, "manage_templates") {
		t.Fatal("token service must resolve role permissions")
	}

	all, err := env.engine.GetUserPermissions("super_admin")
	if err != nil {
		t.Fatalf("GetUserPermissions: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("super_admin permissions = %v", all)
	}
	if _, err := env.engine.GetUserPermissions("root"); err == nil {
		t.Fatal("unknown role must fail")
	}

	// A revoked token loses its cached decisions at logout.
	if err := env.engine.Logout(ctx, pair.AccessToken, ""); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if env.engine.VerifyPermission(ctx, pair.AccessToken, "write_data") {
		t.Fatal("revoked token must be denied")
	}
}

func TestRefreshTokenGrantsNoPermissions(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	pair, err := env.engine.AuthenticateUser(ctx, testEmail, testPassword, AuthOptions{})
	if err != nil {
		t.Fatalf("AuthenticateUser: %v", err)
	}
	if env.engine.VerifyPermission(ctx, pair.RefreshToken, "write_data") {
		t.Fatal("VerifyPermission must deny refresh tokens")
	}
	if env.engine.Tokens().HasPermission(ctx, pair.RefreshToken, "write_data") {
		t.Fatal("HasPermission must deny refresh tokens")
	}
	if env.engine.Tokens().HasRole(ctx, pair.RefreshToken, "standard_user") {
		t.Fatal("HasRole must deny refresh tokens")
	}
}

func TestBlacklistTokenDropsCachedDecisions(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	pair, err := env.engine.AuthenticateUser(ctx, testEmail, testPassword, AuthOptions{})
	if err != nil {
		t.Fatalf("AuthenticateUser: %v", err)
	}
	if !env.engine.VerifyPermission(ctx, pair.AccessToken, "write_data") {
		t.Fatal("expected write_data before revocation")
	}
	if err := env.engine.BlacklistToken(ctx, pair.AccessToken); err != nil {
		t.Fatalf("BlacklistToken: %v", err)
	}
	if env.engine.VerifyPermission(ctx, pair.AccessToken, "write_data") {
		t.Fatal("cached grant survived revocation")
	}
	if _, err := env.engine.ValidateToken(ctx, pair.AccessToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked, got %v", err)
	}

	env.flushAudit()
	if !slices.Contains(env.sink.types(), auditEventTokenRevoked) {
		t.Fatalf("audit events = %v", env.sink.types())
	}
}

func TestRotateSigningKeyDropsCachedDecisions(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	secret := []byte("0123456789abcdef0123456789abcdef")

	first, err := env.engine.AuthenticateUser(ctx, testEmail, testPassword, AuthOptions{})
	if err != nil {
		t.Fatalf("AuthenticateUser: %v", err)
	}
	if !env.engine.VerifyPermission(ctx, first.AccessToken, "write_data") {
		t.Fatal("expected write_data before rotation")
	}
	if err := env.engine.RotateSigningKey(ctx, secret); err != nil {
		t.Fatalf("RotateSigningKey: %v", err)
	}
	if env.engine.VerifyPermission(ctx, first.AccessToken, "write_data") {
		t.Fatal("cached grant survived signing key rotation")
	}
	if err := env.engine.RotateSigningKey(ctx, []byte("short")); err == nil {
		t.Fatal("weak secret must be rejected")
	}

	// Rotating through the token service directly is covered too: decisions
	// are keyed by token version.
	second, err := env.engine.AuthenticateUser(ctx, testEmail, testPassword, AuthOptions{})
	if err != nil {
		t.Fatalf("AuthenticateUser: %v", err)
	}
	if !env.engine.VerifyPermission(ctx, second.AccessToken, "write_data") {
		t.Fatal("expected write_data for a fresh token")
	}
	if err := env.engine.Tokens().RotateSigningKey(secret); err != nil {
		t.Fatalf("Tokens().RotateSigningKey: %v", err)
	}
	if env.engine.VerifyPermission(ctx, second.AccessToken, "write_data") {
		t.Fatal("cached grant survived a direct token service rotation")
	}
}

func TestEncryptionSharedWithSigningSecret(t *testing.T) {
	env := newTestEnv(t, nil)

	sealed, err := env.engine.Encryption().Encrypt([]byte("ssn:123-45-6789"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := env.engine.RotateEncryptionKey(context.Background()); err != nil {
		t.Fatalf("RotateEncryptionKey: %v", err)
	}
	plain, err := env.engine.Encryption().Decrypt(sealed)
	if err != nil || string(plain) != "ssn:123-45-6789" {
		t.Fatalf("grace decrypt = %q, %v", plain, err)
	}

	// Key rotation does not invalidate sessions.
	pair, err := env.engine.AuthenticateUser(context.Background(), testEmail, testPassword, AuthOptions{})
	if err != nil {
		t.Fatalf("AuthenticateUser: %v", err)
	}
	if _, err := env.engine.RotateEncryptionKey(context.Background()); err != nil {
		t.Fatalf("RotateEncryptionKey: %v", err)
	}
	if _, err := env.engine.ValidateToken(context.Background(), pair.AccessToken); err != nil {
		t.Fatalf("token after key rotation: %v", err)
	}
	if _, err := env.engine.Encryption().Decrypt(sealed); !errors.Is(err, ErrDecryptionAuthFailed) {
		t.Fatalf("twice-rotated key must be retired, got %v", err)
	}
	if env.engine.metrics.Value(MetricKeyRotation) != 2 {
		t.Fatal("rotations not counted")
	}
}

func TestStartKeyRotation(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.Encryption.RotationInterval = 24 * time.Hour
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	before := env.engine.Encryption().ActiveKey().ID
	if err := env.engine.StartKeyRotation(ctx); err != nil {
		t.Fatalf("StartKeyRotation: %v", err)
	}
	env.clock.Add(24 * time.Hour)

	deadline := time.Now().Add(2 * time.Second)
	for env.engine.Encryption().ActiveKey().ID == before {
		if time.Now().After(deadline) {
			t.Fatal("scheduled rotation did not run")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if env.engine.Encryption().PreviousKeyID() != before {
		t.Fatal("previous key must be retained for the grace period")
	}
}

func TestStartKeyRotationDisabled(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.Encryption.RotationInterval = 0
	})
	if err := env.engine.StartKeyRotation(context.Background()); err == nil {
		t.Fatal("expected an error when rotation is disabled")
	}
}

func TestAuthenticateOAuth2ThroughEngine(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "idp-access",
			"refresh_token": "idp-refresh",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"scope":         "openid email profile",
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer idp-access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"sub":"fed-42","email":"fed@example.com"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	env := newTestEnv(t, func(c *Config) {
		c.OAuth.Providers = map[string]oauth.Provider{
			"corp": {
				AuthURL:     srv.URL + "/authorize",
				TokenURL:    srv.URL + "/token",
				UserInfoURL: srv.URL + "/userinfo",
				Scopes:      []string{"openid", "email"},
				ClientID:    "client",
			},
		}
	})
	ctx := context.Background()

	res, err := env.engine.AuthenticateOAuth2(ctx, "corp", "auth-code", oauth.AuthOptions{})
	if err != nil {
		t.Fatalf("AuthenticateOAuth2: %v", err)
	}
	claims, err := env.engine.ValidateToken(ctx, res.AccessToken, "integration_user")
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Subject != "fed-42" || claims.Provider != "corp" || claims.Scope != "openid email profile" {
		t.Fatalf("claims = %+v", claims)
	}
	cached, err := env.engine.CachedTokens(ctx, "fed-42")
	if err != nil || cached.RefreshToken != "idp-refresh" {
		t.Fatalf("cached federated pair: %+v, %v", cached, err)
	}

	if _, err := env.engine.AuthenticateOAuth2(ctx, "github", "code", oauth.AuthOptions{}); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("unknown provider: %v", err)
	}
	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricOAuthLoginSuccess] != 1 || snap.Counters[MetricOAuthLoginFailure] != 1 {
		t.Fatalf("oauth counters = %+v", snap.Counters)
	}
}

func TestAuditSinkEnablesAuditWithDefaultConfig(t *testing.T) {
	cfg := testConfig()
	if cfg.Audit.Enabled {
		t.Fatal("test assumes auditing is off by default")
	}
	_, rdb := newTestRedis(t)
	store := newMemStore()
	store.put(UserRecord{UserID: "user-1", Email: testEmail, PasswordHash: hashFor(t, cfg, testPassword)})
	sink := &captureSink{}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(store).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	if _, err := engine.AuthenticateUser(context.Background(), testEmail, testPassword, AuthOptions{}); err != nil {
		t.Fatalf("AuthenticateUser: %v", err)
	}
	engine.audit.Close()
	if !slices.Contains(sink.types(), auditEventLoginSuccess) {
		t.Fatalf("audit events = %v", sink.types())
	}
	if !engine.SecurityReport().AuditEnabled {
		t.Fatal("security report must show auditing on")
	}
}

type panicSink struct{}

func (panicSink) Emit(context.Context, AuditEvent) { panic("sink down") }

func TestAuditFailedCountsPanickingSink(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.DropIfFull = false
	_, rdb := newTestRedis(t)
	store := newMemStore()
	store.put(UserRecord{UserID: "user-1", Email: testEmail, PasswordHash: hashFor(t, cfg, testPassword)})

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(store).
		WithAuditSink(panicSink{}).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	if _, err := engine.AuthenticateUser(context.Background(), testEmail, testPassword, AuthOptions{}); err != nil {
		t.Fatalf("a failing sink must not fail the login: %v", err)
	}
	engine.audit.Close()
	if engine.AuditFailed() == 0 {
		t.Fatal("panicking sink deliveries must be counted")
	}
	if engine.AuditDropped() != 0 {
		t.Fatalf("nothing should be dropped, got %d", engine.AuditDropped())
	}
}

func TestZeroEngineIsNotReady(t *testing.T) {
	var e Engine
	if _, err := e.AuthenticateUser(context.Background(), testEmail, testPassword, AuthOptions{}); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if e.VerifyPermission(context.Background(), "tok", "read_data") {
		t.Fatal("zero engine must deny")
	}
}

func TestBuilderValidation(t *testing.T) {
	_, rdb := newTestRedis(t)

	if _, err := New().WithCredentialStore(newMemStore()).Build(); err == nil {
		t.Fatal("missing cache must fail")
	}
	if _, err := New().WithRedis(rdb).Build(); err == nil {
		t.Fatal("missing credential store must fail")
	}

	b := New().WithConfig(testConfig()).WithRedis(rdb).WithCredentialStore(newMemStore())
	e, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer e.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("builder must be single-use")
	}
}
