package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/coreos-platform/seccore/errs"
	"github.com/coreos-platform/seccore/internal/audit"
	"github.com/coreos-platform/seccore/internal/rate"
	"github.com/coreos-platform/seccore/jwt"
)

// Audit event names emitted by the broker.
const (
	EventLoginSuccess = "oauth_login_success"
	EventLoginFailure = "oauth_login_failure"
)

// DefaultRoles are granted to federated subjects when AuthOptions.Roles is empty.
var DefaultRoles = []string{"integration_user"}

const maxUserInfoBytes = 1 << 20

// ErrUnknownProvider is returned for provider names missing from the registry.
var ErrUnknownProvider = errs.ErrAuthenticationFailed.WithMessage("unsupported oauth2 provider")

// TokenIssuer mints and verifies internal tokens.
type TokenIssuer interface {
	CreateToken(claims jwt.Claims, roles []string, permissions map[string]bool, ttl time.Duration) (string, error)
	VerifyToken(ctx context.Context, token string) (*jwt.Claims, error)
	AccessTTL() time.Duration
}

// Config configures a Broker.
type Config struct {
	Providers map[string]Provider
	Tokens    TokenIssuer
	// CacheTokens stores the issued pair for userID. Optional.
	CacheTokens func(ctx context.Context, userID, access, refresh string) error
	Audit       audit.Sink
	// HTTPClient is used for every provider request. Defaults to http.DefaultClient.
	HTTPClient *http.Client
	Now        func() time.Time
	Logger     *zap.Logger
}

// AuthOptions carries per-request federation inputs. Empty client fields
// fall back to the provider registration.
type AuthOptions struct {
	ClientID       string
	ClientSecret   string
	RedirectURL    string
	OrganizationID string
	Roles          []string
	Permissions    map[string]bool
}

// Result is the response of a successful federated login.
type Result struct {
	UserID      string `json:"-"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// ScopeResult reports a scope check against an internal token.
type ScopeResult struct {
	Valid         bool     `json:"valid"`
	GrantedRoles  []string `json:"granted_roles"`
	MissingScopes []string `json:"missing_scopes"`
}

type userInfo struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
}

// Broker runs OAuth2 authorization-code logins.
type Broker struct {
	providers map[string]Provider
	limiters  map[string]*rate.Bucket
	tokens    TokenIssuer
	cache     func(ctx context.Context, userID, access, refresh string) error
	audit     audit.Sink
	client    *http.Client
	now       func() time.Time
	logger    *zap.Logger
}

// NewBroker validates the provider registry and builds one request budget
// per provider.
func NewBroker(cfg Config) (*Broker, error) {
	if cfg.Tokens == nil {
		return nil, errors.New("oauth: token issuer is required")
	}
	if cfg.Providers == nil {
		cfg.Providers = DefaultProviders()
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.NoOpSink{}
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	b := &Broker{
		providers: make(map[string]Provider, len(cfg.Providers)),
		limiters:  make(map[string]*rate.Bucket, len(cfg.Providers)),
		tokens:    cfg.Tokens,
		cache:     cfg.CacheTokens,
		audit:     cfg.Audit,
		client:    cfg.HTTPClient,
		now:       cfg.Now,
		logger:    cfg.Logger,
	}
	for name, p := range cfg.Providers {
		if p.Name == "" {
			p.Name = name
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		p = p.withDefaults()
		lim, err := rate.NewBucket(rate.BucketConfig{Capacity: p.RateLimit, Period: time.Minute, Now: cfg.Now})
		if err != nil {
			return nil, fmt.Errorf("oauth: provider %q: %w", name, err)
		}
		b.providers[name] = p
		b.limiters[name] = lim
	}
	return b, nil
}

// Providers returns the registered provider names, sorted.
func (b *Broker) Providers() []string {
	names := make([]string, 0, len(b.providers))
	for n := range b.providers {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func (b *Broker) config(p Provider, opts AuthOptions) *oauth2.Config {
	conf := &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  p.RedirectURL,
		Scopes:       slices.Clone(p.Scopes),
		Endpoint: oauth2.Endpoint{
			AuthURL:   p.AuthURL,
			TokenURL:  p.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	if opts.ClientID != "" {
		conf.ClientID = opts.ClientID
	}
	if opts.ClientSecret != "" {
		conf.ClientSecret = opts.ClientSecret
	}
	if opts.RedirectURL != "" {
		conf.RedirectURL = opts.RedirectURL
	}
	return conf
}

// AuthorizeURL returns the consent URL for provider carrying state.
// redirectURL overrides the registered redirect when non-empty.
func (b *Broker) AuthorizeURL(provider, state, redirectURL string) (string, error) {
	p, ok := b.providers[provider]
	if !ok {
		return "", ErrUnknownProvider
	}
	return b.config(p, AuthOptions{RedirectURL: redirectURL}).AuthCodeURL(state), nil
}

// AuthenticateOAuth2 exchanges code with provider and returns an internal
// access token for the federated subject.
func (b *Broker) AuthenticateOAuth2(ctx context.Context, provider, code string, opts AuthOptions) (*Result, error) {
	res, err := b.authenticate(ctx, provider, code, opts)
	if err != nil {
		b.logger.Warn("oauth login failed",
			zap.String("provider", provider),
			zap.String("code", errs.Code(err)),
			zap.Error(err),
		)
		b.emit(ctx, EventLoginFailure, false, "", opts.OrganizationID, provider, err)
		return nil, err
	}
	b.logger.Info("oauth login succeeded", zap.String("provider", provider), zap.String("user_id", res.UserID))
	b.emit(ctx, EventLoginSuccess, true, res.UserID, opts.OrganizationID, provider, nil)
	return res, nil
}

func (b *Broker) authenticate(ctx context.Context, provider, code string, opts AuthOptions) (*Result, error) {
	p, ok := b.providers[provider]
	if !ok {
		return nil, ErrUnknownProvider
	}
	if err := b.limiters[provider].TryAcquire(ctx, provider); err != nil {
		return nil, errs.ErrRateLimited.WithMessage("rate limit exceeded for oauth2 provider")
	}

	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, b.client)

	conf := b.config(p, opts)
	exchanged, err := conf.Exchange(ctx, code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, errs.ErrIntegration.WithMessage("failed to exchange authorization code").
				Wrap(fmt.Errorf("%s: token endpoint returned %d", provider, re.Response.StatusCode))
		}
		return nil, errs.ErrIntegration.WithMessage("failed to exchange authorization code").Wrap(err)
	}

	info, err := b.userInfo(ctx, conf, p, exchanged)
	if err != nil {
		return nil, err
	}

	scope, _ := exchanged.Extra("scope").(string)
	if scope == "" {
		scope = strings.Join(p.Scopes, " ")
	}
	roles := opts.Roles
	if len(roles) == 0 {
		roles = DefaultRoles
	}

	claims := jwt.Claims{Email: info.Email, Provider: provider, Scope: scope}
	claims.Subject = info.Sub
	access, err := b.tokens.CreateToken(claims, roles, opts.Permissions, 0)
	if err != nil {
		return nil, err
	}

	if b.cache != nil {
		if err := b.cache(ctx, info.Sub, access, exchanged.RefreshToken); err != nil {
			b.logger.Warn("oauth token cache write failed", zap.String("user_id", info.Sub), zap.Error(err))
		}
	}

	return &Result{
		UserID:      info.Sub,
		AccessToken: access,
		TokenType:   "bearer",
		ExpiresIn:   int(b.tokens.AccessTTL() / time.Second),
	}, nil
}

func (b *Broker) userInfo(ctx context.Context, conf *oauth2.Config, p Provider, tok *oauth2.Token) (*userInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserInfoURL, nil)
	if err != nil {
		return nil, errs.ErrIntegration.Wrap(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := conf.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, errs.ErrIntegration.WithMessage("failed to get user information").Wrap(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxUserInfoBytes))
		return nil, errs.ErrIntegration.WithMessage("failed to get user information").
			Wrap(fmt.Errorf("%s: userinfo endpoint returned %d", p.Name, resp.StatusCode))
	}

	var info userInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxUserInfoBytes)).Decode(&info); err != nil {
		return nil, errs.ErrIntegration.WithMessage("malformed user information").Wrap(err)
	}
	if info.Sub == "" {
		return nil, errs.ErrIntegration.WithMessage("user information lacks a subject")
	}
	return &info, nil
}

// VerifyTokenScopes checks an internal token's scope claim. Scopes listed in
// roleMappings grant the mapped roles. It has no side effects.
func (b *Broker) VerifyTokenScopes(ctx context.Context, token string, requiredScopes []string, roleMappings map[string][]string) (*ScopeResult, error) {
	claims, err := b.tokens.VerifyToken(ctx, token)
	if err != nil {
		return nil, errs.ErrInvalidToken.WithMessage("token scope verification failed").Wrap(err)
	}

	granted := strings.Fields(claims.Scope)
	roleSet := make(map[string]struct{})
	for _, s := range granted {
		for _, r := range roleMappings[s] {
			roleSet[r] = struct{}{}
		}
	}

	res := &ScopeResult{
		GrantedRoles:  make([]string, 0, len(roleSet)),
		MissingScopes: []string{},
	}
	for r := range roleSet {
		res.GrantedRoles = append(res.GrantedRoles, r)
	}
	slices.Sort(res.GrantedRoles)
	for _, s := range requiredScopes {
		if !slices.Contains(granted, s) {
			res.MissingScopes = append(res.MissingScopes, s)
		}
	}
	res.Valid = len(res.MissingScopes) == 0
	return res, nil
}

func (b *Broker) emit(ctx context.Context, event string, success bool, userID, orgID, provider string, err error) {
	e := audit.Event{
		Timestamp:      b.now(),
		EventType:      event,
		UserID:         userID,
		OrganizationID: orgID,
		Success:        success,
		Details:        map[string]string{"provider": provider},
	}
	if err != nil {
		e.Error = errs.Code(err)
		if e.Error == "" {
			e.Error = "internal"
		}
	}
	b.audit.Emit(ctx, e)
}
