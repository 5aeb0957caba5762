package oauth

import (
	"errors"
	"fmt"
	"time"
)

// Default provider tuning.
const (
	DefaultRateLimit = 100
	DefaultTimeout   = 10 * time.Second
)

// Provider describes one identity provider.
type Provider struct {
	Name        string        `yaml:"name"`
	AuthURL     string        `yaml:"authorize_endpoint"`
	TokenURL    string        `yaml:"token_endpoint"`
	UserInfoURL string        `yaml:"userinfo_endpoint"`
	Scopes      []string      `yaml:"scopes"`
	RateLimit   int           `yaml:"rate_limit"` // requests per minute
	Timeout     time.Duration `yaml:"timeout"`

	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
}

// Validate checks endpoint and limit settings.
func (p Provider) Validate() error {
	if p.Name == "" {
		return errors.New("oauth: provider name is required")
	}
	if p.AuthURL == "" || p.TokenURL == "" || p.UserInfoURL == "" {
		return fmt.Errorf("oauth: provider %q: authorize, token and userinfo endpoints are required", p.Name)
	}
	if p.RateLimit < 0 || p.Timeout < 0 {
		return fmt.Errorf("oauth: provider %q: negative rate limit or timeout", p.Name)
	}
	return nil
}

func (p Provider) withDefaults() Provider {
	if p.RateLimit == 0 {
		p.RateLimit = DefaultRateLimit
	}
	if p.Timeout == 0 {
		p.Timeout = DefaultTimeout
	}
	return p
}

// DefaultProviders returns the built-in provider table. Client credentials
// are left empty.
func DefaultProviders() map[string]Provider {
	return map[string]Provider{
		"google": {
			Name:        "google",
			AuthURL:     "https://accounts.google.com/o/oauth2/v2/auth",
			TokenURL:    "https://oauth2.googleapis.com/token",
			UserInfoURL: "https://www.googleapis.com/oauth2/v3/userinfo",
			Scopes:      []string{"openid", "email", "profile"},
			RateLimit:   DefaultRateLimit,
			Timeout:     DefaultTimeout,
		},
		"microsoft": {
			Name:        "microsoft",
			AuthURL:     "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
			TokenURL:    "https://login.microsoftonline.com/common/oauth2/v2.0/token",
			UserInfoURL: "https://graph.microsoft.com/oidc/userinfo",
			Scopes:      []string{"openid", "email", "profile", "offline_access"},
			RateLimit:   DefaultRateLimit,
			Timeout:     DefaultTimeout,
		},
		"apple": {
			Name:        "apple",
			AuthURL:     "https://appleid.apple.com/auth/authorize",
			TokenURL:    "https://appleid.apple.com/auth/token",
			UserInfoURL: "https://appleid.apple.com/auth/userinfo",
			Scopes:      []string{"openid", "email", "name"},
			RateLimit:   DefaultRateLimit,
			Timeout:     DefaultTimeout,
		},
	}
}
