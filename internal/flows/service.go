package flows

import "context"

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Validate.ParseToken != nil
}

func (s Service) Login(ctx context.Context, email, password string, opts LoginOptions) (*LoginResult, error) {
	return RunLogin(ctx, email, password, opts, s.deps.Login)
}

func (s Service) Refresh(ctx context.Context, refreshToken string) RefreshResult {
	return RunRefresh(ctx, refreshToken, s.deps.Refresh)
}

func (s Service) Validate(ctx context.Context, token string, requiredRoles []string) ValidateResult {
	return RunValidate(ctx, token, requiredRoles, s.deps.Validate)
}

func (s Service) Logout(ctx context.Context, access, refresh string) error {
	if access == "" && refresh == "" {
		return ErrNoToken
	}
	return RunLogout(ctx, access, refresh, s.deps.Logout)
}
