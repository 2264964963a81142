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
	return s.deps.SignIn.FindByUsername != nil && s.deps.Validate.Verify != nil
}

func (s Service) SignUp(ctx context.Context, username, password string) SignUpResult {
	return RunSignUp(ctx, username, password, s.deps.SignUp)
}

func (s Service) SignIn(ctx context.Context, req SignInInput) SignInResult {
	return RunSignIn(ctx, req, s.deps.SignIn)
}

func (s Service) Validate(ctx context.Context, token string) ValidateResult {
	return RunValidate(ctx, token, s.deps.Validate)
}

func (s Service) SignOut(ctx context.Context, token string) SignOutResult {
	return RunSignOut(ctx, token, s.deps.SignOut)
}

func (s Service) ResetPassword(ctx context.Context, accountID, oldPassword, newPassword string) ResetPasswordResult {
	return RunResetPassword(ctx, accountID, oldPassword, newPassword, s.deps.ResetPassword)
}

func (s Service) ExternalSignUp(ctx context.Context, code string) ExternalResult {
	return RunExternalSignUp(ctx, code, s.deps.External)
}

func (s Service) ExternalSignIn(ctx context.Context, code string) ExternalResult {
	return RunExternalSignIn(ctx, code, s.deps.External)
}

func (s Service) DecryptProfile(ctx context.Context, in ProfileInput) ProfileResult {
	return RunDecryptProfile(ctx, in, s.deps.External)
}
