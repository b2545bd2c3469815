package auth

import "context"

// ProviderDiscord is the only OAuth provider the site offers.
const ProviderDiscord = "discord"

// OAuthRequest describes an authorization redirect.
type OAuthRequest struct {
	Provider      string
	RedirectTo    string
	Scopes        []string
	CodeChallenge string
	State         string
}

// CodeExchange carries what the backend needs to turn an authorization
// code into a session. RedirectTo is the value used for the authorize step.
type CodeExchange struct {
	Code       string
	Verifier   string
	RedirectTo string
}

// Backend is the remote authentication service. Implementations own the
// wire format and any retries.
type Backend interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	AuthorizeURL(ctx context.Context, req OAuthRequest) (string, error)
	ExchangeCodeForSession(ctx context.Context, ex CodeExchange) (*Session, error)
	RefreshSession(ctx context.Context, refreshToken string) (*Session, error)
	SignOut(ctx context.Context, accessToken string) error
}
