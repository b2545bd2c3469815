package auth

import (
	"context"
	"time"
)

// Session is the credential bundle returned by the auth backend. Field
// names follow GoTrue's token response so it decodes without mapping.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email,omitempty"`
	AppMetadata  map[string]any `json:"app_metadata,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	Identities   []Identity     `json:"identities,omitempty"`
}

// Identity is one provider credential linked to a user.
type Identity struct {
	ID           string         `json:"id"`
	IdentityID   string         `json:"identity_id,omitempty"`
	UserID       string         `json:"user_id"`
	Provider     string         `json:"provider"`
	ProviderID   string         `json:"provider_id,omitempty"`
	IdentityData map[string]any `json:"identity_data,omitempty"`
}

// ExpiresWithin reports whether the session expires before now+margin.
// A session without expires_at never expires.
func (s *Session) ExpiresWithin(now time.Time, margin time.Duration) bool {
	if s.ExpiresAt == 0 {
		return false
	}
	return !now.Add(margin).Before(time.Unix(s.ExpiresAt, 0))
}

type contextKey string

const (
	sessionKey     contextKey = "auth.session"
	accessTokenKey contextKey = "auth.access_token"
)

// WithSession stores the authenticated session in ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromContext returns the session placed by the auth guard, or nil.
func SessionFromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey).(*Session)
	return s
}

// WithAccessToken carries the viewer's bearer token to data stores that
// authorize as the viewer.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenKey, token)
}

func AccessTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(accessTokenKey).(string)
	return token
}
