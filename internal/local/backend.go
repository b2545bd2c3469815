// Package local is an auth backend that keeps accounts in the site's own
// SQLite database and talks to Discord directly.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/delumenta/JMBN/internal/auth"
	"github.com/delumenta/JMBN/internal/service"
	"github.com/delumenta/JMBN/internal/store"
	users "github.com/delumenta/JMBN/internal/user"
	"github.com/markbates/goth/providers/discord"
	"golang.org/x/oauth2"
)

var (
	ErrInvalidRefreshToken = errors.New("local: invalid refresh token")
	ErrDiscordDisabled     = errors.New("local: discord login is not configured")
)

// DiscordEndpoint is Discord's OAuth2 endpoint.
var DiscordEndpoint = oauth2.Endpoint{
	AuthURL:  "https://discord.com/api/oauth2/authorize",
	TokenURL: "https://discord.com/api/oauth2/token",
}

type Config struct {
	DiscordKey    string
	DiscordSecret string
	RefreshTTL    time.Duration
	// HTTPClient is used for every call to Discord. Nil means
	// http.DefaultClient.
	HTTPClient *http.Client
}

type Backend struct {
	users   *service.UserService
	refresh *store.RefreshTokenStore
	tokens  *TokenIssuer
	cfg     Config
	log     *slog.Logger
	now     func() time.Time
}

func New(userService *service.UserService, refresh *store.RefreshTokenStore, tokens *TokenIssuer, cfg Config, logger *slog.Logger) *Backend {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &Backend{
		users:   userService,
		refresh: refresh,
		tokens:  tokens,
		cfg:     cfg,
		log:     logger.With("adapter", "local"),
		now:     time.Now,
	}
}

func (b *Backend) SignInWithPassword(ctx context.Context, email, password string) (*auth.Session, error) {
	user, err := b.users.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return b.issue(ctx, user)
}

// AuthorizeURL starts a Discord login. goth builds the base URL; the PKCE
// challenge is appended.
func (b *Backend) AuthorizeURL(_ context.Context, req auth.OAuthRequest) (string, error) {
	if req.Provider != auth.ProviderDiscord {
		return "", fmt.Errorf("local: unsupported provider %q", req.Provider)
	}
	if b.cfg.DiscordKey == "" {
		return "", ErrDiscordDisabled
	}

	sess, err := b.provider(req.RedirectTo, req.Scopes).BeginAuth(req.State)
	if err != nil {
		return "", fmt.Errorf("begin discord auth: %w", err)
	}
	raw, err := sess.GetAuthURL()
	if err != nil {
		return "", err
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse discord auth url: %w", err)
	}
	if req.CodeChallenge != "" {
		q := u.Query()
		q.Set("code_challenge", req.CodeChallenge)
		q.Set("code_challenge_method", "S256")
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (b *Backend) ExchangeCodeForSession(ctx context.Context, ex auth.CodeExchange) (*auth.Session, error) {
	if b.cfg.DiscordKey == "" {
		return nil, ErrDiscordDisabled
	}

	conf := &oauth2.Config{
		ClientID:     b.cfg.DiscordKey,
		ClientSecret: b.cfg.DiscordSecret,
		Endpoint:     DiscordEndpoint,
		RedirectURL:  ex.RedirectTo,
	}
	tok, err := conf.Exchange(context.WithValue(ctx, oauth2.HTTPClient, b.cfg.HTTPClient), ex.Code, oauth2.VerifierOption(ex.Verifier))
	if err != nil {
		return nil, fmt.Errorf("exchange discord code: %w", err)
	}

	gothUser, err := b.provider(ex.RedirectTo, nil).FetchUser(&discord.Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch discord user: %w", err)
	}

	user, err := b.users.FindOrCreateUserByProvider(ctx, gothUser)
	if err != nil {
		return nil, fmt.Errorf("find or create user: %w", err)
	}
	b.log.InfoContext(ctx, "discord login", "user_id", user.ID, "discord_id", gothUser.UserID)
	return b.issue(ctx, user)
}

// RefreshSession rotates the refresh token. The old token stops working
// whether or not the new session is issued.
func (b *Backend) RefreshSession(ctx context.Context, refreshToken string) (*auth.Session, error) {
	userID, err := b.refresh.Consume(ctx, HashToken(refreshToken), b.now())
	if errors.Is(err, store.ErrTokenNotFound) {
		return nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, err
	}

	user, err := b.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return b.issue(ctx, user)
}

// SignOut revokes every refresh token of the token's owner.
func (b *Backend) SignOut(ctx context.Context, accessToken string) error {
	userID, err := b.tokens.Verify(accessToken)
	if err != nil {
		return fmt.Errorf("local: %w", err)
	}
	return b.refresh.DeleteForUser(ctx, userID)
}

func (b *Backend) provider(redirectTo string, scopes []string) *discord.Provider {
	p := discord.New(b.cfg.DiscordKey, b.cfg.DiscordSecret, redirectTo, scopes...)
	p.HTTPClient = b.cfg.HTTPClient
	return p
}

func (b *Backend) issue(ctx context.Context, user *users.User) (*auth.Session, error) {
	now := b.now()
	access, expires, err := b.tokens.AccessToken(user.ID, user.Email, now)
	if err != nil {
		return nil, err
	}

	raw, hash, err := b.tokens.RefreshToken()
	if err != nil {
		return nil, err
	}
	err = b.refresh.Create(ctx, &users.RefreshToken{
		TokenHash: hash,
		UserID:    user.ID,
		ExpiresAt: now.Add(b.cfg.RefreshTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &auth.Session{
		AccessToken:  access,
		TokenType:    "bearer",
		ExpiresIn:    int(expires.Sub(now).Seconds()),
		ExpiresAt:    expires.Unix(),
		RefreshToken: raw,
		User:         SessionUser(user),
	}, nil
}

// SessionUser renders a local account the way GoTrue renders its users.
func SessionUser(u *users.User) auth.User {
	provider := "email"
	if u.Provider != nil {
		provider = *u.Provider
	}

	su := auth.User{
		ID:    u.ID.String(),
		Email: u.Email,
		AppMetadata: map[string]any{
			"provider":  provider,
			"providers": []any{provider},
		},
		UserMetadata: map[string]any{},
	}
	if u.Username != "" {
		su.UserMetadata["username"] = u.Username
	}

	if u.ProviderID == nil {
		return su
	}

	var data map[string]any
	if u.IdentityData != nil {
		if err := json.Unmarshal([]byte(*u.IdentityData), &data); err != nil {
			data = nil
		}
	}
	if data != nil {
		su.UserMetadata = data
	}
	su.Identities = []auth.Identity{{
		ID:           *u.ProviderID,
		UserID:       su.ID,
		Provider:     provider,
		ProviderID:   *u.ProviderID,
		IdentityData: data,
	}}
	return su
}
