package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/delumenta/JMBN/internal/basepath"
	"golang.org/x/sync/singleflight"
)

// refreshMargin is how close to expiry a stored session gets refreshed.
const refreshMargin = 30 * time.Second

// refreshReuseWindow is how long a spent refresh token keeps answering with
// the session it was traded for. Requests of one page that race a refresh
// carry the old token and must not sign the viewer out.
const refreshReuseWindow = 10 * time.Second

var (
	ErrStateMismatch   = errors.New("auth: oauth state does not match")
	ErrNoPendingFlow   = errors.New("auth: no pending oauth flow for this browser")
	ErrUnsupportedFlow = errors.New("auth: only the pkce flow is supported")
)

type Options struct {
	PersistSession     bool
	AutoRefreshToken   bool
	DetectSessionInURL bool
	FlowType           string
	UsernameDomain     string
	DiscordScopes      []string
	LoginPage          string
	HomePage           string
}

func DefaultOptions() Options {
	return Options{
		PersistSession:   true,
		AutoRefreshToken: true,
		FlowType:         "pkce",
		UsernameDomain:   "jmbn.local",
		DiscordScopes:    []string{"identify", "email"},
		LoginPage:        "auth.html",
		HomePage:         "index.html",
	}
}

// Client is the shared handle to the auth backend. Build one per process
// and hand it to the handlers that need it.
type Client struct {
	backend Backend
	storage Storage
	events  *Broker
	opts    Options
	log     *slog.Logger
	now     func() time.Time

	refreshes singleflight.Group
	mu        sync.Mutex
	spent     map[string]spentToken
}

type spentToken struct {
	session *Session
	until   time.Time
}

func New(backend Backend, storage Storage, opts Options, logger *slog.Logger) (*Client, error) {
	if opts.FlowType != "pkce" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFlow, opts.FlowType)
	}
	logger = logger.With("component", "auth")
	return &Client{
		backend: backend,
		storage: storage,
		events:  NewBroker(16, logger),
		opts:    opts,
		log:     logger,
		now:     time.Now,
		spent:   make(map[string]spentToken),
	}, nil
}

func (c *Client) Options() Options { return c.opts }

// Subscribe streams auth state changes. Call the returned func on teardown.
func (c *Client) Subscribe() (<-chan Event, func()) {
	return c.events.Subscribe()
}

// SubscribeBuffered is Subscribe with room for buffer pending events, for
// consumers that must not miss one.
func (c *Client) SubscribeBuffered(buffer int) (<-chan Event, func()) {
	return c.events.SubscribeBuffered(buffer)
}

// ClientID identifies the browser behind ctx in published events.
func (c *Client) ClientID(ctx context.Context) string {
	return c.storage.ClientID(ctx)
}

// GetSession returns the viewer's session or nil. Failures are logged and
// read as "no session".
func (c *Client) GetSession(ctx context.Context) *Session {
	s, err := c.storage.Load(ctx)
	if err != nil {
		c.log.WarnContext(ctx, "load session", "error", err)
		return nil
	}
	if s == nil {
		return nil
	}
	if !s.ExpiresWithin(c.now(), refreshMargin) {
		return s
	}
	if !c.opts.AutoRefreshToken || s.RefreshToken == "" {
		return nil
	}

	refreshed, led, err := c.refresh(ctx, s.RefreshToken)
	if err != nil {
		c.log.WarnContext(ctx, "refresh session", "error", err)
		c.end(ctx)
		return nil
	}
	if err := c.save(ctx, refreshed); err != nil {
		c.log.ErrorContext(ctx, "store refreshed session", "error", err)
	}
	if led {
		c.publish(ctx, TokenRefreshed, refreshed)
	}
	return refreshed
}

// refresh trades token at the backend once. Callers presenting the same
// token while the call is in flight, or within refreshReuseWindow after it,
// get the same session. led reports whether this caller made the call.
func (c *Client) refresh(ctx context.Context, token string) (refreshed *Session, led bool, err error) {
	if s := c.spentSession(token); s != nil {
		return s, false, nil
	}

	v, err, _ := c.refreshes.Do(token, func() (any, error) {
		led = true
		s, err := c.backend.RefreshSession(ctx, token)
		if err != nil {
			return nil, err
		}
		if s == nil {
			return nil, errors.New("auth: backend returned no session")
		}
		c.markSpent(token, s)
		return s, nil
	})
	if err != nil {
		return nil, led, err
	}
	return v.(*Session), led, nil
}

func (c *Client) spentSession(token string) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.spent[token]; ok && c.now().Before(t.until) {
		return t.session
	}
	return nil
}

func (c *Client) markSpent(token string, s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, t := range c.spent {
		if !now.Before(t.until) {
			delete(c.spent, k)
		}
	}
	c.spent[token] = spentToken{session: s, until: now.Add(refreshReuseWindow)}
}

// SyntheticEmail maps a bare username onto the site's login domain.
// Values that already contain "@" pass through.
func SyntheticEmail(usernameOrEmail, domain string) string {
	if strings.Contains(usernameOrEmail, "@") {
		return usernameOrEmail
	}
	return usernameOrEmail + "@" + domain
}

// SignIn performs a password login. The backend's result is returned as is;
// on success the session becomes the viewer's session.
func (c *Client) SignIn(ctx context.Context, usernameOrEmail, password string) (*Session, error) {
	email := SyntheticEmail(strings.TrimSpace(usernameOrEmail), c.opts.UsernameDomain)

	s, err := c.backend.SignInWithPassword(ctx, email, password)
	if err != nil {
		return s, err
	}
	if s != nil {
		c.establish(ctx, s)
	}
	return s, nil
}

// LoginWithDiscord starts the PKCE redirect and returns the provider URL.
// The provider sends the browser back to the login page under base.
func (c *Client) LoginWithDiscord(ctx context.Context, origin, base string) (string, error) {
	verifier, err := NewCodeVerifier()
	if err != nil {
		return "", err
	}
	state, err := newState()
	if err != nil {
		return "", err
	}

	redirectTo := origin + basepath.Join(base, c.opts.LoginPage)
	flow := Flow{Verifier: verifier, State: state, RedirectTo: redirectTo}
	if err := c.storage.PutFlow(ctx, flow); err != nil {
		return "", fmt.Errorf("store oauth flow: %w", err)
	}

	target, err := c.backend.AuthorizeURL(ctx, OAuthRequest{
		Provider:      ProviderDiscord,
		RedirectTo:    redirectTo,
		Scopes:        c.opts.DiscordScopes,
		CodeChallenge: CodeChallenge(verifier),
		State:         state,
	})
	if err != nil {
		c.log.ErrorContext(ctx, "discord oauth", "error", err)
		return "", err
	}
	return target, nil
}

// HasCallbackParams reports whether q carries an OAuth callback.
func HasCallbackParams(q url.Values) bool {
	return q.Get("code") != "" || q.Get("error_description") != "" || q.Get("error") != ""
}

// HandleCallback exchanges ?code= for a session. It returns (nil, nil) when
// there is no code, so calling it on any page load is safe.
func (c *Client) HandleCallback(ctx context.Context, q url.Values) (*Session, error) {
	if q.Get("error") != "" || q.Get("error_description") != "" {
		c.log.ErrorContext(ctx, "oauth error from provider", "error", q.Get("error"), "description", q.Get("error_description"))
	}

	code := q.Get("code")
	if code == "" {
		return nil, nil
	}

	flow, ok, err := c.storage.PopFlow(ctx)
	if err != nil {
		c.log.ErrorContext(ctx, "load oauth flow", "error", err)
		return nil, err
	}
	if !ok {
		c.log.WarnContext(ctx, "oauth callback without pending flow")
		return nil, ErrNoPendingFlow
	}
	if state := q.Get("state"); state != "" && state != flow.State {
		c.log.WarnContext(ctx, "oauth state mismatch")
		return nil, ErrStateMismatch
	}

	s, err := c.backend.ExchangeCodeForSession(ctx, CodeExchange{
		Code:       code,
		Verifier:   flow.Verifier,
		RedirectTo: flow.RedirectTo,
	})
	if err != nil {
		c.log.ErrorContext(ctx, "exchange code for session", "error", err)
		return nil, err
	}
	if s == nil {
		return nil, errors.New("auth: backend returned no session")
	}

	c.establish(ctx, s)
	return s, nil
}

// RequireAuth returns the viewer's session, or redirects to the login page
// and returns nil.
func (c *Client) RequireAuth(w http.ResponseWriter, r *http.Request) *Session {
	s := c.GetSession(r.Context())
	if s == nil {
		c.Goto(w, r, c.opts.LoginPage)
		return nil
	}
	return s
}

// SignOut ends the session at the backend and locally, then always sends
// the browser to the login page.
func (c *Client) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := c.signOut(r.Context()); err != nil {
		c.log.ErrorContext(r.Context(), "sign out", "error", err)
	}
	c.Goto(w, r, c.opts.LoginPage)
}

func (c *Client) signOut(ctx context.Context) error {
	s, loadErr := c.storage.Load(ctx)

	var err error
	if s != nil && s.AccessToken != "" {
		err = c.backend.SignOut(ctx, s.AccessToken)
	}
	c.end(ctx)
	return errors.Join(loadErr, err)
}

// Goto redirects to page, resolved against the request's base path.
func (c *Client) Goto(w http.ResponseWriter, r *http.Request, page string) {
	http.Redirect(w, r, basepath.Join(basepath.FromRequest(r), page), http.StatusSeeOther)
}

func (c *Client) establish(ctx context.Context, s *Session) {
	if err := c.save(ctx, s); err != nil {
		c.log.ErrorContext(ctx, "store session", "error", err)
	}
	c.publish(ctx, SignedIn, s)
}

func (c *Client) end(ctx context.Context) {
	if err := c.storage.Clear(ctx); err != nil {
		c.log.ErrorContext(ctx, "clear session", "error", err)
	}
	c.publish(ctx, SignedOut, nil)
}

func (c *Client) save(ctx context.Context, s *Session) error {
	if !c.opts.PersistSession {
		return nil
	}
	return c.storage.Save(ctx, s)
}

func (c *Client) publish(ctx context.Context, t EventType, s *Session) {
	c.events.Publish(Event{Type: t, ClientID: c.storage.ClientID(ctx), Session: s, At: c.now()})
}
