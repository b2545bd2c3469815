// Package supabase talks to a hosted Supabase project: GoTrue for auth and
// PostgREST for the discord_links table.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/delumenta/JMBN/internal/auth"
)

// APIError is a non-2xx answer from GoTrue or PostgREST.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("supabase: %d: %s", e.Status, e.Message)
}

// errorBody covers both GoTrue error layouts and PostgREST's.
type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Code             any    `json:"code"`
	Message          string `json:"message"`
}

// Client implements auth.Backend against GoTrue.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *slog.Logger
}

func New(baseURL, anonKey string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     anonKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        logger.With("adapter", "supabase"),
	}
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*auth.Session, error) {
	body := map[string]string{"email": email, "password": password}
	return c.token(ctx, "password", body)
}

func (c *Client) ExchangeCodeForSession(ctx context.Context, ex auth.CodeExchange) (*auth.Session, error) {
	body := map[string]string{"auth_code": ex.Code, "code_verifier": ex.Verifier}
	return c.token(ctx, "pkce", body)
}

func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*auth.Session, error) {
	body := map[string]string{"refresh_token": refreshToken}
	return c.token(ctx, "refresh_token", body)
}

// AuthorizeURL builds the GoTrue authorize URL. GoTrue keeps its own state
// for the provider round trip, so req.State is not sent.
func (c *Client) AuthorizeURL(_ context.Context, req auth.OAuthRequest) (string, error) {
	if req.Provider == "" {
		return "", errors.New("supabase: provider is required")
	}

	q := url.Values{}
	q.Set("provider", req.Provider)
	if req.RedirectTo != "" {
		q.Set("redirect_to", req.RedirectTo)
	}
	if len(req.Scopes) > 0 {
		q.Set("scopes", strings.Join(req.Scopes, " "))
	}
	if req.CodeChallenge != "" {
		q.Set("code_challenge", req.CodeChallenge)
		q.Set("code_challenge_method", "s256")
	}
	return c.baseURL + "/auth/v1/authorize?" + q.Encode(), nil
}

func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/logout",
		bearer: accessToken,
	}, nil)
}

func (c *Client) token(ctx context.Context, grant string, body any) (*auth.Session, error) {
	var s auth.Session
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {grant}},
		body:   body,
	}, &s)
	if err != nil {
		return nil, err
	}
	if s.AccessToken == "" {
		return nil, fmt.Errorf("supabase: %s grant returned no access token", grant)
	}
	if s.ExpiresAt == 0 && s.ExpiresIn > 0 {
		s.ExpiresAt = time.Now().Add(time.Duration(s.ExpiresIn) * time.Second).Unix()
	}
	return &s, nil
}

type request struct {
	method  string
	path    string
	query   url.Values
	body    any
	bearer  string
	headers map[string]string
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	target := c.baseURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		raw, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	if r.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+r.bearer)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.ErrorContext(ctx, "supabase request failed", "path", r.path, "error", err)
		return fmt.Errorf("supabase %s: %w", r.path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", r.path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeError(resp.StatusCode, raw)
		c.log.WarnContext(ctx, "supabase request rejected", "path", r.path, "status", resp.StatusCode, "code", apiErr.Code)
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", r.path, err)
	}
	return nil
}

func decodeError(status int, raw []byte) *APIError {
	apiErr := &APIError{Status: status, Message: http.StatusText(status)}

	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		if msg := strings.TrimSpace(string(raw)); msg != "" {
			apiErr.Message = msg
		}
		return apiErr
	}

	switch {
	case body.ErrorCode != "" || body.Msg != "":
		apiErr.Code = body.ErrorCode
		apiErr.Message = body.Msg
	case body.Error != "":
		apiErr.Code = body.Error
		apiErr.Message = body.ErrorDescription
	case body.Message != "":
		if code, ok := body.Code.(string); ok {
			apiErr.Code = code
		}
		apiErr.Message = body.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
