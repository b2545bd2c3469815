package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/delumenta/JMBN/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tokenResponse = `{
	"access_token": "jwt-access",
	"token_type": "bearer",
	"expires_in": 3600,
	"expires_at": 1893456000,
	"refresh_token": "refresh-1",
	"user": {
		"id": "8b1f5c3e-0f6d-4b59-9a55-2d1c3cf0b8a1",
		"email": "nelly@discord.com",
		"app_metadata": {"provider": "discord", "providers": ["discord"]},
		"user_metadata": {"full_name": "nelly", "provider_id": "80351110224678912"},
		"identities": [{
			"identity_id": "b0e4f1de-7d44-4a52-8c54-3b0f2c7e9d11",
			"id": "80351110224678912",
			"user_id": "8b1f5c3e-0f6d-4b59-9a55-2d1c3cf0b8a1",
			"provider": "discord",
			"identity_data": {
				"sub": "80351110224678912",
				"provider_id": "80351110224678912",
				"full_name": "nelly",
				"name": "nelly#0",
				"custom_claims": {"global_name": "Nelly"}
			}
		}]
	}
}`

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSignInWithPassword(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/v1/token", r.URL.Path)
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"email": "alice@jmbn.local", "password": "secret"}, body)

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, tokenResponse)
	}))
	defer srv.Close()

	client := New(srv.URL+"/", "anon-key", discard())
	s, err := client.SignInWithPassword(context.Background(), "alice@jmbn.local", "secret")
	require.NoError(t, err)

	assert.Equal(t, "jwt-access", s.AccessToken)
	assert.Equal(t, int64(1893456000), s.ExpiresAt)
	assert.Equal(t, "8b1f5c3e-0f6d-4b59-9a55-2d1c3cf0b8a1", s.User.ID)
	require.Len(t, s.User.Identities, 1)

	profile, err := auth.DiscordProfileOf(s.User)
	require.NoError(t, err)
	assert.Equal(t, auth.DiscordProfile{ID: "80351110224678912", Username: "nelly", GlobalName: "Nelly"}, profile)
}

func TestSignInWithPassword_InvalidCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"code":400,"error_code":"invalid_credentials","msg":"Invalid login credentials"}`)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "anon-key", discard()).SignInWithPassword(context.Background(), "a@b.c", "x")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "invalid_credentials", apiErr.Code)
	assert.Equal(t, "Invalid login credentials", apiErr.Message)
}

func TestExchangeCodeForSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pkce", r.URL.Query().Get("grant_type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "auth-code", body["auth_code"])
		assert.Equal(t, "verifier", body["code_verifier"])

		io.WriteString(w, `{"access_token":"a","refresh_token":"r","expires_in":3600,"user":{"id":"u1"}}`)
	}))
	defer srv.Close()

	before := time.Now()
	s, err := New(srv.URL, "anon-key", discard()).ExchangeCodeForSession(context.Background(), auth.CodeExchange{Code: "auth-code", Verifier: "verifier"})
	require.NoError(t, err)
	assert.Equal(t, "u1", s.User.ID)
	assert.GreaterOrEqual(t, s.ExpiresAt, before.Add(time.Hour).Unix(), "expires_at derived from expires_in")
}

func TestExchangeCodeForSession_LegacyError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":"invalid_grant","error_description":"invalid flow state, no valid flow state found"}`)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "anon-key", discard()).ExchangeCodeForSession(context.Background(), auth.CodeExchange{Code: "c", Verifier: "v"})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "invalid_grant", apiErr.Code)
	assert.Contains(t, apiErr.Error(), "invalid flow state")
}

func TestRefreshSession_EmptyToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "refresh_token", r.URL.Query().Get("grant_type"))
		io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "anon-key", discard()).RefreshSession(context.Background(), "r")
	assert.ErrorContains(t, err, "no access token")
}

func TestSignOut(t *testing.T) {
	var called bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, "/auth/v1/logout", r.URL.Path)
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, New(srv.URL, "anon-key", discard()).SignOut(context.Background(), "user-token"))
	assert.True(t, called)
}

func TestAuthorizeURL(t *testing.T) {
	client := New("https://project.supabase.co", "anon-key", discard())

	raw, err := client.AuthorizeURL(context.Background(), auth.OAuthRequest{
		Provider:      auth.ProviderDiscord,
		RedirectTo:    "https://delumenta.github.io/JMBN/auth.html",
		Scopes:        []string{"identify", "email"},
		CodeChallenge: "challenge",
		State:         "ignored",
	})
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "project.supabase.co", u.Host)
	assert.Equal(t, "/auth/v1/authorize", u.Path)

	q := u.Query()
	assert.Equal(t, "discord", q.Get("provider"))
	assert.Equal(t, "https://delumenta.github.io/JMBN/auth.html", q.Get("redirect_to"))
	assert.Equal(t, "identify email", q.Get("scopes"))
	assert.Equal(t, "challenge", q.Get("code_challenge"))
	assert.Equal(t, "s256", q.Get("code_challenge_method"))
	assert.Empty(t, q.Get("state"))

	_, err = client.AuthorizeURL(context.Background(), auth.OAuthRequest{})
	assert.Error(t, err)
}
