// Package authtest provides in-memory doubles for auth.Backend and
// auth.Storage.
package authtest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/delumenta/JMBN/internal/auth"
)

// Backend records every call and answers with the configured values.
type Backend struct {
	mu sync.Mutex

	Session    *auth.Session
	Refreshed  *auth.Session
	AuthURL    string
	Err        error
	RefreshErr error
	SignOutErr error

	// SingleUseRefresh rejects a refresh token presented a second time.
	SingleUseRefresh bool
	RefreshDelay     time.Duration
	spent            map[string]bool

	Calls         []string
	Emails        []string
	OAuthRequests []auth.OAuthRequest
	Exchanges     []auth.CodeExchange
	SignedOut     []string
}

func (b *Backend) record(call string) {
	b.Calls = append(b.Calls, call)
}

// CallCount reports how many backend calls were made.
func (b *Backend) CallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Calls)
}

func (b *Backend) SignInWithPassword(_ context.Context, email, _ string) (*auth.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("SignInWithPassword")
	b.Emails = append(b.Emails, email)
	if b.Err != nil {
		return nil, b.Err
	}
	return b.Session, nil
}

func (b *Backend) AuthorizeURL(_ context.Context, req auth.OAuthRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("AuthorizeURL")
	b.OAuthRequests = append(b.OAuthRequests, req)
	if b.Err != nil {
		return "", b.Err
	}
	return b.AuthURL, nil
}

func (b *Backend) ExchangeCodeForSession(_ context.Context, ex auth.CodeExchange) (*auth.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("ExchangeCodeForSession")
	b.Exchanges = append(b.Exchanges, ex)
	if b.Err != nil {
		return nil, b.Err
	}
	return b.Session, nil
}

// ErrTokenSpent is returned for a reused token under SingleUseRefresh.
var ErrTokenSpent = errors.New("authtest: refresh token already used")

func (b *Backend) RefreshSession(_ context.Context, token string) (*auth.Session, error) {
	b.mu.Lock()
	b.record("RefreshSession")
	reused := b.spent[token]
	if b.SingleUseRefresh {
		if b.spent == nil {
			b.spent = make(map[string]bool)
		}
		b.spent[token] = true
	}
	delay, refreshed, err := b.RefreshDelay, b.Refreshed, b.RefreshErr
	b.mu.Unlock()

	time.Sleep(delay)
	if reused {
		return nil, ErrTokenSpent
	}
	if err != nil {
		return nil, err
	}
	return refreshed, nil
}

func (b *Backend) SignOut(_ context.Context, accessToken string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("SignOut")
	b.SignedOut = append(b.SignedOut, accessToken)
	return b.SignOutErr
}

// Storage keeps the auth state of a single browser in memory.
type Storage struct {
	mu sync.Mutex

	Session *auth.Session
	Flow    *auth.Flow
	ID      string
	LoadErr error

	Saves  int
	Clears int
}

func (s *Storage) Load(context.Context) (*auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}
	return s.Session, nil
}

func (s *Storage) Save(_ context.Context, sess *auth.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Saves++
	s.Session = sess
	return nil
}

func (s *Storage) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Clears++
	s.Session = nil
	s.Flow = nil
	return nil
}

func (s *Storage) PutFlow(_ context.Context, f auth.Flow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Flow = &f
	return nil
}

func (s *Storage) PopFlow(context.Context) (auth.Flow, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Flow == nil {
		return auth.Flow{}, false, nil
	}
	f := *s.Flow
	s.Flow = nil
	return f, true, nil
}

func (s *Storage) ClientID(context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ID == "" {
		s.ID = "test-client"
	}
	return s.ID
}

// DiscordSession returns a session whose user signed in through Discord.
func DiscordSession(userID, discordID, username string) *auth.Session {
	return &auth.Session{
		AccessToken:  "access-" + userID,
		TokenType:    "bearer",
		RefreshToken: "refresh-" + userID,
		User: auth.User{
			ID:          userID,
			Email:       username + "@example.com",
			AppMetadata: map[string]any{"provider": auth.ProviderDiscord},
			Identities: []auth.Identity{{
				ID:         discordID,
				UserID:     userID,
				Provider:   auth.ProviderDiscord,
				ProviderID: discordID,
				IdentityData: map[string]any{
					"provider_id": discordID,
					"sub":         discordID,
					"full_name":   username,
				},
			}},
		},
	}
}

// EmailSession returns a session of a password user.
func EmailSession(userID, email string) *auth.Session {
	return &auth.Session{
		AccessToken:  "access-" + userID,
		TokenType:    "bearer",
		RefreshToken: "refresh-" + userID,
		User: auth.User{
			ID:          userID,
			Email:       email,
			AppMetadata: map[string]any{"provider": "email"},
			Identities: []auth.Identity{{
				ID:           userID,
				UserID:       userID,
				Provider:     "email",
				IdentityData: map[string]any{"email": email, "sub": userID},
			}},
		},
	}
}
