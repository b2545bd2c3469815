package auth

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alexedwards/scs/v2"
	"github.com/google/uuid"
)

// Flow is the pending state of an OAuth redirect.
type Flow struct {
	Verifier   string `json:"verifier"`
	State      string `json:"state"`
	RedirectTo string `json:"redirect_to"`
}

// Storage persists one browser's auth state between requests.
type Storage interface {
	Load(ctx context.Context) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Clear(ctx context.Context) error
	PutFlow(ctx context.Context, f Flow) error
	PopFlow(ctx context.Context) (Flow, bool, error)
	ClientID(ctx context.Context) string
}

const (
	storeSessionKey  = "auth.session"
	storeFlowKey     = "auth.flow"
	storeClientIDKey = "auth.client_id"
)

// SessionStore keeps auth state in the scs session of the request. The
// request context must have passed through SessionManager.LoadAndSave.
type SessionStore struct {
	sm *scs.SessionManager
}

func NewSessionStore(sm *scs.SessionManager) *SessionStore {
	return &SessionStore{sm: sm}
}

func (s *SessionStore) Load(ctx context.Context) (*Session, error) {
	raw := s.sm.GetBytes(ctx, storeSessionKey)
	if len(raw) == 0 {
		return nil, nil
	}

	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode stored session: %w", err)
	}
	return &sess, nil
}

// Save stores s and renews the session token to prevent fixation.
func (s *SessionStore) Save(ctx context.Context, sess *Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.sm.RenewToken(ctx); err != nil {
		return fmt.Errorf("renew session token: %w", err)
	}
	s.sm.Put(ctx, storeSessionKey, raw)
	return nil
}

func (s *SessionStore) Clear(ctx context.Context) error {
	s.sm.Remove(ctx, storeSessionKey)
	s.sm.Remove(ctx, storeFlowKey)
	if err := s.sm.RenewToken(ctx); err != nil {
		return fmt.Errorf("renew session token: %w", err)
	}
	return nil
}

func (s *SessionStore) PutFlow(ctx context.Context, f Flow) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode flow: %w", err)
	}
	s.sm.Put(ctx, storeFlowKey, raw)
	return nil
}

// PopFlow returns and forgets the pending flow. ok is false when no
// redirect was started from this browser.
func (s *SessionStore) PopFlow(ctx context.Context) (Flow, bool, error) {
	raw := s.sm.PopBytes(ctx, storeFlowKey)
	if len(raw) == 0 {
		return Flow{}, false, nil
	}

	var f Flow
	if err := json.Unmarshal(raw, &f); err != nil {
		return Flow{}, false, fmt.Errorf("decode flow: %w", err)
	}
	return f, true, nil
}

// ClientID returns a stable id for the browser, creating one on first use.
func (s *SessionStore) ClientID(ctx context.Context) string {
	id := s.sm.GetString(ctx, storeClientIDKey)
	if id == "" {
		id = uuid.NewString()
		s.sm.Put(ctx, storeClientIDKey, id)
	}
	return id
}
