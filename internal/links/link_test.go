package links

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/delumenta/JMBN/internal/auth"
	"github.com/delumenta/JMBN/internal/auth/authtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu     sync.Mutex
	links  []Link
	tokens []string
	err    error
}

func (s *fakeStore) UpsertLink(ctx context.Context, link Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links = append(s.links, link)
	s.tokens = append(s.tokens, auth.AccessTokenFromContext(ctx))
	return s.err
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.links)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLink_Upserts(t *testing.T) {
	store := &fakeStore{}
	linker := NewLinker(store, discard())

	err := linker.Link(context.Background(), authtest.DiscordSession("u1", "80351110224678912", "nelly"))
	require.NoError(t, err)

	require.Len(t, store.links, 1)
	assert.Equal(t, Link{DiscordID: "80351110224678912", UserID: "u1", Username: "nelly"}, store.links[0])
	assert.Equal(t, "access-u1", store.tokens[0])
}

func TestLink_SkipsWithoutDiscordIdentity(t *testing.T) {
	store := &fakeStore{}
	linker := NewLinker(store, discard())

	err := linker.Link(context.Background(), authtest.EmailSession("u1", "alice@jmbn.local"))
	assert.ErrorIs(t, err, ErrSkipped)
	assert.Zero(t, store.count())
}

func TestLink_UnknownShape(t *testing.T) {
	store := &fakeStore{}
	linker := NewLinker(store, discard())

	s := authtest.DiscordSession("u1", "", "nelly")
	s.User.Identities[0].IdentityData = map[string]any{"full_name": "nelly"}

	err := linker.Link(context.Background(), s)
	assert.ErrorIs(t, err, auth.ErrUnknownIdentityShape)
	assert.Zero(t, store.count())
}

func TestLink_StoreErrorIsReturned(t *testing.T) {
	store := &fakeStore{err: errors.New("permission denied for table discord_links")}
	linker := NewLinker(store, discard())

	err := linker.Link(context.Background(), authtest.DiscordSession("u1", "42", "nelly"))
	assert.Error(t, err)
	assert.Equal(t, 1, store.count(), "no retry")
}

func TestRun_LinksSignedInEvents(t *testing.T) {
	store := &fakeStore{}
	linker := NewLinker(store, discard())
	broker := auth.NewBroker(8, discard())
	events, unsubscribe := broker.Subscribe()

	done := make(chan struct{})
	go func() {
		linker.Run(context.Background(), events)
		close(done)
	}()

	broker.Publish(auth.Event{Type: auth.SignedOut})
	broker.Publish(auth.Event{Type: auth.TokenRefreshed, Session: authtest.DiscordSession("u1", "42", "nelly")})
	broker.Publish(auth.Event{Type: auth.SignedIn, Session: authtest.EmailSession("u2", "x@y.z")})
	broker.Publish(auth.Event{Type: auth.SignedIn, Session: authtest.DiscordSession("u3", "43", "otto")})

	unsubscribe()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("linker did not stop after unsubscribe")
	}

	require.Equal(t, 1, store.count())
	assert.Equal(t, "43", store.links[0].DiscordID)
}
