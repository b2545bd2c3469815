package auth

import (
	"context"
	"testing"

	"github.com/alexedwards/scs/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadedContext(t *testing.T, sm *scs.SessionManager) context.Context {
	t.Helper()
	ctx, err := sm.Load(context.Background(), "")
	require.NoError(t, err)
	return ctx
}

func TestSessionStore(t *testing.T) {
	sm := scs.New()
	store := NewSessionStore(sm)
	ctx := loadedContext(t, sm)

	s, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)

	want := &Session{AccessToken: "a", RefreshToken: "r", ExpiresAt: 1700000000, User: User{ID: "u1", Email: "u@x.y"}}
	require.NoError(t, store.Save(ctx, want))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, store.Clear(ctx))
	got, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSessionStore_Flow(t *testing.T) {
	sm := scs.New()
	store := NewSessionStore(sm)
	ctx := loadedContext(t, sm)

	_, ok, err := store.PopFlow(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	flow := Flow{Verifier: "v", State: "s", RedirectTo: "http://localhost/auth.html"}
	require.NoError(t, store.PutFlow(ctx, flow))

	got, ok, err := store.PopFlow(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, flow, got)

	_, ok, err = store.PopFlow(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "flow is consumed by the first pop")
}

func TestSessionStore_ClientID(t *testing.T) {
	sm := scs.New()
	store := NewSessionStore(sm)
	ctx := loadedContext(t, sm)

	id := store.ClientID(ctx)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, store.ClientID(ctx))

	require.NoError(t, store.Clear(ctx))
	assert.Equal(t, id, store.ClientID(ctx), "client id survives sign-out")
}
