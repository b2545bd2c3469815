package local

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenIssuer_AccessToken(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, "jmbn", 15*time.Minute)
	userID := uuid.New()
	now := time.Now()

	token, expires, err := issuer.AccessToken(userID, "a@b.c", now)
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(15*time.Minute), expires, time.Second)

	got, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestTokenIssuer_Rejects(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, "jmbn", 15*time.Minute)
	userID := uuid.New()

	expired, _, err := NewTokenIssuer(testSecret, "jmbn", -time.Hour).AccessToken(userID, "", time.Now())
	require.NoError(t, err)
	otherIssuer, _, err := NewTokenIssuer(testSecret, "someone-else", time.Hour).AccessToken(userID, "", time.Now())
	require.NoError(t, err)
	otherSecret, _, err := NewTokenIssuer("another-secret-at-least-32-chars-long!!", "jmbn", time.Hour).AccessToken(userID, "", time.Now())
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":        "",
		"garbage":      "not.a.jwt",
		"expired":      expired,
		"wrong issuer": otherIssuer,
		"wrong secret": otherSecret,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := issuer.Verify(token)
			assert.Error(t, err)
		})
	}
}

func TestRefreshToken(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, "jmbn", time.Minute)

	raw, hash, err := issuer.RefreshToken()
	require.NoError(t, err)
	assert.Len(t, raw, 43)
	assert.Equal(t, HashToken(raw), hash)
	assert.Len(t, hash, 64)

	other, _, err := issuer.RefreshToken()
	require.NoError(t, err)
	assert.NotEqual(t, raw, other)
}
