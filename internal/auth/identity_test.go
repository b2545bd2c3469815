package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discordUser(ident Identity) User {
	ident.Provider = ProviderDiscord
	return User{
		ID:         "user-1",
		Email:      "someone@example.com",
		Identities: []Identity{{Provider: "email", ProviderID: "user-1"}, ident},
	}
}

func TestDiscordProfileOf(t *testing.T) {
	tests := []struct {
		name string
		user User
		want DiscordProfile
	}{
		{
			name: "provider_id column wins",
			user: discordUser(Identity{
				ProviderID:   "111",
				IdentityData: map[string]any{"provider_id": "222", "sub": "333", "full_name": "alice"},
			}),
			want: DiscordProfile{ID: "111", Username: "alice"},
		},
		{
			name: "identity_data provider_id",
			user: discordUser(Identity{IdentityData: map[string]any{"provider_id": "222", "sub": "333"}}),
			want: DiscordProfile{ID: "222"},
		},
		{
			name: "identity_data sub",
			user: discordUser(Identity{IdentityData: map[string]any{"sub": "333", "name": "bob#0"}}),
			want: DiscordProfile{ID: "333", Username: "bob"},
		},
		{
			name: "user_name and custom global name",
			user: discordUser(Identity{IdentityData: map[string]any{
				"sub":           "444",
				"user_name":     "carol",
				"avatar_url":    "https://cdn.discordapp.com/avatars/444/a.png",
				"custom_claims": map[string]any{"global_name": "Carol C"},
			}}),
			want: DiscordProfile{ID: "444", Username: "carol", GlobalName: "Carol C", AvatarURL: "https://cdn.discordapp.com/avatars/444/a.png"},
		},
		{
			name: "user_metadata when identities are missing",
			user: User{
				ID:           "user-2",
				AppMetadata:  map[string]any{"provider": "discord"},
				UserMetadata: map[string]any{"provider_id": "555", "full_name": "dave"},
			},
			want: DiscordProfile{ID: "555", Username: "dave"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DiscordProfileOf(tt.user)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDiscordProfileOf_Errors(t *testing.T) {
	_, err := DiscordProfileOf(User{
		ID:         "user-1",
		Email:      "a@b.c",
		Identities: []Identity{{Provider: "email", ProviderID: "user-1"}},
	})
	assert.ErrorIs(t, err, ErrNoDiscordIdentity)

	_, err = DiscordProfileOf(User{ID: "user-1"})
	assert.ErrorIs(t, err, ErrNoDiscordIdentity)

	_, err = DiscordProfileOf(discordUser(Identity{IdentityData: map[string]any{"full_name": "nobody"}}))
	assert.ErrorIs(t, err, ErrUnknownIdentityShape)
}

func TestCurrentUsername(t *testing.T) {
	t.Run("discord username beats email", func(t *testing.T) {
		s := &Session{User: discordUser(Identity{
			ProviderID:   "111",
			IdentityData: map[string]any{"full_name": "Alice_99", "custom_claims": map[string]any{"global_name": "Alice"}},
		})}
		assert.Equal(t, "Alice_99", CurrentUsername(s))
	})

	t.Run("global name without username", func(t *testing.T) {
		s := &Session{User: discordUser(Identity{
			ProviderID:   "111",
			IdentityData: map[string]any{"custom_claims": map[string]any{"global_name": "Alice"}},
		})}
		assert.Equal(t, "Alice", CurrentUsername(s))
	})

	t.Run("email local part", func(t *testing.T) {
		s := &Session{User: User{Email: "bob@jmbn.local"}}
		assert.Equal(t, "bob", CurrentUsername(s))
	})

	t.Run("first at sign only", func(t *testing.T) {
		s := &Session{User: User{Email: "we@ird@example.com"}}
		assert.Equal(t, "we", CurrentUsername(s))
	})

	t.Run("nothing available", func(t *testing.T) {
		assert.Equal(t, "", CurrentUsername(&Session{}))
		assert.Equal(t, "", CurrentUsername(nil))
	})
}
