package auth

import (
	"errors"
	"strings"
)

var (
	ErrNoDiscordIdentity    = errors.New("auth: user has no discord identity")
	ErrUnknownIdentityShape = errors.New("auth: discord identity has no recognizable id")
)

// DiscordProfile is the normalized view of a user's Discord identity.
type DiscordProfile struct {
	ID         string
	Username   string
	GlobalName string
	AvatarURL  string
}

// DiscordProfileOf extracts the Discord profile from a GoTrue user.
//
// GoTrue stores provider metadata in identities[].identity_data:
//
//	provider_id, sub           Discord snowflake (same value)
//	full_name                  Discord username
//	name                       username, "#0" appended for migrated accounts
//	user_name                  username on some older records
//	custom_claims.global_name  display name
//	avatar_url
//
// The identity's own provider_id column is preferred for the id. When the
// token response omits identities, the user_metadata of a user whose
// app_metadata.provider is discord carries the same keys.
func DiscordProfileOf(u User) (DiscordProfile, error) {
	ident, ok := discordIdentity(u)
	if !ok {
		return DiscordProfile{}, ErrNoDiscordIdentity
	}

	data := ident.IdentityData
	id := firstNonEmpty(ident.ProviderID, stringField(data, "provider_id"), stringField(data, "sub"))
	if id == "" {
		return DiscordProfile{}, ErrUnknownIdentityShape
	}

	name := strings.TrimSuffix(stringField(data, "name"), "#0")
	profile := DiscordProfile{
		ID:         id,
		Username:   firstNonEmpty(stringField(data, "full_name"), name, stringField(data, "user_name")),
		GlobalName: stringField(data, "global_name"),
		AvatarURL:  stringField(data, "avatar_url"),
	}
	if claims, ok := data["custom_claims"].(map[string]any); ok {
		profile.GlobalName = firstNonEmpty(stringField(claims, "global_name"), profile.GlobalName)
	}
	return profile, nil
}

func discordIdentity(u User) (Identity, bool) {
	for _, ident := range u.Identities {
		if ident.Provider == ProviderDiscord {
			return ident, true
		}
	}
	if len(u.Identities) == 0 && stringField(u.AppMetadata, "provider") == ProviderDiscord {
		return Identity{UserID: u.ID, Provider: ProviderDiscord, IdentityData: u.UserMetadata}, true
	}
	return Identity{}, false
}

// CurrentUsername picks the display name for a session: Discord username,
// then Discord global name, then the email local part.
func CurrentUsername(s *Session) string {
	if s == nil {
		return ""
	}
	if p, err := DiscordProfileOf(s.User); err == nil {
		if name := firstNonEmpty(p.Username, p.GlobalName); name != "" {
			return name
		}
	}
	local, _, _ := strings.Cut(s.User.Email, "@")
	return local
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
