package users

import (
	"time"

	"github.com/google/uuid"
)

// User is an account of the local auth backend.
type User struct {
	ID           uuid.UUID `db:"id"`
	Email        string    `db:"email"`
	Username     string    `db:"username"`
	PasswordHash *string   `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
	Provider     *string   `db:"provider"`
	ProviderID   *string   `db:"provider_id"`
	AvatarURL    *string   `db:"avatar_url"`
	IdentityData *string   `db:"identity_data"`
}

// RefreshToken is the stored form of an issued refresh token.
type RefreshToken struct {
	TokenHash string    `db:"token_hash"`
	UserID    uuid.UUID `db:"user_id"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}
