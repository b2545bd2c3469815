package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	users "github.com/delumenta/JMBN/internal/user"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ErrTokenNotFound covers unknown, expired and already used refresh tokens.
var ErrTokenNotFound = errors.New("refresh token not found")

type RefreshTokenStore struct {
	db *sqlx.DB
}

func NewRefreshTokenStore(db *sqlx.DB) *RefreshTokenStore {
	return &RefreshTokenStore{db: db}
}

func (s *RefreshTokenStore) Create(ctx context.Context, token *users.RefreshToken) error {
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO refresh_tokens (token_hash, user_id, expires_at)
		VALUES (:token_hash, :user_id, :expires_at)`, token)
	return err
}

// Consume deletes the token with hash and returns its owner. A token can be
// consumed once.
func (s *RefreshTokenStore) Consume(ctx context.Context, hash string, now time.Time) (uuid.UUID, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return uuid.Nil, err
	}
	defer tx.Rollback()

	var token users.RefreshToken
	err = tx.GetContext(ctx, &token, "SELECT * FROM refresh_tokens WHERE token_hash = ?", hash)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, ErrTokenNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("get refresh token: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE token_hash = ?", hash); err != nil {
		return uuid.Nil, fmt.Errorf("delete refresh token: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return uuid.Nil, err
	}

	if !now.Before(token.ExpiresAt) {
		return uuid.Nil, ErrTokenNotFound
	}
	return token.UserID, nil
}

func (s *RefreshTokenStore) DeleteForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE user_id = ?", userID)
	return err
}
