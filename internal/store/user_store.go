package store

import (
	"context"

	users "github.com/delumenta/JMBN/internal/user"
	"github.com/jmoiron/sqlx"
)

type UserStore struct {
	db *sqlx.DB
}

const (
	getUserQuery           = "SELECT * FROM users WHERE id = ?"
	getUserByEmailQuery    = "SELECT * FROM users WHERE email = ? AND email <> ''"
	getUserByProviderQuery = `
		SELECT * FROM users
		WHERE provider = ?
		AND provider_id = ?
	`
	createUserQuery = `
		INSERT INTO users (id, email, username, password_hash, provider, provider_id, avatar_url, identity_data) VALUES
		(:id, :email, :username, :password_hash, :provider, :provider_id, :avatar_url, :identity_data)
	`
	updateProviderProfileQuery = `
		UPDATE users SET
		username = :username,
		avatar_url = :avatar_url,
		identity_data = :identity_data
		WHERE id = :id
	`
)

func NewUserStore(db *sqlx.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) GetUser(ctx context.Context, id any) (*users.User, error) {
	var user users.User
	err := s.db.GetContext(ctx, &user, getUserQuery, id)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (*users.User, error) {
	var user users.User
	err := s.db.GetContext(ctx, &user, getUserByEmailQuery, email)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UserStore) GetUserByProvider(ctx context.Context, provider string, providerID string) (*users.User, error) {
	var user users.User
	err := s.db.GetContext(ctx, &user, getUserByProviderQuery, provider, providerID)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UserStore) CreateUser(ctx context.Context, user *users.User) error {
	_, err := s.db.NamedExecContext(ctx, createUserQuery, user)
	return err
}

func (s *UserStore) UpdateProviderProfile(ctx context.Context, user *users.User) error {
	_, err := s.db.NamedExecContext(ctx, updateProviderProfileQuery, user)
	return err
}
