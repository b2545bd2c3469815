package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/delumenta/JMBN/internal/store"
	users "github.com/delumenta/JMBN/internal/user"
	"github.com/google/uuid"
	"github.com/markbates/goth"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrEmailTaken         = errors.New("email already registered")
)

type UserService struct {
	store    *store.UserStore
	hashCost int
}

func NewUserService(store *store.UserStore) *UserService {
	return &UserService{store: store, hashCost: bcrypt.DefaultCost}
}

// FindOrCreateUserByProvider returns the local account of an OAuth user,
// creating it on first login and refreshing the stored profile otherwise.
func (s *UserService) FindOrCreateUserByProvider(ctx context.Context, gothUser goth.User) (*users.User, error) {
	identityData, err := json.Marshal(IdentityData(gothUser))
	if err != nil {
		return nil, fmt.Errorf("encode identity data: %w", err)
	}
	identityJSON := string(identityData)
	username := ProviderUsername(gothUser)

	user, err := s.store.GetUserByProvider(ctx, gothUser.Provider, gothUser.UserID)
	if err == nil {
		if valueOf(user.AvatarURL) != gothUser.AvatarURL || user.Username != username || valueOf(user.IdentityData) != identityJSON {
			user.Username = username
			user.AvatarURL = optional(gothUser.AvatarURL)
			user.IdentityData = &identityJSON
			if err := s.store.UpdateProviderProfile(ctx, user); err != nil {
				return nil, fmt.Errorf("update provider profile: %w", err)
			}
		}
		return user, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	// The Discord email may already belong to a password account; the new
	// account then goes without one.
	email := strings.ToLower(gothUser.Email)
	if email != "" {
		if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
			email = ""
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	}

	provider, providerID := gothUser.Provider, gothUser.UserID
	newUser := &users.User{
		ID:           uuid.New(),
		Email:        email,
		Username:     username,
		Provider:     &provider,
		ProviderID:   &providerID,
		AvatarURL:    optional(gothUser.AvatarURL),
		IdentityData: &identityJSON,
	}
	if err := s.store.CreateUser(ctx, newUser); err != nil {
		return nil, err
	}
	return newUser, nil
}

// Authenticate checks a password login.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*users.User, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if user.PasswordHash == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// CreatePasswordUser registers a password account.
func (s *UserService) CreatePasswordUser(ctx context.Context, email, username, password string) (*users.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	passwordHash := string(hash)

	user := &users.User{
		ID:           uuid.New(),
		Email:        email,
		Username:     username,
		PasswordHash: &passwordHash,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, id uuid.UUID) (*users.User, error) {
	return s.store.GetUser(ctx, id)
}

// ProviderUsername is the Discord username of gothUser.
func ProviderUsername(gothUser goth.User) string {
	if name, ok := gothUser.RawData["username"].(string); ok && name != "" {
		return name
	}
	if gothUser.NickName != "" {
		return gothUser.NickName
	}
	return gothUser.Name
}

// IdentityData lays out a goth user the way GoTrue fills identity_data for
// Discord, so sessions from either backend normalize the same way.
func IdentityData(gothUser goth.User) map[string]any {
	username := ProviderUsername(gothUser)
	data := map[string]any{
		"provider_id": gothUser.UserID,
		"sub":         gothUser.UserID,
		"full_name":   username,
		"name":        username,
	}
	if gothUser.Email != "" {
		data["email"] = gothUser.Email
	}
	if gothUser.AvatarURL != "" {
		data["avatar_url"] = gothUser.AvatarURL
	}
	if global, ok := gothUser.RawData["global_name"].(string); ok && global != "" {
		data["custom_claims"] = map[string]any{"global_name": global}
	}
	return data
}

func valueOf(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// optional maps blank strings to NULL.
func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
