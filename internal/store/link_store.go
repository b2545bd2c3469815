package store

import (
	"context"
	"time"

	"github.com/delumenta/JMBN/internal/links"
	"github.com/jmoiron/sqlx"
)

const upsertLinkQuery = `
	INSERT INTO discord_links (discord_id, user_id, discord_username, updated_at)
	VALUES (:discord_id, :user_id, :discord_username, :updated_at)
	ON CONFLICT (discord_id) DO UPDATE SET
		user_id = excluded.user_id,
		discord_username = excluded.discord_username,
		updated_at = excluded.updated_at
`

// LinkStore keeps discord_links in the local SQLite database.
type LinkStore struct {
	db *sqlx.DB
}

func NewLinkStore(db *sqlx.DB) *LinkStore {
	return &LinkStore{db: db}
}

func (s *LinkStore) UpsertLink(ctx context.Context, link links.Link) error {
	if link.UpdatedAt.IsZero() {
		link.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, upsertLinkQuery, link)
	return err
}
