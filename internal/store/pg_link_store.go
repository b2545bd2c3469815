package store

import (
	"context"
	"fmt"

	"github.com/delumenta/JMBN/internal/links"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUpsertLinkQuery = `
	INSERT INTO discord_links (discord_id, user_id, discord_username, updated_at)
	VALUES ($1, $2, $3, now())
	ON CONFLICT (discord_id) DO UPDATE SET
		user_id = EXCLUDED.user_id,
		discord_username = EXCLUDED.discord_username,
		updated_at = EXCLUDED.updated_at
`

// PgExecer is satisfied by *pgxpool.Pool and *pgx.Conn.
type PgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresLinkStore writes discord_links straight into the bot's Postgres.
type PostgresLinkStore struct {
	db PgExecer
}

func NewPostgresLinkStore(db PgExecer) *PostgresLinkStore {
	return &PostgresLinkStore{db: db}
}

func (s *PostgresLinkStore) UpsertLink(ctx context.Context, link links.Link) error {
	if _, err := s.db.Exec(ctx, pgUpsertLinkQuery, link.DiscordID, link.UserID, link.Username); err != nil {
		return fmt.Errorf("upsert discord link: %w", err)
	}
	return nil
}
