// Package links keeps the discord_links table in step with sign-ins so the
// chat bot can map a Discord account to a site account.
package links

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/delumenta/JMBN/internal/auth"
)

// Link is one discord_links row. DiscordID is the key; a second upsert for
// the same DiscordID overwrites UserID and Username.
type Link struct {
	DiscordID string    `db:"discord_id" json:"discord_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Username  string    `db:"discord_username" json:"discord_username"`
	UpdatedAt time.Time `db:"updated_at" json:"-"`
}

type Store interface {
	UpsertLink(ctx context.Context, link Link) error
}

// ErrSkipped is returned by Link for users without a Discord identity.
var ErrSkipped = errors.New("links: user has no discord identity")

type Linker struct {
	store Store
	log   *slog.Logger
}

func NewLinker(store Store, logger *slog.Logger) *Linker {
	return &Linker{store: store, log: logger.With("component", "links")}
}

// Link upserts the row for the Discord identity of s.
func (l *Linker) Link(ctx context.Context, s *auth.Session) error {
	profile, err := auth.DiscordProfileOf(s.User)
	if errors.Is(err, auth.ErrNoDiscordIdentity) {
		l.log.DebugContext(ctx, "no discord identity, skipping link", "user_id", s.User.ID)
		return ErrSkipped
	}
	if err != nil {
		l.log.WarnContext(ctx, "cannot read discord identity", "user_id", s.User.ID, "error", err)
		return err
	}

	link := Link{
		DiscordID: profile.ID,
		UserID:    s.User.ID,
		Username:  firstNonEmpty(profile.Username, profile.GlobalName),
	}
	ctx = auth.WithAccessToken(ctx, s.AccessToken)
	if err := l.store.UpsertLink(ctx, link); err != nil {
		l.log.ErrorContext(ctx, "upsert discord link", "discord_id", link.DiscordID, "user_id", link.UserID, "error", err)
		return err
	}

	l.log.InfoContext(ctx, "discord link stored", "discord_id", link.DiscordID, "user_id", link.UserID)
	return nil
}

// Run links every SIGNED_IN event until events closes or ctx ends.
func (l *Linker) Run(ctx context.Context, events <-chan auth.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type != auth.SignedIn || ev.Session == nil {
				continue
			}
			_ = l.Link(ctx, ev.Session)
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
