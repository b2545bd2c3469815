package supabase

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/delumenta/JMBN/internal/auth"
	"github.com/delumenta/JMBN/internal/links"
)

const linksTable = "discord_links"

// LinksTable upserts discord_links rows through PostgREST. With a service
// role key it bypasses row level security; without one it writes as the
// signed-in viewer.
type LinksTable struct {
	client     *Client
	serviceKey string
}

func NewLinksTable(client *Client, serviceRoleKey string) *LinksTable {
	return &LinksTable{client: client, serviceKey: serviceRoleKey}
}

func (t *LinksTable) UpsertLink(ctx context.Context, link links.Link) error {
	bearer := t.serviceKey
	if bearer == "" {
		bearer = auth.AccessTokenFromContext(ctx)
	}
	if bearer == "" {
		return errors.New("supabase: no credentials to write discord_links")
	}

	return t.client.do(ctx, request{
		method: http.MethodPost,
		path:   "/rest/v1/" + linksTable,
		query:  url.Values{"on_conflict": {"discord_id"}},
		body:   []links.Link{link},
		bearer: bearer,
		headers: map[string]string{
			"Prefer": "resolution=merge-duplicates,return=minimal",
		},
	}, nil)
}
