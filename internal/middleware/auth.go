package middleware

import (
	"net/http"

	"github.com/delumenta/JMBN/internal/auth"
)

// RequireAuth guards a page: viewers without a session are redirected to
// the login page, everyone else gets their session in the request context.
func RequireAuth(client *auth.Client) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := client.RequireAuth(w, r)
			if session == nil {
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), session)))
		})
	}
}

// ExchangeCode completes the PKCE redirect. A successful exchange answers
// with a redirect to the same path minus the query string. Requests without
// callback parameters, and failed exchanges, fall through unchanged.
func ExchangeCode(client *auth.Client) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if !auth.HasCallbackParams(q) {
				next.ServeHTTP(w, r)
				return
			}

			session, err := client.HandleCallback(r.Context(), q)
			if err != nil || session == nil {
				next.ServeHTTP(w, r)
				return
			}
			http.Redirect(w, r, r.URL.Path, http.StatusSeeOther)
		})
	}
}

// RedirectAuthenticated sends viewers who already have a session on to
// page. It sits on the login page.
func RedirectAuthenticated(client *auth.Client, page string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if client.GetSession(r.Context()) != nil {
				client.Goto(w, r, page)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
