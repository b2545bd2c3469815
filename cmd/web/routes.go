package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"slices"
	"strings"

	"github.com/alexedwards/scs/v2"
	"github.com/delumenta/JMBN/internal/auth"
	"github.com/delumenta/JMBN/internal/basepath"
	"github.com/delumenta/JMBN/internal/httputil"
	"github.com/delumenta/JMBN/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

type routerConfig struct {
	SiteDir        string
	PublicOrigin   string
	ProtectedPages []string
}

type signInRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type signInResponse struct {
	Data  *auth.Session `json:"data"`
	Error *responseErr  `json:"error"`
}

type responseErr struct {
	Message string `json:"message"`
}

func newRouter(sessionManager *scs.SessionManager, client *auth.Client, cfg routerConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(sessionManager.LoadAndSave)
	if client.Options().DetectSessionInURL {
		r.Use(middleware.ExchangeCode(client))
	}

	// Pages call the API relative to themselves, so it is reachable both at
	// the root and under a project-site prefix.
	r.Mount("/api", apiRouter(client, cfg))
	r.Mount("/{base}/api", apiRouter(client, cfg))

	r.Handle("/*", siteHandler(client, cfg))
	return r
}

func apiRouter(client *auth.Client, cfg routerConfig) http.Handler {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.NotFound(w, "unknown API endpoint", nil)
	})

	r.Get("/base-path", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"base": basepath.FromRequest(r)})
	})

	r.Get("/session", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]*auth.Session{"session": client.GetSession(r.Context())})
	})

	r.Get("/username", func(w http.ResponseWriter, r *http.Request) {
		username := auth.CurrentUsername(client.GetSession(r.Context()))
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"username": username})
	})

	r.With(middleware.RequireAuth(client)).Get("/require-auth", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]*auth.Session{"session": auth.SessionFromContext(r.Context())})
	})

	r.Post("/sign-in", func(w http.ResponseWriter, r *http.Request) {
		var req signInRequest
		if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httputil.BadRequest(w, "Invalid JSON body", err)
				return
			}
		} else {
			if err := r.ParseForm(); err != nil {
				httputil.BadRequest(w, "Invalid form data", err)
				return
			}
			req.Username = r.Form.Get("username")
			req.Password = r.Form.Get("password")
		}
		if strings.TrimSpace(req.Username) == "" || req.Password == "" {
			httputil.BadRequest(w, "username and password are required", nil)
			return
		}

		session, err := client.SignIn(r.Context(), req.Username, req.Password)
		resp := signInResponse{Data: session}
		if err != nil {
			resp.Error = &responseErr{Message: err.Error()}
		}
		httputil.WriteJSON(w, http.StatusOK, resp)
	})

	r.Post("/sign-out", client.SignOut)

	r.Get("/discord", func(w http.ResponseWriter, r *http.Request) {
		origin := basepath.Origin(r, cfg.PublicOrigin)
		target, err := client.LoginWithDiscord(r.Context(), origin, basepath.FromRequest(r))
		if err != nil {
			httputil.BadGateway(w, "Discord login is unavailable", err)
			return
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
	})

	r.Get("/goto", func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("path")
		if !isSitePage(page) {
			httputil.BadRequest(w, "path must be a site page", nil)
			return
		}
		client.Goto(w, r, page)
	})

	r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
		streamEvents(w, r, client)
	})

	return r
}

// isSitePage reports whether page stays on this site. Browsers read "\" as
// "/", so "/\host" would leave it.
func isSitePage(page string) bool {
	if page == "" || strings.Contains(page, `\`) || strings.HasPrefix(page, "//") {
		return false
	}
	u, err := url.Parse(page)
	return err == nil && u.Scheme == "" && u.Host == ""
}

// streamEvents relays the viewer's own auth events as Server-Sent Events
// until the page goes away.
func streamEvents(w http.ResponseWriter, r *http.Request, client *auth.Client) {
	ctx := r.Context()
	clientID := client.ClientID(ctx)
	events, unsubscribe := client.Subscribe()
	defer unsubscribe()

	if !canFlush(w) {
		httputil.InternalServerError(w, "event stream needs a flushing response writer", http.ErrNotSupported)
		return
	}

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.ClientID != clientID {
				continue
			}
			data, err := json.Marshal(map[string]string{"username": auth.CurrentUsername(ev.Session)})
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// canFlush walks the Unwrap chain the way http.ResponseController does,
// without writing anything.
func canFlush(w http.ResponseWriter) bool {
	for {
		if _, ok := w.(http.Flusher); ok {
			return true
		}
		u, ok := w.(interface{ Unwrap() http.ResponseWriter })
		if !ok {
			return false
		}
		w = u.Unwrap()
	}
}

// siteHandler serves the static site from cfg.SiteDir under whatever base
// path the request resolves to. Protected pages need a session; the login
// page completes the Discord redirect and forwards signed-in viewers home.
func siteHandler(client *auth.Client, cfg routerConfig) http.Handler {
	files := http.FileServer(http.Dir(cfg.SiteDir))
	opts := client.Options()

	serve := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		base := basepath.FromRequest(r)
		r2 := r.Clone(r.Context())
		r2.URL.Path = "/" + strings.TrimPrefix(r.URL.Path, base)
		r2.URL.RawPath = ""
		files.ServeHTTP(w, r2)
	})

	login := middleware.RedirectAuthenticated(client, opts.HomePage)(serve)
	if !opts.DetectSessionInURL {
		login = middleware.ExchangeCode(client)(login)
	}
	protected := middleware.RequireAuth(client)(serve)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		base := basepath.FromRequest(r)
		if r.URL.Path+"/" == base {
			// On a project site a lone first segment is the prefix. One that
			// names a file is a root-level page, which project sites have none of.
			if path.Ext(strings.Trim(base, "/")) != "" {
				httputil.NotFound(w, "page not found", nil)
				return
			}
			http.Redirect(w, r, base, http.StatusMovedPermanently)
			return
		}

		page := sitePage(r.URL.Path, base)
		switch {
		case page == opts.LoginPage:
			login.ServeHTTP(w, r)
		case slices.Contains(cfg.ProtectedPages, page):
			protected.ServeHTTP(w, r)
		default:
			serve.ServeHTTP(w, r)
		}
	})
}

// sitePage names the page requested by path, relative to base. Directory
// requests name their index.html.
func sitePage(urlPath, base string) string {
	page := strings.TrimPrefix(urlPath, base)
	if page == "" || strings.HasSuffix(page, "/") {
		page += "index.html"
	}
	return page
}
