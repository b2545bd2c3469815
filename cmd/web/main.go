package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/delumenta/JMBN/internal/auth"
	"github.com/delumenta/JMBN/internal/config"
	"github.com/delumenta/JMBN/internal/db"
	"github.com/delumenta/JMBN/internal/links"
	"github.com/delumenta/JMBN/internal/local"
	"github.com/delumenta/JMBN/internal/logger"
	"github.com/delumenta/JMBN/internal/service"
	"github.com/delumenta/JMBN/internal/store"
	"github.com/delumenta/JMBN/internal/supabase"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
)

// linkEventBuffer absorbs sign-in bursts while a discord_links upsert is
// in flight.
const linkEventBuffer = 1024

func main() {
	cfg, found, err := config.Load()
	if err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	appLogger := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(appLogger)
	if !found {
		appLogger.Info("no .env file found, using environment variables")
	}

	database, err := db.InitDB(cfg.DatabasePath)
	if err != nil {
		log.Fatal("Failed to open database: ", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database.DB); err != nil {
		log.Fatal("Failed to run migrations: ", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessionManager := scs.New()
	sessionManager.Lifetime = cfg.SessionLifetime
	sessionManager.Store = sqlite3store.New(database.DB)
	sessionManager.Cookie.Name = "jmbn_session"
	sessionManager.Cookie.Secure = strings.HasPrefix(cfg.PublicOrigin, "https://")

	backend, err := newBackend(cfg, database, appLogger)
	if err != nil {
		log.Fatal("Failed to set up auth backend: ", err)
	}

	opts := auth.DefaultOptions()
	opts.PersistSession = cfg.Auth.PersistSession
	opts.AutoRefreshToken = cfg.Auth.AutoRefreshToken
	opts.DetectSessionInURL = cfg.Auth.DetectSessionInURL
	opts.FlowType = cfg.Auth.FlowType
	opts.UsernameDomain = cfg.UsernameDomain
	opts.DiscordScopes = cfg.Auth.DiscordScopes
	opts.LoginPage = cfg.LoginPage
	opts.HomePage = cfg.HomePage

	client, err := auth.New(backend, auth.NewSessionStore(sessionManager), opts, appLogger)
	if err != nil {
		log.Fatal("Failed to create auth client: ", err)
	}

	linkStore, closeLinks, err := newLinkStore(ctx, cfg, database, appLogger)
	if err != nil {
		log.Fatal("Failed to set up link store: ", err)
	}
	defer closeLinks()
	if linkStore != nil {
		events, unsubscribe := client.SubscribeBuffered(linkEventBuffer)
		defer unsubscribe()
		go links.NewLinker(linkStore, appLogger).Run(ctx, events)
	}

	server := &http.Server{
		Addr: cfg.Addr,
		Handler: newRouter(sessionManager, client, routerConfig{
			SiteDir:        cfg.SiteDir,
			PublicOrigin:   cfg.PublicOrigin,
			ProtectedPages: cfg.ProtectedPages,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("server shutdown", "error", err)
		}
	}()

	appLogger.Info("server starting", "addr", cfg.Addr, "backend", cfg.Auth.Backend, "link_store", cfg.Links.Store)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}

func newBackend(cfg config.Config, database *sqlx.DB, logger *slog.Logger) (auth.Backend, error) {
	switch cfg.Auth.Backend {
	case config.BackendSupabase:
		return supabase.New(cfg.Supabase.URL, cfg.Supabase.AnonKey, logger), nil
	case config.BackendLocal:
		if cfg.Local.DiscordKey == "" {
			logger.Warn("DISCORD_KEY is not set, discord login is disabled")
		}
		return local.New(
			service.NewUserService(store.NewUserStore(database)),
			store.NewRefreshTokenStore(database),
			local.NewTokenIssuer(cfg.Local.JWTSecret, "jmbn", cfg.Local.AccessTTL),
			local.Config{
				DiscordKey:    cfg.Local.DiscordKey,
				DiscordSecret: cfg.Local.DiscordSecret,
				RefreshTTL:    cfg.Local.RefreshTTL,
				HTTPClient:    &http.Client{Timeout: 10 * time.Second},
			},
			logger,
		), nil
	}
	return nil, fmt.Errorf("unknown auth backend %q", cfg.Auth.Backend)
}

// newLinkStore returns nil when linking is switched off. The returned func
// releases whatever the store holds open.
func newLinkStore(ctx context.Context, cfg config.Config, database *sqlx.DB, logger *slog.Logger) (links.Store, func(), error) {
	noop := func() {}

	switch cfg.Links.Store {
	case config.LinkStoreSupabase:
		client := supabase.New(cfg.Supabase.URL, cfg.Supabase.AnonKey, logger)
		return supabase.NewLinksTable(client, cfg.Supabase.ServiceRoleKey), noop, nil
	case config.LinkStorePostgres:
		pool, err := pgxpool.New(ctx, cfg.Links.PostgresDSN)
		if err != nil {
			return nil, noop, fmt.Errorf("connect to postgres: %w", err)
		}
		return store.NewPostgresLinkStore(pool), pool.Close, nil
	case config.LinkStoreSQLite:
		return store.NewLinkStore(database), noop, nil
	case config.LinkStoreNone:
		return nil, noop, nil
	}
	return nil, noop, fmt.Errorf("unknown link store %q", cfg.Links.Store)
}
