package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	BackendSupabase = "supabase"
	BackendLocal    = "local"

	LinkStoreSupabase = "supabase"
	LinkStorePostgres = "postgres"
	LinkStoreSQLite   = "sqlite"
	LinkStoreNone     = "none"
)

type Config struct {
	Addr            string        `env:"JMBN_ADDR" envDefault:":8080"`
	SiteDir         string        `env:"JMBN_SITE_DIR" envDefault:"./site"`
	DatabasePath    string        `env:"JMBN_DB_PATH" envDefault:"jmbn.db"`
	PublicOrigin    string        `env:"JMBN_PUBLIC_ORIGIN"`
	LoginPage       string        `env:"JMBN_LOGIN_PAGE" envDefault:"auth.html"`
	HomePage        string        `env:"JMBN_HOME_PAGE" envDefault:"index.html"`
	ProtectedPages  []string      `env:"JMBN_PROTECTED_PAGES" envDefault:"index.html" envSeparator:","`
	UsernameDomain  string        `env:"JMBN_USERNAME_DOMAIN" envDefault:"jmbn.local"`
	SessionLifetime time.Duration `env:"JMBN_SESSION_LIFETIME" envDefault:"720h"`

	Auth     AuthConfig
	Supabase SupabaseConfig
	Local    LocalConfig
	Links    LinksConfig
	Log      LogConfig
}

type AuthConfig struct {
	Backend            string   `env:"JMBN_AUTH_BACKEND" envDefault:"supabase"`
	PersistSession     bool     `env:"JMBN_AUTH_PERSIST_SESSION" envDefault:"true"`
	AutoRefreshToken   bool     `env:"JMBN_AUTH_AUTO_REFRESH" envDefault:"true"`
	DetectSessionInURL bool     `env:"JMBN_AUTH_DETECT_SESSION_IN_URL" envDefault:"false"`
	FlowType           string   `env:"JMBN_AUTH_FLOW_TYPE" envDefault:"pkce"`
	DiscordScopes      []string `env:"JMBN_DISCORD_SCOPES" envDefault:"identify,email" envSeparator:","`
}

type SupabaseConfig struct {
	URL            string `env:"SUPABASE_URL"`
	AnonKey        string `env:"SUPABASE_ANON_KEY"`
	ServiceRoleKey string `env:"SUPABASE_SERVICE_ROLE_KEY"`
}

type LocalConfig struct {
	DiscordKey    string        `env:"DISCORD_KEY"`
	DiscordSecret string        `env:"DISCORD_SECRET"`
	JWTSecret     string        `env:"JMBN_JWT_SECRET"`
	AccessTTL     time.Duration `env:"JMBN_ACCESS_TTL" envDefault:"1h"`
	RefreshTTL    time.Duration `env:"JMBN_REFRESH_TTL" envDefault:"720h"`
}

type LinksConfig struct {
	Store       string `env:"JMBN_LINK_STORE" envDefault:"supabase"`
	PostgresDSN string `env:"JMBN_LINK_POSTGRES_DSN"`
}

type LogConfig struct {
	Level  string `env:"JMBN_LOG_LEVEL" envDefault:"info"`
	Format string `env:"JMBN_LOG_FORMAT" envDefault:"text"`
}

// Load reads an optional .env file, parses the environment and validates
// the result. found reports whether a .env file was read.
func Load() (cfg Config, found bool, err error) {
	found = godotenv.Load() == nil

	if err := env.Parse(&cfg); err != nil {
		return Config{}, found, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, found, err
	}
	return cfg, found, nil
}

// Validate reports every problem with the configuration at once.
func (c Config) Validate() error {
	var errs []error

	if c.LoginPage == "" {
		errs = append(errs, errors.New("JMBN_LOGIN_PAGE must not be empty"))
	}
	if c.HomePage == "" {
		errs = append(errs, errors.New("JMBN_HOME_PAGE must not be empty"))
	}
	if strings.Contains(c.UsernameDomain, "@") || c.UsernameDomain == "" {
		errs = append(errs, fmt.Errorf("JMBN_USERNAME_DOMAIN %q must be a bare domain", c.UsernameDomain))
	}
	if c.Auth.FlowType != "pkce" {
		errs = append(errs, fmt.Errorf("JMBN_AUTH_FLOW_TYPE %q is not supported, only pkce", c.Auth.FlowType))
	}

	switch c.Auth.Backend {
	case BackendSupabase:
		if c.Supabase.URL == "" || c.Supabase.AnonKey == "" {
			errs = append(errs, errors.New("SUPABASE_URL and SUPABASE_ANON_KEY are required for the supabase backend"))
		}
	case BackendLocal:
		if len(c.Local.JWTSecret) < 32 {
			errs = append(errs, errors.New("JMBN_JWT_SECRET must be at least 32 characters for the local backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("JMBN_AUTH_BACKEND %q is not one of supabase, local", c.Auth.Backend))
	}

	switch c.Links.Store {
	case LinkStoreSupabase:
		if c.Supabase.URL == "" || c.Supabase.AnonKey == "" {
			errs = append(errs, errors.New("SUPABASE_URL and SUPABASE_ANON_KEY are required for the supabase link store"))
		}
	case LinkStorePostgres:
		if c.Links.PostgresDSN == "" {
			errs = append(errs, errors.New("JMBN_LINK_POSTGRES_DSN is required for the postgres link store"))
		}
	case LinkStoreSQLite, LinkStoreNone:
	default:
		errs = append(errs, fmt.Errorf("JMBN_LINK_STORE %q is not one of supabase, postgres, sqlite, none", c.Links.Store))
	}

	return errors.Join(errs...)
}
