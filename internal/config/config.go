// Package config loads client and server settings from YAML and the environment.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Client is the configuration of the CLI and the web UI.
type Client struct {
	Backend BackendConfig `yaml:"backend"`
	Session SessionConfig `yaml:"session"`
	UI      UIConfig      `yaml:"ui"`
	Log     LogConfig     `yaml:"log"`
}

// BackendConfig points the client at a table/auth backend.
type BackendConfig struct {
	URL     string        `yaml:"url"      env:"TOPICS_BACKEND_URL"      env-required:"true"`
	AnonKey string        `yaml:"anon_key" env:"TOPICS_BACKEND_ANON_KEY"`
	Timeout time.Duration `yaml:"timeout"  env:"TOPICS_BACKEND_TIMEOUT"  env-default:"30s"`
}

// SessionConfig controls where the CLI persists its session.
type SessionConfig struct {
	Dir string `yaml:"dir" env:"TOPICS_SESSION_DIR"`
}

// UIConfig holds web UI settings.
type UIConfig struct {
	Listen        string `yaml:"listen"         env:"TOPICS_UI_LISTEN"         env-default:"127.0.0.1:8080"`
	PublicURL     string `yaml:"public_url"     env:"TOPICS_UI_PUBLIC_URL"`
	CookieSecure  bool   `yaml:"cookie_secure"  env:"TOPICS_UI_COOKIE_SECURE"  env-default:"false"`
	OAuthProvider string `yaml:"oauth_provider" env:"TOPICS_UI_OAUTH_PROVIDER" env-default:"google"`
	MaxSessions   int    `yaml:"max_sessions"   env:"TOPICS_UI_MAX_SESSIONS"   env-default:"1000"`
}

// Server is the configuration of the self-hosted backend.
type Server struct {
	HTTP     HTTPConfig     `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Limiter  LimiterConfig  `yaml:"limiter"`
	Log      LogConfig      `yaml:"log"`
}

// HTTPConfig holds HTTP listener settings.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"             env:"SERVER_ADDR"             env-default:":8000"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"30s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"SERVER_IDLE_TIMEOUT"     env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"                env:"DATABASE_DSN"                env-required:"true"`
	MaxConns        int32         `yaml:"max_conns"          env:"DATABASE_MAX_CONNS"          env-default:"10"`
	MinConns        int32         `yaml:"min_conns"          env:"DATABASE_MIN_CONNS"          env-default:"1"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"  env:"DATABASE_MAX_CONN_LIFETIME"  env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DATABASE_MAX_CONN_IDLE_TIME" env-default:"30m"`
}

// AuthConfig holds token and OAuth settings.
type AuthConfig struct {
	JWTSecret          string        `yaml:"jwt_secret"           env:"AUTH_JWT_SECRET"           env-required:"true"`
	AnonKey            string        `yaml:"anon_key"             env:"AUTH_ANON_KEY"`
	AccessTTL          time.Duration `yaml:"access_ttl"           env:"AUTH_ACCESS_TTL"           env-default:"1h"`
	RefreshTTL         time.Duration `yaml:"refresh_ttl"          env:"AUTH_REFRESH_TTL"          env-default:"720h"`
	SiteURL            string        `yaml:"site_url"             env:"AUTH_SITE_URL"`
	RedirectURLs       []string      `yaml:"additional_redirect_urls" env:"AUTH_ADDITIONAL_REDIRECT_URLS" env-separator:","`
	GoogleClientID     string        `yaml:"google_client_id"     env:"AUTH_GOOGLE_CLIENT_ID"`
	GoogleClientSecret string        `yaml:"google_client_secret" env:"AUTH_GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURI  string        `yaml:"google_redirect_uri"  env:"AUTH_GOOGLE_REDIRECT_URI"`
}

// GoogleEnabled reports whether Google sign-in is configured.
func (a AuthConfig) GoogleEnabled() bool {
	return a.GoogleClientID != "" && a.GoogleClientSecret != ""
}

// LimiterConfig controls password sign-in throttling.
type LimiterConfig struct {
	Window   time.Duration `yaml:"window"    env:"LIMITER_WINDOW"    env-default:"15m"`
	MaxFails int           `yaml:"max_fails" env:"LIMITER_MAX_FAILS" env-default:"5"`
	BlockFor time.Duration `yaml:"block_for" env:"LIMITER_BLOCK_FOR" env-default:"15m"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// DefaultSessionDir returns $XDG_CONFIG_HOME/topiclist, falling back to ~/.config/topiclist.
func DefaultSessionDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "topiclist")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "topiclist")
}
