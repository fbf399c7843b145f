package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const secret = "this-is-a-very-long-jwt-secret-for-testing-32+"

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	return path
}

func TestLoadClient_YAMLWithEnvOverride(t *testing.T) {
	path := writeYAML(t, `
backend:
  url: "https://example.supabase.co"
  anon_key: "anon"
  timeout: "5s"
session:
  dir: "/tmp/topics"
log:
  level: "debug"
  format: "console"
`)
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("TOPICS_BACKEND_ANON_KEY", "from-env")

	cfg, err := LoadClient("")
	require.NoError(t, err)
	require.Equal(t, "https://example.supabase.co", cfg.Backend.URL)
	require.Equal(t, "from-env", cfg.Backend.AnonKey)
	require.Equal(t, 5*time.Second, cfg.Backend.Timeout)
	require.Equal(t, "/tmp/topics", cfg.Session.Dir)
	require.Equal(t, "127.0.0.1:8080", cfg.UI.Listen)
	require.Equal(t, "http://127.0.0.1:8080", cfg.UI.PublicURL)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadClient_EnvOnly(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	t.Setenv("TOPICS_BACKEND_URL", "http://localhost:8000")

	cfg, err := LoadClient("")
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, cfg.Backend.Timeout)
	require.Equal(t, filepath.Join("/xdg", "topiclist"), cfg.Session.Dir)
	require.Equal(t, "google", cfg.UI.OAuthProvider)
	require.Equal(t, 1000, cfg.UI.MaxSessions)
	require.Equal(t, "json", cfg.Log.Format)
}

func TestLoadClient_Errors(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")

	_, err := LoadClient(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err, "explicit path must exist")

	t.Setenv("TOPICS_BACKEND_URL", "ftp://example.com")
	_, err = LoadClient("")
	require.ErrorContains(t, err, "backend.url")

	t.Setenv("TOPICS_BACKEND_URL", "http://localhost:8000")
	t.Setenv("LOG_FORMAT", "xml")
	_, err = LoadClient("")
	require.ErrorContains(t, err, "log.format")
}

func TestLoadServer(t *testing.T) {
	path := writeYAML(t, `
server:
  addr: ":9000"
database:
  dsn: "postgres://u:p@localhost:5432/topics"
  max_conns: 4
  min_conns: 1
auth:
  jwt_secret: "`+secret+`"
  access_ttl: "10m"
  additional_redirect_urls:
    - "https://app.example/auth/callback"
    - "https://staging.example"
limiter:
  max_fails: 3
`)
	cfg, err := LoadServer(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.HTTP.Addr)
	require.Equal(t, int32(4), cfg.Database.MaxConns)
	require.Equal(t, 10*time.Minute, cfg.Auth.AccessTTL)
	require.Equal(t, 720*time.Hour, cfg.Auth.RefreshTTL)
	require.Equal(t, 3, cfg.Limiter.MaxFails)
	require.Equal(t, 15*time.Minute, cfg.Limiter.BlockFor)
	require.False(t, cfg.Auth.GoogleEnabled())
	require.Equal(t, []string{"https://app.example/auth/callback", "https://staging.example"}, cfg.Auth.RedirectURLs)
}

func TestServer_Validate(t *testing.T) {
	valid := func() Server {
		return Server{
			Database: DatabaseConfig{DSN: "postgres://x", MaxConns: 10, MinConns: 1},
			Auth:     AuthConfig{JWTSecret: secret, AccessTTL: time.Hour, RefreshTTL: 24 * time.Hour},
			Limiter:  LimiterConfig{MaxFails: 5},
			Log:      LogConfig{Level: "info", Format: "json"},
		}
	}

	c := valid()
	require.NoError(t, c.Validate())

	c = valid()
	c.Auth.JWTSecret = "short"
	require.ErrorContains(t, c.Validate(), "jwt_secret")

	c = valid()
	c.Auth.RefreshTTL = time.Minute
	require.Error(t, c.Validate())

	c = valid()
	c.Auth.GoogleClientID, c.Auth.GoogleClientSecret = "id", "secret"
	require.ErrorContains(t, c.Validate(), "google_redirect_uri")

	c = valid()
	c.Database.MinConns = 20
	require.Error(t, c.Validate())

	c = valid()
	c.Limiter.MaxFails = 0
	require.Error(t, c.Validate())
}
