package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the client configuration and fills derived defaults.
func (c *Client) Validate() error {
	u, err := url.Parse(c.Backend.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend.url must be an absolute http(s) URL (got %q)", c.Backend.URL)
	}
	if c.Backend.Timeout < 0 {
		return fmt.Errorf("backend.timeout must be >= 0 (got %s)", c.Backend.Timeout)
	}
	if c.Session.Dir == "" {
		c.Session.Dir = DefaultSessionDir()
	}
	if c.UI.PublicURL == "" {
		c.UI.PublicURL = "http://" + c.UI.Listen
	}
	return c.Log.validate()
}

// Validate checks the server configuration.
func (c *Server) Validate() error {
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters (got %d)", len(c.Auth.JWTSecret))
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= c.Auth.AccessTTL {
		return fmt.Errorf("auth: refresh_ttl (%s) must exceed access_ttl (%s) > 0", c.Auth.RefreshTTL, c.Auth.AccessTTL)
	}
	if c.Auth.GoogleEnabled() && c.Auth.GoogleRedirectURI == "" {
		return fmt.Errorf("auth.google_redirect_uri is required when Google sign-in is configured")
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database: min_conns (%d) > max_conns (%d)", c.Database.MinConns, c.Database.MaxConns)
	}
	if c.Limiter.MaxFails <= 0 {
		return fmt.Errorf("limiter.max_fails must be > 0 (got %d)", c.Limiter.MaxFails)
	}
	return c.Log.validate()
}

func (l *LogConfig) validate() error {
	switch strings.ToLower(l.Format) {
	case "json", "console", "":
	default:
		return fmt.Errorf("log.format must be json or console (got %q)", l.Format)
	}
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error (got %q)", l.Level)
	}
	return nil
}
