// Package google implements Google sign-in for the backend's OAuth flow.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/topiclist/internal/model"
)

const (
	defaultAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	defaultTokenURL    = "https://oauth2.googleapis.com/token"
	defaultUserinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

	retryBackoff = 500 * time.Millisecond
)

var (
	ErrInvalidCode     = errors.New("oauth: invalid or expired code")
	ErrUnavailable     = errors.New("oauth: google unavailable")
	ErrEmailUnverified = errors.New("oauth: email not verified")
)

// Config holds the OAuth client registration. Endpoint fields default to Google's.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string

	AuthURL     string
	TokenURL    string
	UserinfoURL string
}

// Provider exchanges Google authorization codes for a verified identity.
type Provider struct {
	cfg  Config
	http *http.Client
	log  *zap.Logger
}

// New creates a Google provider.
func New(cfg Config, log *zap.Logger) *Provider {
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.UserinfoURL == "" {
		cfg.UserinfoURL = defaultUserinfoURL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Provider{
		cfg:  cfg,
		http: &http.Client{Timeout: 10 * time.Second},
		log:  log.With(zap.String("adapter", "google_oauth")),
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

type userinfoResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
}

// AuthCodeURL returns the consent page URL carrying state.
func (p *Provider) AuthCodeURL(state string) string {
	q := url.Values{}
	q.Set("client_id", p.cfg.ClientID)
	q.Set("redirect_uri", p.cfg.RedirectURI)
	q.Set("response_type", "code")
	q.Set("scope", "openid email")
	q.Set("state", state)
	q.Set("prompt", "select_account")
	sep := "?"
	if strings.Contains(p.cfg.AuthURL, "?") {
		sep = "&"
	}
	return p.cfg.AuthURL + sep + q.Encode()
}

// Exchange redeems code and returns the identity behind it. Only verified
// emails are accepted.
func (p *Provider) Exchange(ctx context.Context, code string) (model.OAuthIdentity, error) {
	accessToken, err := p.exchangeCode(ctx, code)
	if err != nil {
		return model.OAuthIdentity{}, err
	}
	info, err := p.fetchUserinfo(ctx, accessToken)
	if err != nil {
		return model.OAuthIdentity{}, err
	}
	if !info.VerifiedEmail {
		return model.OAuthIdentity{}, ErrEmailUnverified
	}
	p.log.Debug("google oauth success", zap.String("subject", info.ID))
	return model.OAuthIdentity{Provider: model.ProviderGoogle, Subject: info.ID, Email: info.Email}, nil
}

func (p *Provider) exchangeCode(ctx context.Context, code string) (string, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("client_id", p.cfg.ClientID)
	data.Set("client_secret", p.cfg.ClientSecret)
	data.Set("redirect_uri", p.cfg.RedirectURI)
	encoded := data.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, strings.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(encoded)), nil
	}

	resp, err := p.doWithRetry(ctx, req)
	if err != nil {
		p.log.Error("google token exchange failed", zap.Error(err))
		return "", ErrUnavailable
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var er errorResponse
		_ = json.Unmarshal(body, &er)
		p.log.Error("google token exchange failed", zap.Int("status", resp.StatusCode), zap.String("error", er.Error))
		if resp.StatusCode == http.StatusBadRequest {
			return "", ErrInvalidCode
		}
		return "", ErrUnavailable
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil || tr.AccessToken == "" {
		return "", errors.New("oauth: invalid token response")
	}
	return tr.AccessToken, nil
}

func (p *Provider) fetchUserinfo(ctx context.Context, accessToken string) (*userinfoResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.UserinfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.doWithRetry(ctx, req)
	if err != nil {
		p.log.Error("google userinfo failed", zap.Error(err))
		return nil, ErrUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.log.Error("google userinfo failed", zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("oauth: userinfo status %d", resp.StatusCode)
	}
	var info userinfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, errors.New("oauth: invalid userinfo response")
	}
	if info.ID == "" || info.Email == "" {
		return nil, errors.New("oauth: invalid userinfo response")
	}
	return &info, nil
}

// doWithRetry retries once on network errors and 5xx answers.
func (p *Provider) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := p.http.Do(req)
	if err == nil && resp.StatusCode < http.StatusInternalServerError {
		return resp, nil
	}
	if resp != nil {
		resp.Body.Close()
	}

	select {
	case <-time.After(retryBackoff):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		req.Body = body
	}
	return p.http.Do(req)
}
