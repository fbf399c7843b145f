// Package service contains the backend's authentication and table services.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	pkgcrypto "github.com/and161185/topiclist/internal/crypto"
	"github.com/and161185/topiclist/internal/errs"
	"github.com/and161185/topiclist/internal/limiter"
	"github.com/and161185/topiclist/internal/model"
	"github.com/and161185/topiclist/internal/repository"
)

const (
	minPasswordLen = 6
	authCodeTTL    = 5 * time.Minute
	oauthStateTTL  = 10 * time.Minute
)

// AuthService defines authentication operations.
type AuthService interface {
	// SignUp creates a password account and signs it in.
	SignUp(ctx context.Context, email, password string) (model.Tokens, model.User, error)
	// SignInWithPassword applies rate limiting and authenticates the user.
	SignInWithPassword(ctx context.Context, email, password, ip string) (model.Tokens, model.User, error)
	// Refresh exchanges a refresh token for a new token pair.
	Refresh(ctx context.Context, refreshToken string) (model.Tokens, model.User, error)
	// Authenticate verifies an access token and returns its subject.
	Authenticate(ctx context.Context, accessToken string) (uuid.UUID, error)
	// User loads the account behind an authenticated subject.
	User(ctx context.Context, id uuid.UUID) (model.User, error)
	// AuthorizeURL starts an OAuth sign-in and returns the provider consent URL.
	AuthorizeURL(ctx context.Context, provider, redirectTo, challenge string) (string, error)
	// OAuthCallback finishes the provider leg and returns where to send the user agent.
	OAuthCallback(ctx context.Context, state, code string) (string, error)
	// ExchangeCode redeems a PKCE authorization code.
	ExchangeCode(ctx context.Context, code, verifier string) (model.Tokens, model.User, error)
}

// IdentityProvider is an OAuth provider able to verify an authorization code.
type IdentityProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (model.OAuthIdentity, error)
}

// AuthConfig holds token lifetimes and the accepted redirect targets.
type AuthConfig struct {
	SignKey    []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	SiteURL    string
	// RedirectURLs are extra prefixes accepted as redirect_to besides SiteURL.
	// Loopback http URLs on any port are always accepted for native clients.
	RedirectURLs []string
}

type AuthServiceImpl struct {
	users     repository.UserRepository
	lim       limiter.Limiter
	tok       signer
	cfg       AuthConfig
	providers map[string]IdentityProvider
	log       *zap.Logger
}

var _ AuthService = (*AuthServiceImpl)(nil)

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(users repository.UserRepository, lim limiter.Limiter, cfg AuthConfig, log *zap.Logger) *AuthServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthServiceImpl{
		users:     users,
		lim:       lim,
		tok:       signer{key: cfg.SignKey, now: time.Now},
		cfg:       cfg,
		providers: map[string]IdentityProvider{},
		log:       log,
	}
}

// RegisterProvider enables OAuth sign-in through p under name.
func (s *AuthServiceImpl) RegisterProvider(name string, p IdentityProvider) {
	s.providers[name] = p
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email", errs.ErrValidation)
	}
	return email, nil
}

// SignUp creates a new user with a per-user salt and issues tokens.
func (s *AuthServiceImpl) SignUp(ctx context.Context, email, password string) (model.Tokens, model.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	if len(password) < minPasswordLen {
		return model.Tokens{}, model.User{}, fmt.Errorf("%w: password must be at least %d characters", errs.ErrValidation, minPasswordLen)
	}
	uid, err := uuid.NewV4()
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	hash, salt, err := pkgcrypto.NewPassword(password)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	u := &model.User{ID: uid, Email: email, Provider: model.ProviderEmail, PwdHash: hash, SaltAuth: salt}
	if err := s.users.Create(ctx, u); err != nil {
		return model.Tokens{}, model.User{}, err
	}
	s.log.Info("user signed up", zap.String("user_id", uid.String()))
	return s.issue(*u)
}

// SignInWithPassword authenticates with rate limiting by (email, ip).
func (s *AuthServiceImpl) SignInWithPassword(ctx context.Context, email, password, ip string) (model.Tokens, model.User, error) {
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, email, ipHash)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	if !allowed {
		return model.Tokens{}, model.User{}, errs.ErrRateLimited
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return model.Tokens{}, model.User{}, err
	}
	if err != nil || !pkgcrypto.VerifyPassword(password, u.SaltAuth, u.PwdHash) {
		if blocked, _, ferr := s.lim.Failure(ctx, email, ipHash); ferr == nil && blocked {
			return model.Tokens{}, model.User{}, errs.ErrRateLimited
		}
		// unknown email and wrong password look the same
		return model.Tokens{}, model.User{}, errs.ErrUnauthorized
	}

	if err := s.lim.Success(ctx, email, ipHash); err != nil {
		s.log.Warn("limiter reset", zap.Error(err))
	}
	return s.issue(*u)
}

// Refresh validates a refresh token and rotates the pair.
func (s *AuthServiceImpl) Refresh(ctx context.Context, refreshToken string) (model.Tokens, model.User, error) {
	c, err := s.tok.parse(refreshToken, UseRefresh)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	u, err := s.userFromClaims(ctx, c)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	return s.issue(u)
}

// Authenticate verifies an access token.
func (s *AuthServiceImpl) Authenticate(_ context.Context, accessToken string) (uuid.UUID, error) {
	c, err := s.tok.parse(accessToken, UseAccess)
	if err != nil {
		return uuid.Nil, err
	}
	return c.userID()
}

// User loads an account by id.
func (s *AuthServiceImpl) User(ctx context.Context, id uuid.UUID) (model.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	return *u, nil
}

// AuthorizeURL validates the request and encodes it into a signed state.
func (s *AuthServiceImpl) AuthorizeURL(_ context.Context, provider, redirectTo, challenge string) (string, error) {
	p, ok := s.providers[provider]
	if !ok {
		return "", fmt.Errorf("%w: %q", errs.ErrUnsupportedProvider, provider)
	}
	if challenge == "" {
		return "", fmt.Errorf("%w: code_challenge is required", errs.ErrValidation)
	}
	redirectTo, err := s.redirectTarget(redirectTo)
	if err != nil {
		return "", err
	}
	state, _, err := s.tok.sign(Claims{
		Use:        UseOAuthState,
		Challenge:  challenge,
		RedirectTo: redirectTo,
		Provider:   provider,
	}, oauthStateTTL)
	if err != nil {
		return "", err
	}
	return p.AuthCodeURL(state), nil
}

// OAuthCallback verifies the provider code, finds or creates the account by
// email and redirects with a short-lived authorization code bound to the
// original PKCE challenge.
func (s *AuthServiceImpl) OAuthCallback(ctx context.Context, state, code string) (string, error) {
	st, err := s.tok.parse(state, UseOAuthState)
	if err != nil {
		return "", err
	}
	p, ok := s.providers[st.Provider]
	if !ok {
		return "", fmt.Errorf("%w: %q", errs.ErrUnsupportedProvider, st.Provider)
	}
	id, err := p.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrUnauthorized, err)
	}
	u, err := s.findOrCreate(ctx, id)
	if err != nil {
		return "", err
	}
	authCode, _, err := s.tok.sign(Claims{
		RegisteredClaims: jwtSubject(u.ID),
		Email:            u.Email,
		Use:              UseAuthCode,
		Challenge:        st.Challenge,
	}, authCodeTTL)
	if err != nil {
		return "", err
	}
	return withQuery(st.RedirectTo, "code", authCode)
}

// ExchangeCode redeems an authorization code whose challenge matches verifier.
func (s *AuthServiceImpl) ExchangeCode(ctx context.Context, code, verifier string) (model.Tokens, model.User, error) {
	if code == "" || verifier == "" {
		return model.Tokens{}, model.User{}, fmt.Errorf("%w: auth_code and code_verifier are required", errs.ErrValidation)
	}
	c, err := s.tok.parse(code, UseAuthCode)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	if !pkgcrypto.VerifyChallenge(verifier, c.Challenge) {
		return model.Tokens{}, model.User{}, fmt.Errorf("%w: code verifier does not match", errs.ErrUnauthorized)
	}
	u, err := s.userFromClaims(ctx, c)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	return s.issue(u)
}

func (s *AuthServiceImpl) findOrCreate(ctx context.Context, id model.OAuthIdentity) (model.User, error) {
	email, err := normalizeEmail(id.Email)
	if err != nil {
		return model.User{}, err
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return *u, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return model.User{}, err
	}
	uid, err := uuid.NewV4()
	if err != nil {
		return model.User{}, err
	}
	nu := &model.User{ID: uid, Email: email, Provider: id.Provider}
	if err := s.users.Create(ctx, nu); err != nil {
		return model.User{}, err
	}
	s.log.Info("user created from oauth", zap.String("user_id", uid.String()), zap.String("provider", id.Provider))
	return *nu, nil
}

func (s *AuthServiceImpl) userFromClaims(ctx context.Context, c *Claims) (model.User, error) {
	id, err := c.userID()
	if err != nil {
		return model.User{}, err
	}
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, errs.ErrNotFound) {
		return model.User{}, fmt.Errorf("%w: account no longer exists", errs.ErrUnauthorized)
	}
	if err != nil {
		return model.User{}, err
	}
	return *u, nil
}

// issue creates the access/refresh pair for u.
func (s *AuthServiceImpl) issue(u model.User) (model.Tokens, model.User, error) {
	access, exp, err := s.tok.sign(Claims{RegisteredClaims: jwtSubject(u.ID), Email: u.Email, Use: UseAccess}, s.cfg.AccessTTL)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	refresh, _, err := s.tok.sign(Claims{RegisteredClaims: jwtSubject(u.ID), Use: UseRefresh}, s.cfg.RefreshTTL)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	return model.Tokens{AccessToken: access, RefreshToken: refresh, ExpiresAt: exp}, u, nil
}

func (s *AuthServiceImpl) redirectTarget(redirectTo string) (string, error) {
	if redirectTo == "" {
		redirectTo = s.cfg.SiteURL
	}
	u, err := url.Parse(redirectTo)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" || u.User != nil {
		return "", fmt.Errorf("%w: redirect_to must be an absolute http(s) URL", errs.ErrValidation)
	}
	if isLoopback(u) {
		return redirectTo, nil
	}
	for _, allowed := range append([]string{s.cfg.SiteURL}, s.cfg.RedirectURLs...) {
		if underPrefix(u, allowed) {
			return redirectTo, nil
		}
	}
	return "", fmt.Errorf("%w: redirect_to %q is not allowed", errs.ErrValidation, u.Host)
}

func isLoopback(u *url.URL) bool {
	if u.Scheme != "http" {
		return false
	}
	switch u.Hostname() {
	case "127.0.0.1", "localhost", "::1":
		return true
	}
	return false
}

// underPrefix reports whether u has the scheme and host of prefix and a path at
// or below the prefix path.
func underPrefix(u *url.URL, prefix string) bool {
	if prefix == "" {
		return false
	}
	p, err := url.Parse(prefix)
	if err != nil || p.Host == "" {
		return false
	}
	if u.Scheme != p.Scheme || !strings.EqualFold(u.Host, p.Host) {
		return false
	}
	base := strings.TrimRight(p.Path, "/")
	return base == "" || u.Path == base || strings.HasPrefix(u.Path, base+"/")
}

func withQuery(raw, key, value string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
