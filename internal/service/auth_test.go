package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap/zaptest"

	pkgcrypto "github.com/and161185/topiclist/internal/crypto"
	"github.com/and161185/topiclist/internal/errs"
	"github.com/and161185/topiclist/internal/limiter"
	"github.com/and161185/topiclist/internal/model"
	"github.com/and161185/topiclist/internal/repository"
)

type fakeUsers struct {
	byEmail map[string]*model.User

	createErr error
	getErr    error
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	if f.byEmail == nil {
		f.byEmail = map[string]*model.User{}
	}
	key := strings.ToLower(u.Email)
	if _, exists := f.byEmail[key]; exists {
		return errs.ErrAlreadyExists
	}
	cpy := *u
	f.byEmail[key] = &cpy
	return nil
}
func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	for _, u := range f.byEmail {
		if u.ID == id {
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}
func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}

type fakeLimiter struct {
	allowOK  bool
	allowErr error

	failBlocked bool
	failErr     error

	successErr error

	allowCalls   int
	failureCalls int
	successCalls int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	l.allowCalls++
	return l.allowOK, 0, l.allowErr
}
func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.successCalls++
	return l.successErr
}
func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.failureCalls++
	return l.failBlocked, 0, l.failErr
}

type fakeProvider struct {
	identity model.OAuthIdentity
	err      error
	gotCode  string
}

func (p *fakeProvider) AuthCodeURL(state string) string {
	return "https://idp.example/auth?state=" + url.QueryEscape(state)
}
func (p *fakeProvider) Exchange(_ context.Context, code string) (model.OAuthIdentity, error) {
	p.gotCode = code
	return p.identity, p.err
}

func newAuth(t *testing.T, users *fakeUsers, lim *fakeLimiter) *AuthServiceImpl {
	t.Helper()
	return NewAuthService(users, lim, AuthConfig{
		SignKey:    []byte("0123456789abcdef0123456789abcdef"),
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
		SiteURL:    "http://localhost:8080/",
	}, zaptest.NewLogger(t))
}

func TestAuth_SignUp_Basics(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{}
	s := newAuth(t, users, &fakeLimiter{})
	ctx := context.Background()

	if _, _, err := s.SignUp(ctx, "not-an-email", "secret1"); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want ErrValidation on bad email, got %v", err)
	}
	if _, _, err := s.SignUp(ctx, "ann@example.com", "123"); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want ErrValidation on short password, got %v", err)
	}

	tok, u, err := s.SignUp(ctx, " ann@example.com ", "secret1")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if u.Email != "ann@example.com" || u.Provider != model.ProviderEmail || u.ID == uuid.Nil {
		t.Fatalf("bad user: %+v", u)
	}
	if tok.AccessToken == "" || tok.RefreshToken == "" || !tok.ExpiresAt.After(time.Now()) {
		t.Fatalf("bad tokens: %+v", tok)
	}
	if stored := users.byEmail["ann@example.com"]; len(stored.PwdHash) == 0 || len(stored.SaltAuth) != pkgcrypto.SaltLen {
		t.Fatalf("password not hashed: %+v", stored)
	}

	if _, _, err := s.SignUp(ctx, "ANN@example.com", "secret2"); !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("want ErrAlreadyExists on duplicate email, got %v", err)
	}

	users.createErr = errors.New("boom")
	if _, _, err := s.SignUp(ctx, "bob@example.com", "secret1"); err == nil {
		t.Fatalf("want propagated repo error")
	}
}

func TestAuth_SignInWithPassword_RateLimiterAndCreds(t *testing.T) {
	t.Parallel()

	salt, _ := pkgcrypto.RandBytes(pkgcrypto.SaltLen)
	u := &model.User{
		ID:       uuid.Must(uuid.NewV4()),
		Email:    "ann@example.com",
		Provider: model.ProviderEmail,
		SaltAuth: salt,
		PwdHash:  pkgcrypto.HashPassword([]byte("correct"), salt),
	}
	users := &fakeUsers{byEmail: map[string]*model.User{"ann@example.com": u}}
	lim := &fakeLimiter{allowOK: true}
	s := newAuth(t, users, lim)
	ctx := context.Background()

	lim.allowErr = errors.New("lim-err")
	if _, _, err := s.SignInWithPassword(ctx, "ann@example.com", "correct", "1.2.3.4"); err == nil {
		t.Fatalf("want limiter error propagate")
	}
	lim.allowErr = nil

	lim.allowOK = false
	if _, _, err := s.SignInWithPassword(ctx, "ann@example.com", "correct", "1.2.3.4"); !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("want ErrRateLimited, got %v", err)
	}
	lim.allowOK = true

	if _, _, err := s.SignInWithPassword(ctx, "nobody@example.com", "x", ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on missing user, got %v", err)
	}

	users.getErr = errors.New("db down")
	if _, _, err := s.SignInWithPassword(ctx, "ann@example.com", "correct", ""); err == nil || errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want repo error propagate, got %v", err)
	}
	users.getErr = nil

	lim.failBlocked = true
	if _, _, err := s.SignInWithPassword(ctx, "ann@example.com", "wrong", ""); !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("want ErrRateLimited on blocked after failure, got %v", err)
	}
	lim.failBlocked = false

	if _, _, err := s.SignInWithPassword(ctx, "ann@example.com", "wrong", ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on wrong password, got %v", err)
	}

	tok, got, err := s.SignInWithPassword(ctx, "ann@example.com", "correct", "127.0.0.1")
	if err != nil {
		t.Fatalf("SignInWithPassword: %v", err)
	}
	if tok.AccessToken == "" || got.ID != u.ID {
		t.Fatalf("bad result: %+v %+v", tok, got)
	}
	if lim.successCalls != 1 || lim.failureCalls != 3 {
		t.Fatalf("limiter calls: success=%d failure=%d", lim.successCalls, lim.failureCalls)
	}

	id, err := s.Authenticate(ctx, tok.AccessToken)
	if err != nil || id != u.ID {
		t.Fatalf("Authenticate: %v %v", id, err)
	}
}

func TestAuth_OAuthUserHasNoPassword(t *testing.T) {
	t.Parallel()

	users := &fakeUsers{byEmail: map[string]*model.User{
		"g@example.com": {ID: uuid.Must(uuid.NewV4()), Email: "g@example.com", Provider: model.ProviderGoogle},
	}}
	s := newAuth(t, users, &fakeLimiter{allowOK: true})
	if _, _, err := s.SignInWithPassword(context.Background(), "g@example.com", "", ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized for password sign-in to an oauth account, got %v", err)
	}
}

func TestAuth_RefreshAndTokenUse(t *testing.T) {
	t.Parallel()

	users := &fakeUsers{}
	s := newAuth(t, users, &fakeLimiter{})
	ctx := context.Background()

	tok, u, err := s.SignUp(ctx, "ann@example.com", "secret1")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	if _, err := s.Authenticate(ctx, tok.RefreshToken); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("refresh token must not authenticate requests, got %v", err)
	}
	if _, _, err := s.Refresh(ctx, tok.AccessToken); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("access token must not refresh, got %v", err)
	}
	if _, _, err := s.Refresh(ctx, "garbage"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on garbage, got %v", err)
	}

	next, got, err := s.Refresh(ctx, tok.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got.ID != u.ID || next.AccessToken == tok.AccessToken {
		t.Fatalf("refresh must rotate tokens for the same user")
	}

	delete(users.byEmail, "ann@example.com")
	if _, _, err := s.Refresh(ctx, next.RefreshToken); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized for a removed account, got %v", err)
	}
}

func TestAuth_ExpiredAccessToken(t *testing.T) {
	t.Parallel()

	s := newAuth(t, &fakeUsers{}, &fakeLimiter{})
	tok, _, err := s.SignUp(context.Background(), "ann@example.com", "secret1")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	s.tok.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := s.Authenticate(context.Background(), tok.AccessToken); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on expired token, got %v", err)
	}
}

func TestAuth_OAuthPKCEFlow(t *testing.T) {
	t.Parallel()

	users := &fakeUsers{}
	s := newAuth(t, users, &fakeLimiter{})
	idp := &fakeProvider{identity: model.OAuthIdentity{Provider: model.ProviderGoogle, Subject: "g-1", Email: "bob@example.com"}}
	s.RegisterProvider(model.ProviderGoogle, idp)
	ctx := context.Background()

	verifier, err := pkgcrypto.NewVerifier()
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	challenge := pkgcrypto.ChallengeS256(verifier)

	if _, err := s.AuthorizeURL(ctx, "github", "", challenge); !errors.Is(err, errs.ErrUnsupportedProvider) {
		t.Fatalf("want ErrUnsupportedProvider, got %v", err)
	}
	if _, err := s.AuthorizeURL(ctx, "google", "javascript:alert(1)", challenge); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want ErrValidation on bad redirect, got %v", err)
	}
	if _, err := s.AuthorizeURL(ctx, "google", "", ""); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want ErrValidation without challenge, got %v", err)
	}

	consent, err := s.AuthorizeURL(ctx, "google", "http://127.0.0.1:9999/cb", challenge)
	if err != nil {
		t.Fatalf("AuthorizeURL: %v", err)
	}
	cu, _ := url.Parse(consent)
	state := cu.Query().Get("state")

	if _, err := s.OAuthCallback(ctx, "forged", "c"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on forged state, got %v", err)
	}

	back, err := s.OAuthCallback(ctx, state, "provider-code")
	if err != nil {
		t.Fatalf("OAuthCallback: %v", err)
	}
	if idp.gotCode != "provider-code" {
		t.Fatalf("provider got code %q", idp.gotCode)
	}
	bu, _ := url.Parse(back)
	if bu.Host != "127.0.0.1:9999" || bu.Path != "/cb" {
		t.Fatalf("redirected to %s", back)
	}
	code := bu.Query().Get("code")
	if code == "" {
		t.Fatalf("no code in %s", back)
	}
	created := users.byEmail["bob@example.com"]
	if created == nil || created.Provider != model.ProviderGoogle || len(created.PwdHash) != 0 {
		t.Fatalf("account not created from identity: %+v", created)
	}

	if _, _, err := s.ExchangeCode(ctx, code, "wrong-verifier"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on verifier mismatch, got %v", err)
	}
	if _, _, err := s.ExchangeCode(ctx, state, verifier); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("state must not be redeemable as a code, got %v", err)
	}
	tok, u, err := s.ExchangeCode(ctx, code, verifier)
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if u.Email != "bob@example.com" || tok.AccessToken == "" {
		t.Fatalf("bad exchange result: %+v", u)
	}

	// a second sign-in reuses the account
	back, err = s.OAuthCallback(ctx, state, "again")
	if err != nil {
		t.Fatalf("OAuthCallback again: %v", err)
	}
	bu, _ = url.Parse(back)
	_, u2, err := s.ExchangeCode(ctx, bu.Query().Get("code"), verifier)
	if err != nil || u2.ID != u.ID {
		t.Fatalf("want same account, got %v %v", u2.ID, err)
	}
}

func TestAuth_RedirectAllowList(t *testing.T) {
	t.Parallel()

	s := NewAuthService(&fakeUsers{}, &fakeLimiter{}, AuthConfig{
		SignKey:      []byte("0123456789abcdef0123456789abcdef"),
		AccessTTL:    time.Hour,
		RefreshTTL:   24 * time.Hour,
		SiteURL:      "https://app.example/",
		RedirectURLs: []string{"https://staging.example/topics"},
	}, zaptest.NewLogger(t))
	s.RegisterProvider(model.ProviderGoogle, &fakeProvider{})
	ctx := context.Background()
	challenge := pkgcrypto.ChallengeS256("v")

	allowed := []string{
		"",
		"https://app.example/auth/callback",
		"https://APP.example/",
		"https://staging.example/topics",
		"https://staging.example/topics/cb",
		"http://127.0.0.1:51234/callback",
		"http://localhost:8080/auth/callback",
	}
	for _, r := range allowed {
		if _, err := s.AuthorizeURL(ctx, "google", r, challenge); err != nil {
			t.Fatalf("redirect %q: %v", r, err)
		}
	}

	rejected := []string{
		"https://evil.example/steal",
		"http://app.example/auth/callback",
		"https://app.example.evil.example/",
		"https://staging.example/topicsX",
		"https://staging.example/other",
		"https://user@app.example/",
		"https://127.0.0.1/cb",
		"javascript:alert(1)",
	}
	for _, r := range rejected {
		if _, err := s.AuthorizeURL(ctx, "google", r, challenge); !errors.Is(err, errs.ErrValidation) {
			t.Fatalf("redirect %q: want ErrValidation, got %v", r, err)
		}
	}
}

func TestAuth_OAuthCallbackProviderError(t *testing.T) {
	t.Parallel()

	s := newAuth(t, &fakeUsers{}, &fakeLimiter{})
	s.RegisterProvider("google", &fakeProvider{err: errors.New("denied")})
	ctx := context.Background()

	consent, err := s.AuthorizeURL(ctx, "google", "", pkgcrypto.ChallengeS256("v"))
	if err != nil {
		t.Fatalf("AuthorizeURL: %v", err)
	}
	cu, _ := url.Parse(consent)
	if _, err := s.OAuthCallback(ctx, cu.Query().Get("state"), "c"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
}
