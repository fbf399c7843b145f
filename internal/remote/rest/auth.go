package rest

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/topiclist/internal/convert"
	"github.com/and161185/topiclist/internal/crypto"
	"github.com/and161185/topiclist/internal/errs"
	"github.com/and161185/topiclist/internal/model"
	"github.com/and161185/topiclist/internal/remote"
)

const (
	authPrefix = "/auth/v1/"

	// refreshLeeway refreshes the access token slightly before it expires.
	refreshLeeway = 10 * time.Second
)

// authClient implements remote.Auth against the GoTrue-style endpoints.
type authClient struct {
	c     *Client
	store SessionStore

	mu        sync.Mutex
	loaded    bool
	session   *model.Session
	listeners map[int]remote.AuthListener
	nextID    int
}

var _ remote.Auth = (*authClient)(nil)

func (a *authClient) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	var sj convert.SessionJSON
	err := a.c.do(ctx, request{
		method: http.MethodPost,
		path:   authPrefix + "token",
		query:  url.Values{"grant_type": {"password"}},
		body:   convert.CredentialsJSON{Email: strings.TrimSpace(email), Password: password},
		bearer: a.c.anonKey,
	}, &sj)
	if err != nil {
		return nil, err
	}
	return a.establish(sj, model.SignedIn)
}

// SignUp registers an account. When the backend requires email confirmation no
// session is issued and SignUp returns (nil, nil).
func (a *authClient) SignUp(ctx context.Context, email, password string) (*model.Session, error) {
	var sj convert.SessionJSON
	err := a.c.do(ctx, request{
		method: http.MethodPost,
		path:   authPrefix + "signup",
		body:   convert.CredentialsJSON{Email: strings.TrimSpace(email), Password: password},
		bearer: a.c.anonKey,
	}, &sj)
	if err != nil {
		return nil, err
	}
	if sj.AccessToken == "" {
		return nil, nil
	}
	return a.establish(sj, model.SignedIn)
}

func (a *authClient) SignInWithOAuth(_ context.Context, provider, redirectTo string) (remote.OAuthRedirect, error) {
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return remote.OAuthRedirect{}, &errs.RemoteError{Message: "empty oauth provider", Err: errs.ErrUnsupportedProvider}
	}
	verifier, err := crypto.NewVerifier()
	if err != nil {
		return remote.OAuthRedirect{}, &errs.RemoteError{Message: "pkce verifier", Err: err}
	}
	q := url.Values{
		"provider":              {provider},
		"code_challenge":        {crypto.ChallengeS256(verifier)},
		"code_challenge_method": {"s256"},
	}
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	return remote.OAuthRedirect{URL: a.c.endpoint(authPrefix+"authorize", q), Verifier: verifier}, nil
}

func (a *authClient) ExchangeCodeForSession(ctx context.Context, code, verifier string) (*model.Session, error) {
	if code == "" || verifier == "" {
		return nil, &errs.RemoteError{Message: "auth code and verifier are required", Err: errs.ErrValidation}
	}
	var sj convert.SessionJSON
	err := a.c.do(ctx, request{
		method: http.MethodPost,
		path:   authPrefix + "token",
		query:  url.Values{"grant_type": {"pkce"}},
		body:   convert.PKCEJSON{AuthCode: code, CodeVerifier: verifier},
		bearer: a.c.anonKey,
	}, &sj)
	if err != nil {
		return nil, err
	}
	return a.establish(sj, model.SignedIn)
}

// SignOut revokes the session remotely and forgets it locally. A transport or
// server failure keeps the local session; a session the backend no longer knows
// is dropped anyway.
func (a *authClient) SignOut(ctx context.Context) error {
	cur, err := a.current()
	if err != nil {
		return err
	}
	if cur == nil {
		return nil
	}

	err = a.c.do(ctx, request{
		method: http.MethodPost,
		path:   authPrefix + "logout",
		bearer: cur.AccessToken,
	}, nil)
	if err != nil && !errors.Is(err, errs.ErrUnauthorized) && !errors.Is(err, errs.ErrNotFound) {
		return err
	}
	return a.drop()
}

func (a *authClient) Session(ctx context.Context) (*model.Session, error) {
	cur, err := a.current()
	if err != nil || cur == nil {
		return nil, err
	}
	if !cur.Expired(a.c.now(), refreshLeeway) {
		return cur, nil
	}
	if cur.RefreshToken == "" {
		return nil, a.drop()
	}
	return a.refresh(ctx, cur.RefreshToken)
}

func (a *authClient) OnAuthStateChange(fn remote.AuthListener) func() {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.listeners, id)
			a.mu.Unlock()
		})
	}
}

// bearer returns the token for data requests: the session access token when
// signed in, otherwise the anon key.
func (a *authClient) bearer(ctx context.Context) (string, error) {
	s, err := a.Session(ctx)
	if err != nil {
		return "", err
	}
	if s == nil {
		return a.c.anonKey, nil
	}
	return s.AccessToken, nil
}

func (a *authClient) refresh(ctx context.Context, refreshToken string) (*model.Session, error) {
	var sj convert.SessionJSON
	err := a.c.do(ctx, request{
		method: http.MethodPost,
		path:   authPrefix + "token",
		query:  url.Values{"grant_type": {"refresh_token"}},
		body:   convert.RefreshJSON{RefreshToken: refreshToken},
		bearer: a.c.anonKey,
	}, &sj)
	if err != nil {
		var re *errs.RemoteError
		if errors.As(err, &re) && re.Status >= 400 && re.Status < 500 {
			// refresh token rejected: the session is gone
			if derr := a.drop(); derr != nil {
				a.c.log.Warn("clear session", zap.Error(derr))
			}
		}
		return nil, err
	}
	return a.establish(sj, model.TokenRefreshed)
}

// current returns the cached session, loading it from the store once.
func (a *authClient) current() (*model.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.loaded {
		s, err := a.store.Load()
		if err != nil {
			return nil, &errs.RemoteError{Message: "load session", Err: err}
		}
		a.session = s
		a.loaded = true
	}
	if a.session == nil {
		return nil, nil
	}
	cp := *a.session
	return &cp, nil
}

// establish converts, persists and announces a freshly issued session.
func (a *authClient) establish(sj convert.SessionJSON, event model.AuthEvent) (*model.Session, error) {
	s, err := convert.ToSession(sj, a.c.now())
	if err != nil {
		return nil, &errs.RemoteError{Message: "bad session response", Err: err}
	}
	if err := a.store.Save(s); err != nil {
		return nil, &errs.RemoteError{Message: "save session", Err: err}
	}

	a.mu.Lock()
	a.session = &s
	a.loaded = true
	n := a.pending(event, &s)
	a.mu.Unlock()

	a.notify(n)
	out := s
	return &out, nil
}

// drop clears the local session and announces SignedOut if there was one.
func (a *authClient) drop() error {
	if err := a.store.Clear(); err != nil {
		return &errs.RemoteError{Message: "clear session", Err: err}
	}

	a.mu.Lock()
	had := a.session != nil
	a.session = nil
	a.loaded = true
	var n []func()
	if had {
		n = a.pending(model.SignedOut, nil)
	}
	a.mu.Unlock()

	a.notify(n)
	return nil
}

// pending snapshots listener calls; callers hold a.mu.
func (a *authClient) pending(event model.AuthEvent, s *model.Session) []func() {
	calls := make([]func(), 0, len(a.listeners))
	for _, fn := range a.listeners {
		fn := fn
		var cp *model.Session
		if s != nil {
			v := *s
			cp = &v
		}
		calls = append(calls, func() { fn(event, cp) })
	}
	return calls
}

func (a *authClient) notify(calls []func()) {
	for _, call := range calls {
		call()
	}
}
