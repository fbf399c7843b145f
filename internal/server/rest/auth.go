package restserver

import (
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/and161185/topiclist/internal/convert"
	"github.com/and161185/topiclist/internal/errs"
	"github.com/and161185/topiclist/internal/model"
)

const (
	grantPassword     = "password"
	grantRefreshToken = "refresh_token"
	grantPKCE         = "pkce"
)

func (s *Server) writeSession(w http.ResponseWriter, tok model.Tokens, u model.User) {
	writeJSON(w, http.StatusOK, convert.FromTokens(tok, u, s.now()))
}

// signUp handles POST /auth/v1/signup. Accounts are confirmed immediately so
// the response always carries a session.
func (s *Server) signUp(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		s.failAuth(w, r, err)
		return
	}
	var req convert.CredentialsJSON
	if err := decodeStrict(body, &req); err != nil {
		s.failAuth(w, r, err)
		return
	}
	tok, u, err := s.auth.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		s.failAuth(w, r, err)
		return
	}
	s.writeSession(w, tok, u)
}

// token handles POST /auth/v1/token?grant_type=password|refresh_token|pkce.
func (s *Server) token(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		s.failAuth(w, r, err)
		return
	}

	var (
		tok model.Tokens
		u   model.User
	)
	switch grant := r.URL.Query().Get("grant_type"); grant {
	case grantPassword:
		var req convert.CredentialsJSON
		if err = decodeStrict(body, &req); err == nil {
			tok, u, err = s.auth.SignInWithPassword(r.Context(), strings.TrimSpace(req.Email), req.Password, clientIP(r))
		}
	case grantRefreshToken:
		var req convert.RefreshJSON
		if err = decodeStrict(body, &req); err == nil {
			tok, u, err = s.auth.Refresh(r.Context(), req.RefreshToken)
		}
	case grantPKCE:
		var req convert.PKCEJSON
		if err = decodeStrict(body, &req); err == nil {
			tok, u, err = s.auth.ExchangeCode(r.Context(), req.AuthCode, req.CodeVerifier)
		}
	default:
		writeAuthError(w, http.StatusBadRequest, "unsupported_grant_type", fmt.Sprintf("unsupported grant_type %q", grant))
		return
	}
	if err != nil {
		s.failAuth(w, r, err)
		return
	}
	s.writeSession(w, tok, u)
}

// authorize handles GET /auth/v1/authorize and redirects to the provider.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if m := q.Get("code_challenge_method"); m != "" && !strings.EqualFold(m, "s256") {
		writeAuthError(w, http.StatusBadRequest, "validation_failed", "only s256 code challenges are supported")
		return
	}
	target, err := s.auth.AuthorizeURL(r.Context(), q.Get("provider"), q.Get("redirect_to"), q.Get("code_challenge"))
	if err != nil {
		s.failAuth(w, r, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// callback handles the provider redirect and forwards the user agent to the
// original redirect_to with an authorization code.
func (s *Server) callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		s.log.Info("oauth provider returned an error", zap.String("error", e))
		writeAuthError(w, http.StatusUnauthorized, e, q.Get("error_description"))
		return
	}
	target, err := s.auth.OAuthCallback(r.Context(), q.Get("state"), q.Get("code"))
	if err != nil {
		s.failAuth(w, r, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// logout handles POST /auth/v1/logout. Tokens are stateless, so there is
// nothing to revoke server-side.
func (s *Server) logout(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// user handles GET /auth/v1/user.
func (s *Server) user(w http.ResponseWriter, r *http.Request) {
	uid, ok := UserIDFromCtx(r.Context())
	if !ok {
		s.failAuth(w, r, errs.ErrUnauthorized)
		return
	}
	u, err := s.auth.User(r.Context(), uid)
	if err != nil {
		s.failAuth(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.FromUser(u))
}
