package convert

import (
	"fmt"
	"time"

	model "github.com/and161185/topiclist/internal/model"
	u "github.com/gofrs/uuid/v5"
)

// UserJSON is the user object embedded in auth responses.
type UserJSON struct {
	ID          string            `json:"id"`
	Email       string            `json:"email"`
	CreatedAt   *time.Time        `json:"created_at,omitempty"`
	AppMetadata map[string]string `json:"app_metadata,omitempty"`
}

// SessionJSON is the token response of the auth endpoints.
type SessionJSON struct {
	AccessToken  string   `json:"access_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int64    `json:"expires_in"`
	ExpiresAt    int64    `json:"expires_at"`
	RefreshToken string   `json:"refresh_token"`
	User         UserJSON `json:"user"`
}

// CredentialsJSON is the body of password sign-in and sign-up.
type CredentialsJSON struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshJSON is the body of the refresh_token grant.
type RefreshJSON struct {
	RefreshToken string `json:"refresh_token"`
}

// PKCEJSON is the body of the pkce grant.
type PKCEJSON struct {
	AuthCode     string `json:"auth_code"`
	CodeVerifier string `json:"code_verifier"`
}

// AuthErrorJSON covers both error shapes emitted by auth endpoints.
type AuthErrorJSON struct {
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
	Code             any    `json:"code,omitempty"`
	Msg              string `json:"msg,omitempty"`
}

// RestErrorJSON is the error body of table endpoints.
type RestErrorJSON struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

// FromUser converts a domain user to its wire form (credentials are never sent).
func FromUser(usr model.User) UserJSON {
	j := UserJSON{ID: usr.ID.String(), Email: usr.Email}
	if !usr.CreatedAt.IsZero() {
		ca := usr.CreatedAt
		j.CreatedAt = &ca
	}
	if usr.Provider != "" {
		j.AppMetadata = map[string]string{"provider": usr.Provider}
	}
	return j
}

// ToUser converts a wire user to the domain type.
func ToUser(j UserJSON) (model.User, error) {
	id, err := u.FromString(j.ID)
	if err != nil {
		return model.User{}, fmt.Errorf("invalid user id: %w", err)
	}
	usr := model.User{ID: id, Email: j.Email, Provider: j.AppMetadata["provider"]}
	if j.CreatedAt != nil {
		usr.CreatedAt = *j.CreatedAt
	}
	return usr, nil
}

// FromTokens builds the session response for a user and its freshly issued tokens.
func FromTokens(tok model.Tokens, usr model.User, now time.Time) SessionJSON {
	return SessionJSON{
		AccessToken:  tok.AccessToken,
		TokenType:    "bearer",
		ExpiresIn:    int64(tok.ExpiresAt.Sub(now).Seconds()),
		ExpiresAt:    tok.ExpiresAt.Unix(),
		RefreshToken: tok.RefreshToken,
		User:         FromUser(usr),
	}
}

// ToSession converts a token response to a domain session.
func ToSession(j SessionJSON, now time.Time) (model.Session, error) {
	if j.AccessToken == "" {
		return model.Session{}, fmt.Errorf("missing access_token")
	}
	usr, err := ToUser(j.User)
	if err != nil {
		return model.Session{}, err
	}
	s := model.Session{
		AccessToken:  j.AccessToken,
		RefreshToken: j.RefreshToken,
		TokenType:    j.TokenType,
		User:         usr,
	}
	switch {
	case j.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(j.ExpiresAt, 0)
	case j.ExpiresIn > 0:
		s.ExpiresAt = now.Add(time.Duration(j.ExpiresIn) * time.Second)
	}
	return s, nil
}

// FromSession converts a domain session back to its wire form, used for persistence.
func FromSession(s model.Session, now time.Time) SessionJSON {
	j := SessionJSON{
		AccessToken:  s.AccessToken,
		TokenType:    s.TokenType,
		RefreshToken: s.RefreshToken,
		User:         FromUser(s.User),
	}
	if !s.ExpiresAt.IsZero() {
		j.ExpiresAt = s.ExpiresAt.Unix()
		j.ExpiresIn = int64(s.ExpiresAt.Sub(now).Seconds())
	}
	return j
}

// Message returns the most descriptive text present in an auth error body.
func (e AuthErrorJSON) Message() string {
	switch {
	case e.ErrorDescription != "":
		return e.ErrorDescription
	case e.Msg != "":
		return e.Msg
	default:
		return e.Error
	}
}

// CodeString returns the error code as text regardless of its JSON type.
func (e AuthErrorJSON) CodeString() string {
	switch c := e.Code.(type) {
	case nil:
		return e.Error
	case string:
		return c
	case float64:
		return fmt.Sprintf("%d", int64(c))
	default:
		return fmt.Sprint(c)
	}
}
