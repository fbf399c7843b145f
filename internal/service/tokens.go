package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/topiclist/internal/errs"
)

// Token uses. A token is only accepted where its use matches.
const (
	UseAccess     = "access"
	UseRefresh    = "refresh"
	UseAuthCode   = "auth_code"
	UseOAuthState = "oauth_state"
)

// Claims are the JWT claims of every token the backend issues.
type Claims struct {
	jwt.RegisteredClaims
	Email      string `json:"email,omitempty"`
	Use        string `json:"use"`
	Challenge  string `json:"code_challenge,omitempty"`
	RedirectTo string `json:"redirect_to,omitempty"`
	Provider   string `json:"provider,omitempty"`
}

const leeway = 30 * time.Second

// signer issues and parses HS256 tokens.
type signer struct {
	key []byte
	now func() time.Time
}

func (s signer) sign(c Claims, ttl time.Duration) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(ttl)
	c.IssuedAt = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(exp)
	if c.ID == "" {
		id, err := uuid.NewV4()
		if err != nil {
			return "", time.Time{}, err
		}
		c.ID = id.String()
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.key)
	return signed, exp, err
}

// parse verifies tok and checks that it was issued for use.
func (s signer) parse(tok, use string) (*Claims, error) {
	var c Claims
	_, err := jwt.ParseWithClaims(tok, &c, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.key, nil
	}, jwt.WithLeeway(leeway), jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrUnauthorized, err)
	}
	if c.Use != use {
		return nil, fmt.Errorf("%w: token use %q, want %q", errs.ErrUnauthorized, c.Use, use)
	}
	return &c, nil
}

func (c *Claims) userID() (uuid.UUID, error) {
	id, err := uuid.FromString(c.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad subject", errs.ErrUnauthorized)
	}
	return id, nil
}

func jwtSubject(id uuid.UUID) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{Subject: id.String()}
}
