// Package model defines domain entities shared by the client, services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Topic is a top-level checklist container owned by a user.
type Topic struct {
	ID        int64     // server-assigned
	Title     string    // never empty after trimming
	CreatedAt time.Time // server-assigned
	UserID    uuid.UUID // owner

	// Subtopics is derived client-side by aggregation and never persisted.
	Subtopics []Subtopic
}

// Subtopic is a checklist item belonging to exactly one Topic.
type Subtopic struct {
	ID        int64 // server-assigned
	Title     string
	Completed bool
	TopicID   int64  // FK -> Topic.ID
	Content   string // optional, "" when absent
	URL       string // optional, "" when absent
}

// HasContent reports whether the subtopic carries free-text content worth showing.
func (s Subtopic) HasContent() bool { return s.Content != "" }

// NewSubtopic is an insert intent; the subtopic always starts uncompleted.
type NewSubtopic struct {
	TopicID int64
	Title   string
	URL     string
	Content string
}

// User represents an account known to the backend.
type User struct {
	ID        uuid.UUID
	Email     string
	Provider  string // "email" or an OAuth provider name
	PwdHash   []byte // Argon2id(password, SaltAuth); empty for OAuth-only accounts
	SaltAuth  []byte
	CreatedAt time.Time
}

// Account providers.
const (
	ProviderEmail  = "email"
	ProviderGoogle = "google"
)

// OAuthIdentity is the account identity asserted by an OAuth provider.
type OAuthIdentity struct {
	Provider string
	Subject  string // provider-scoped user id
	Email    string // verified email
}

// Tokens collects issued access/refresh tokens.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time // access token expiry
}

// Session is the authenticated-user context required for all data operations.
type Session struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresAt    time.Time
	User         User
}

// Expired reports whether the access token is past its expiry (with leeway).
func (s Session) Expired(now time.Time, leeway time.Duration) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(leeway).Before(s.ExpiresAt)
}

// AuthEvent names a session transition observed by the auth client.
type AuthEvent string

const (
	SignedIn       AuthEvent = "SIGNED_IN"
	SignedOut      AuthEvent = "SIGNED_OUT"
	TokenRefreshed AuthEvent = "TOKEN_REFRESHED"
)
