// Package remote defines the table-scoped CRUD and authentication surface of the backend.
package remote

import (
	"context"

	"github.com/and161185/topiclist/internal/convert"
	"github.com/and161185/topiclist/internal/model"
)

// Filter is an equality predicate on a single column.
type Filter struct {
	Column string
	Value  any
}

// Eq builds an equality filter.
func Eq(column string, value any) Filter { return Filter{Column: column, Value: value} }

// Table exposes CRUD primitives over one logical table.
// R is the wire row type, P the partial-update payload.
// Every failure is returned as *errs.RemoteError.
type Table[R any, P any] interface {
	// List returns rows matching all filters; nil columns selects every column.
	List(ctx context.Context, columns []string, filters ...Filter) ([]R, error)
	// Insert creates rows.
	Insert(ctx context.Context, rows ...R) error
	// Update applies patch to rows matching all filters; at least one filter is required.
	Update(ctx context.Context, patch P, filters ...Filter) error
	// Delete removes rows matching all filters; at least one filter is required.
	Delete(ctx context.Context, filters ...Filter) error
}

// TopicTable is the topics table.
type TopicTable = Table[convert.TopicRow, convert.TopicPatch]

// SubtopicTable is the subtopics table.
type SubtopicTable = Table[convert.SubtopicRow, convert.SubtopicPatch]

// AuthListener receives session transitions. session is nil after SignedOut.
type AuthListener func(event model.AuthEvent, session *model.Session)

// OAuthRedirect is the first leg of a PKCE OAuth sign-in.
type OAuthRedirect struct {
	URL      string // where the user agent must be sent
	Verifier string // PKCE code verifier to present with the returned code
}

// Auth is the authentication surface of the backend.
type Auth interface {
	SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error)
	SignUp(ctx context.Context, email, password string) (*model.Session, error)
	// SignInWithOAuth prepares a provider redirect; the session is obtained later
	// through ExchangeCodeForSession with the code delivered to redirectTo.
	SignInWithOAuth(ctx context.Context, provider, redirectTo string) (OAuthRedirect, error)
	ExchangeCodeForSession(ctx context.Context, code, verifier string) (*model.Session, error)
	SignOut(ctx context.Context) error
	// Session returns the current session or nil, refreshing an expired access token.
	Session(ctx context.Context) (*model.Session, error)
	// OnAuthStateChange registers fn and returns a function that unregisters it.
	OnAuthStateChange(fn AuthListener) (unsubscribe func())
}

// Client is the abstraction over the backend's CRUD and auth operations.
type Client interface {
	Topics() TopicTable
	Subtopics() SubtopicTable
	Auth() Auth
}
