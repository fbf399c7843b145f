// Package remotetest provides an in-memory remote.Client for tests.
package remotetest

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/topiclist/internal/convert"
	"github.com/and161185/topiclist/internal/errs"
	"github.com/and161185/topiclist/internal/model"
	"github.com/and161185/topiclist/internal/remote"
)

// Operation names used by FailNext, Hook and Calls.
const (
	OpTopicsList      = "topics.list"
	OpTopicsInsert    = "topics.insert"
	OpTopicsUpdate    = "topics.update"
	OpTopicsDelete    = "topics.delete"
	OpSubtopicsList   = "subtopics.list"
	OpSubtopicsInsert = "subtopics.insert"
	OpSubtopicsUpdate = "subtopics.update"
	OpSubtopicsDelete = "subtopics.delete"
	OpSignIn          = "auth.signin"
	OpSignUp          = "auth.signup"
	OpExchange        = "auth.exchange"
	OpSignOut         = "auth.signout"
)

// Backend is an in-memory table store with a fake auth surface.
// Filters are applied by comparing the textual form of column values.
type Backend struct {
	mu     sync.Mutex
	topics []convert.TopicRow
	subs   []convert.SubtopicRow
	nextID int64
	fail   map[string]error
	calls  []string

	// Hook, when set, runs before every operation outside the backend lock.
	Hook func(ctx context.Context, op string)

	auth *Auth
}

var _ remote.Client = (*Backend)(nil)

// New returns an empty Backend.
func New() *Backend {
	b := &Backend{nextID: 1, fail: map[string]error{}}
	b.auth = &Auth{b: b, users: map[string]string{}, listeners: map[int]remote.AuthListener{}}
	return b
}

func (b *Backend) Topics() remote.TopicTable       { return topicTable{b} }
func (b *Backend) Subtopics() remote.SubtopicTable { return subtopicTable{b} }
func (b *Backend) Auth() remote.Auth               { return b.auth }

// FakeAuth returns the concrete auth fake.
func (b *Backend) FakeAuth() *Auth { return b.auth }

// FailNext makes the next call of op return err.
func (b *Backend) FailNext(op string, err error) {
	b.mu.Lock()
	b.fail[op] = err
	b.mu.Unlock()
}

// Calls returns the operations executed so far, in order.
func (b *Backend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

// ResetCalls forgets recorded calls.
func (b *Backend) ResetCalls() {
	b.mu.Lock()
	b.calls = nil
	b.mu.Unlock()
}

// SeedTopic stores a topic directly and returns its id.
func (b *Backend) SeedTopic(userID uuid.UUID, title string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ca := time.Now().UTC()
	b.topics = append(b.topics, convert.TopicRow{ID: id, Title: title, CreatedAt: &ca, UserID: userID.String()})
	return id
}

// SeedSubtopic stores a subtopic directly and returns its id.
func (b *Backend) SeedSubtopic(userID uuid.UUID, s model.Subtopic) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	row := convert.FromSubtopic(s, userID)
	row.ID = id
	b.subs = append(b.subs, row)
	return id
}

// TopicRows returns a copy of the stored topics.
func (b *Backend) TopicRows() []convert.TopicRow {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]convert.TopicRow(nil), b.topics...)
}

// SubtopicRows returns a copy of the stored subtopics.
func (b *Backend) SubtopicRows() []convert.SubtopicRow {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]convert.SubtopicRow(nil), b.subs...)
}

// begin runs the hook, records op and consumes an injected failure.
func (b *Backend) begin(ctx context.Context, op string) error {
	if h := b.Hook; h != nil {
		h(ctx, op)
	}
	if err := ctx.Err(); err != nil {
		return &errs.RemoteError{Err: err}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, op)
	if err, ok := b.fail[op]; ok {
		delete(b.fail, op)
		return err
	}
	return nil
}

func needFilter(filters []remote.Filter) error {
	if len(filters) == 0 {
		return &errs.RemoteError{Message: "missing filter", Err: errs.ErrMissingFilter}
	}
	return nil
}

func match(filters []remote.Filter, field func(col string) (string, bool)) bool {
	for _, f := range filters {
		v, ok := field(f.Column)
		if !ok || v != fmt.Sprint(f.Value) {
			return false
		}
	}
	return true
}

type topicTable struct{ b *Backend }

func topicField(r convert.TopicRow) func(string) (string, bool) {
	return func(col string) (string, bool) {
		switch col {
		case convert.ColID:
			return fmt.Sprint(r.ID), true
		case convert.ColTitle:
			return r.Title, true
		case convert.ColUserID:
			return r.UserID, true
		}
		return "", false
	}
}

func (t topicTable) List(ctx context.Context, _ []string, filters ...remote.Filter) ([]convert.TopicRow, error) {
	if err := t.b.begin(ctx, OpTopicsList); err != nil {
		return nil, err
	}
	t.b.mu.Lock()
	defer t.b.mu.Unlock()
	out := []convert.TopicRow{}
	for _, r := range t.b.topics {
		if match(filters, topicField(r)) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t topicTable) Insert(ctx context.Context, rows ...convert.TopicRow) error {
	if err := t.b.begin(ctx, OpTopicsInsert); err != nil {
		return err
	}
	t.b.mu.Lock()
	defer t.b.mu.Unlock()
	for _, r := range rows {
		r.ID = t.b.nextID
		t.b.nextID++
		ca := time.Now().UTC()
		r.CreatedAt = &ca
		t.b.topics = append(t.b.topics, r)
	}
	return nil
}

func (t topicTable) Update(ctx context.Context, patch convert.TopicPatch, filters ...remote.Filter) error {
	if err := needFilter(filters); err != nil {
		return err
	}
	if err := t.b.begin(ctx, OpTopicsUpdate); err != nil {
		return err
	}
	t.b.mu.Lock()
	defer t.b.mu.Unlock()
	for i, r := range t.b.topics {
		if match(filters, topicField(r)) && patch.Title != nil {
			t.b.topics[i].Title = *patch.Title
		}
	}
	return nil
}

func (t topicTable) Delete(ctx context.Context, filters ...remote.Filter) error {
	if err := needFilter(filters); err != nil {
		return err
	}
	if err := t.b.begin(ctx, OpTopicsDelete); err != nil {
		return err
	}
	t.b.mu.Lock()
	defer t.b.mu.Unlock()
	gone := map[int64]bool{}
	kept := t.b.topics[:0]
	for _, r := range t.b.topics {
		if match(filters, topicField(r)) {
			gone[r.ID] = true
			continue
		}
		kept = append(kept, r)
	}
	t.b.topics = kept
	subs := t.b.subs[:0]
	for _, s := range t.b.subs {
		if !gone[s.TopicID] {
			subs = append(subs, s)
		}
	}
	t.b.subs = subs
	return nil
}

type subtopicTable struct{ b *Backend }

func subtopicField(r convert.SubtopicRow) func(string) (string, bool) {
	return func(col string) (string, bool) {
		switch col {
		case convert.ColID:
			return fmt.Sprint(r.ID), true
		case convert.ColTopicID:
			return fmt.Sprint(r.TopicID), true
		case convert.ColCompleted:
			return fmt.Sprint(r.Completed), true
		case convert.ColUserID:
			return r.UserID, true
		}
		return "", false
	}
}

func (t subtopicTable) List(ctx context.Context, _ []string, filters ...remote.Filter) ([]convert.SubtopicRow, error) {
	if err := t.b.begin(ctx, OpSubtopicsList); err != nil {
		return nil, err
	}
	t.b.mu.Lock()
	defer t.b.mu.Unlock()
	out := []convert.SubtopicRow{}
	for _, r := range t.b.subs {
		if match(filters, subtopicField(r)) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t subtopicTable) Insert(ctx context.Context, rows ...convert.SubtopicRow) error {
	if err := t.b.begin(ctx, OpSubtopicsInsert); err != nil {
		return err
	}
	t.b.mu.Lock()
	defer t.b.mu.Unlock()
	for _, r := range rows {
		r.ID = t.b.nextID
		t.b.nextID++
		t.b.subs = append(t.b.subs, r)
	}
	return nil
}

func (t subtopicTable) Update(ctx context.Context, patch convert.SubtopicPatch, filters ...remote.Filter) error {
	if err := needFilter(filters); err != nil {
		return err
	}
	if err := t.b.begin(ctx, OpSubtopicsUpdate); err != nil {
		return err
	}
	t.b.mu.Lock()
	defer t.b.mu.Unlock()
	for i, r := range t.b.subs {
		if !match(filters, subtopicField(r)) {
			continue
		}
		s := &t.b.subs[i]
		if patch.Title != nil {
			s.Title = *patch.Title
		}
		if patch.Completed != nil {
			s.Completed = *patch.Completed
		}
		if patch.URL != nil {
			s.URL = patch.URL
		}
		if patch.Content != nil {
			s.Content = patch.Content
		}
	}
	return nil
}

func (t subtopicTable) Delete(ctx context.Context, filters ...remote.Filter) error {
	if err := needFilter(filters); err != nil {
		return err
	}
	if err := t.b.begin(ctx, OpSubtopicsDelete); err != nil {
		return err
	}
	t.b.mu.Lock()
	defer t.b.mu.Unlock()
	kept := t.b.subs[:0]
	for _, r := range t.b.subs {
		if !match(filters, subtopicField(r)) {
			kept = append(kept, r)
		}
	}
	t.b.subs = kept
	return nil
}

// userNamespace derives stable user ids from emails.
var userNamespace = uuid.Must(uuid.FromString("0f1e2d3c-4b5a-4968-8776-a5b4c3d2e1f0"))

// UserID returns the id the fake assigns to email.
func UserID(email string) uuid.UUID { return uuid.NewV5(userNamespace, email) }

// Auth is a fake remote.Auth with password and OAuth sign-in.
// OAuth codes have the form "code:<email>".
type Auth struct {
	b *Backend

	mu        sync.Mutex
	users     map[string]string
	confirm   bool
	session   *model.Session
	listeners map[int]remote.AuthListener
	nextID    int
}

var _ remote.Auth = (*Auth)(nil)

// AddUser registers email with password.
func (a *Auth) AddUser(email, password string) {
	a.mu.Lock()
	a.users[email] = password
	a.mu.Unlock()
}

// ConfirmSignUps makes SignUp return no session, as a backend that requires
// email confirmation does.
func (a *Auth) ConfirmSignUps(on bool) {
	a.mu.Lock()
	a.confirm = on
	a.mu.Unlock()
}

// SessionFor builds the session the fake issues for email.
func SessionFor(email string) model.Session {
	return model.Session{
		AccessToken:  "access:" + email,
		RefreshToken: "refresh:" + email,
		TokenType:    "bearer",
		ExpiresAt:    time.Now().Add(time.Hour),
		User:         model.User{ID: UserID(email), Email: email, Provider: "email"},
	}
}

// Emit changes the session as the backend would on its own (e.g. token refresh
// in another tab) and notifies listeners.
func (a *Auth) Emit(event model.AuthEvent, s *model.Session) {
	a.mu.Lock()
	if s == nil {
		a.session = nil
	} else {
		cp := *s
		a.session = &cp
	}
	calls := a.pending(event, s)
	a.mu.Unlock()
	for _, c := range calls {
		c()
	}
}

func (a *Auth) signIn(email string) *model.Session {
	s := SessionFor(email)
	a.Emit(model.SignedIn, &s)
	return &s
}

func (a *Auth) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	if err := a.b.begin(ctx, OpSignIn); err != nil {
		return nil, err
	}
	a.mu.Lock()
	pw, ok := a.users[email]
	a.mu.Unlock()
	if !ok || pw != password {
		return nil, &errs.RemoteError{Status: 400, Code: "invalid_grant", Message: "Invalid login credentials"}
	}
	return a.signIn(email), nil
}

func (a *Auth) SignUp(ctx context.Context, email, password string) (*model.Session, error) {
	if err := a.b.begin(ctx, OpSignUp); err != nil {
		return nil, err
	}
	a.mu.Lock()
	_, exists := a.users[email]
	if !exists {
		a.users[email] = password
	}
	confirm := a.confirm
	a.mu.Unlock()
	if exists {
		return nil, &errs.RemoteError{Status: 422, Code: "422", Message: "User already registered"}
	}
	if confirm {
		return nil, nil
	}
	return a.signIn(email), nil
}

func (a *Auth) SignInWithOAuth(_ context.Context, provider, redirectTo string) (remote.OAuthRedirect, error) {
	if provider != "google" {
		return remote.OAuthRedirect{}, &errs.RemoteError{Message: provider, Err: errs.ErrUnsupportedProvider}
	}
	q := url.Values{"provider": {provider}, "redirect_to": {redirectTo}}
	return remote.OAuthRedirect{URL: "https://auth.example.test/authorize?" + q.Encode(), Verifier: "verifier"}, nil
}

func (a *Auth) ExchangeCodeForSession(ctx context.Context, code, verifier string) (*model.Session, error) {
	if err := a.b.begin(ctx, OpExchange); err != nil {
		return nil, err
	}
	const prefix = "code:"
	if verifier != "verifier" || len(code) <= len(prefix) || code[:len(prefix)] != prefix {
		return nil, &errs.RemoteError{Status: 400, Code: "bad_code_verifier", Message: "invalid auth code"}
	}
	return a.signIn(code[len(prefix):]), nil
}

func (a *Auth) SignOut(ctx context.Context) error {
	if err := a.b.begin(ctx, OpSignOut); err != nil {
		return err
	}
	a.mu.Lock()
	had := a.session != nil
	a.mu.Unlock()
	if had {
		a.Emit(model.SignedOut, nil)
	}
	return nil
}

func (a *Auth) Session(context.Context) (*model.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return nil, nil
	}
	cp := *a.session
	return &cp, nil
}

func (a *Auth) OnAuthStateChange(fn remote.AuthListener) func() {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn
	a.mu.Unlock()
	return func() {
		a.mu.Lock()
		delete(a.listeners, id)
		a.mu.Unlock()
	}
}

// Listeners reports how many listeners are registered.
func (a *Auth) Listeners() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.listeners)
}

func (a *Auth) pending(event model.AuthEvent, s *model.Session) []func() {
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
