// Package state owns the client-side application state: session, topic
// projection, pending input, the open modal and user notices. Every mutation
// issues one remote write and then rebuilds the projection from the backend.
package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/topiclist/internal/errs"
	"github.com/and161185/topiclist/internal/model"
	"github.com/and161185/topiclist/internal/remote"
)

var (
	// ErrSuperseded is returned by Refresh when the session changed while it ran.
	ErrSuperseded = errors.New("refresh superseded by a session change")

	// ErrNoTarget is returned when a submit needs a modal that is not open.
	ErrNoTarget = errors.New("no matching modal is open")
)

// Store is the data strategy behind the controller.
type Store interface {
	Load(ctx context.Context, userID uuid.UUID) ([]model.Topic, error)
	InsertTopic(ctx context.Context, userID uuid.UUID, title string) error
	UpdateTopicTitle(ctx context.Context, id int64, title string) error
	DeleteTopic(ctx context.Context, id int64) error
	SetSubtopicCompleted(ctx context.Context, userID uuid.UUID, id int64, completed bool) error
	InsertSubtopic(ctx context.Context, userID uuid.UUID, in model.NewSubtopic) error
}

// Controller orchestrates writes and refreshes. It is safe for concurrent use;
// no lock is held across a remote call.
type Controller struct {
	auth  remote.Auth
	store Store
	log   *zap.Logger
	now   func() time.Time

	session SessionState
	cache   TopicCache
	inputs  Inputs
	modal   ModalState
	notices Notices

	genMu  sync.Mutex
	gen    uint64
	genCtx context.Context
	cancel context.CancelFunc

	subMu       sync.Mutex
	unsubscribe func()
}

// New constructs a Controller. Call Mount before use and Close when done.
func New(auth remote.Auth, store Store, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		auth:   auth,
		store:  store,
		log:    log,
		now:    time.Now,
		genCtx: ctx,
		cancel: cancel,
	}
}

// Mount subscribes to session changes, adopts the current session and loads
// the projection for it.
func (c *Controller) Mount(ctx context.Context) error {
	c.subMu.Lock()
	if c.unsubscribe == nil {
		c.unsubscribe = c.auth.OnAuthStateChange(c.onAuth)
	}
	c.subMu.Unlock()

	s, err := c.auth.Session(ctx)
	if err != nil {
		c.fail("session", err)
		return err
	}
	if s == nil {
		c.signedOut()
		return nil
	}
	c.adopt(*s)
	return c.EnsureFresh(ctx)
}

// Close unsubscribes from session changes and cancels in-flight refreshes.
func (c *Controller) Close() {
	c.subMu.Lock()
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	c.subMu.Unlock()

	c.genMu.Lock()
	c.cancel()
	c.genMu.Unlock()
}

// --- session handling ---

func (c *Controller) onAuth(event model.AuthEvent, s *model.Session) {
	c.log.Debug("auth state change", zap.String("event", string(event)))
	if event == model.SignedOut || s == nil {
		c.signedOut()
		return
	}
	c.adopt(*s)
}

// adopt stores s; a different user invalidates everything local.
func (c *Controller) adopt(s model.Session) {
	prev, had := c.session.UserID()
	c.session.Set(s)
	if had && prev == s.User.ID {
		return
	}
	c.bump()
	c.resetLocal()
}

func (c *Controller) signedOut() {
	c.session.Clear()
	c.bump()
	c.resetLocal()
}

func (c *Controller) resetLocal() {
	c.cache.Reset()
	c.inputs.Reset()
	c.modal.Close()
}

// bump starts a new generation, cancelling refreshes of the previous one.
func (c *Controller) bump() {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	c.cancel()
	c.gen++
	c.genCtx, c.cancel = context.WithCancel(context.Background())
}

func (c *Controller) generation() (uint64, context.Context) {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	return c.gen, c.genCtx
}

// commit stores ts unless the generation or the signed-in user changed since
// the refresh started. genMu orders it against bump.
func (c *Controller) commit(gen uint64, userID uuid.UUID, ts []model.Topic, loadErr error) bool {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	if gen != c.gen {
		return false
	}
	if uid, ok := c.session.UserID(); !ok || uid != userID {
		return false
	}
	if loadErr == nil {
		c.cache.Replace(userID, ts)
	}
	return true
}

// --- refresh ---

// Refresh reloads the projection for userID. On failure the previous
// projection is kept. A result that arrives after the session changed is
// discarded and ErrSuperseded is returned.
func (c *Controller) Refresh(ctx context.Context, userID uuid.UUID) error {
	gen, genCtx := c.generation()
	rctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(genCtx, cancel)
	defer stop()

	ts, err := c.store.Load(rctx, userID)
	if !c.commit(gen, userID, ts, err) {
		c.log.Debug("refresh discarded", zap.Uint64("generation", gen), zap.String("user_id", userID.String()))
		return ErrSuperseded
	}
	if err != nil {
		c.fail("refresh", err, zap.String("user_id", userID.String()))
		return err
	}
	return nil
}

// EnsureFresh loads the projection when it was not loaded for the current user.
func (c *Controller) EnsureFresh(ctx context.Context) error {
	uid, ok := c.session.UserID()
	if !ok || c.cache.LoadedFor(uid) {
		return nil
	}
	return c.Refresh(ctx, uid)
}

// afterWrite refreshes following a successful write. Refresh failures are
// already logged and noticed; the write itself succeeded.
func (c *Controller) afterWrite(ctx context.Context, userID uuid.UUID) {
	_ = c.Refresh(ctx, userID)
}

// fail logs a remote failure and records a notice for the user.
func (c *Controller) fail(op string, err error, fields ...zap.Field) {
	c.log.Error(op+" failed", append(fields, zap.Error(err))...)
	c.notices.Add(Notice{At: c.now(), Op: op, Message: err.Error()})
}

func (c *Controller) requireUser() (uuid.UUID, error) {
	uid, ok := c.session.UserID()
	if !ok {
		return uuid.Nil, errs.ErrNoSession
	}
	return uid, nil
}

// --- topic and subtopic operations ---

// AddTopic creates a topic.
func (c *Controller) AddTopic(ctx context.Context, title string) error {
	if strings.TrimSpace(title) == "" {
		return errs.ErrEmptyTitle
	}
	uid, err := c.requireUser()
	if err != nil {
		return err
	}
	if err := c.store.InsertTopic(ctx, uid, title); err != nil {
		c.fail("add topic", err, zap.String("title", title))
		return err
	}
	c.afterWrite(ctx, uid)
	return nil
}

// DeleteTopic removes a topic and drops local state that referenced it.
func (c *Controller) DeleteTopic(ctx context.Context, id int64) error {
	uid, err := c.requireUser()
	if err != nil {
		return err
	}
	subs := map[int64]bool{}
	if t, ok := c.cache.Topic(id); ok {
		for _, s := range t.Subtopics {
			subs[s.ID] = true
		}
	}
	if err := c.store.DeleteTopic(ctx, id); err != nil {
		c.fail("delete topic", err, zap.Int64("topic_id", id))
		return err
	}
	c.inputs.ClearDraft(id)
	c.modal.CloseIf(func(m Modal) bool {
		switch m := m.(type) {
		case AddSubtopic:
			return m.TopicID == id
		case EditTopic:
			return m.TopicID == id
		case ViewContent:
			return subs[m.SubtopicID]
		}
		return false
	})
	c.afterWrite(ctx, uid)
	return nil
}

// UpdateTopic renames a topic and closes its edit modal.
func (c *Controller) UpdateTopic(ctx context.Context, id int64, title string) error {
	if strings.TrimSpace(title) == "" {
		return errs.ErrEmptyTitle
	}
	uid, err := c.requireUser()
	if err != nil {
		return err
	}
	if err := c.store.UpdateTopicTitle(ctx, id, title); err != nil {
		c.fail("update topic", err, zap.Int64("topic_id", id))
		return err
	}
	c.modal.CloseIf(func(m Modal) bool {
		e, ok := m.(EditTopic)
		return ok && e.TopicID == id
	})
	c.afterWrite(ctx, uid)
	return nil
}

// ToggleSubtopicCompletion writes the negation of currentCompleted.
func (c *Controller) ToggleSubtopicCompletion(ctx context.Context, id int64, currentCompleted bool) error {
	uid, err := c.requireUser()
	if err != nil {
		return err
	}
	if err := c.store.SetSubtopicCompleted(ctx, uid, id, !currentCompleted); err != nil {
		c.fail("toggle subtopic", err, zap.Int64("subtopic_id", id))
		return err
	}
	c.afterWrite(ctx, uid)
	return nil
}

// AddSubtopic creates an uncompleted subtopic, clears the topic's draft and
// closes its add-subtopic modal.
func (c *Controller) AddSubtopic(ctx context.Context, topicID int64, title, url, content string) error {
	if strings.TrimSpace(title) == "" {
		return errs.ErrEmptyTitle
	}
	uid, err := c.requireUser()
	if err != nil {
		return err
	}
	in := model.NewSubtopic{TopicID: topicID, Title: title, URL: strings.TrimSpace(url), Content: content}
	if err := c.store.InsertSubtopic(ctx, uid, in); err != nil {
		c.fail("add subtopic", err, zap.Int64("topic_id", topicID))
		return err
	}
	c.inputs.ClearDraft(topicID)
	c.modal.CloseIf(func(m Modal) bool {
		a, ok := m.(AddSubtopic)
		return ok && a.TopicID == topicID
	})
	c.afterWrite(ctx, uid)
	return nil
}

// --- input buffers ---

// SetNewTopicTitle updates the new-topic input.
func (c *Controller) SetNewTopicTitle(title string) { c.inputs.SetNewTopic(title) }

// SubmitNewTopic adds a topic from the new-topic input and clears it on success.
func (c *Controller) SubmitNewTopic(ctx context.Context) error {
	if err := c.AddTopic(ctx, c.inputs.NewTopic()); err != nil {
		return err
	}
	c.inputs.SetNewTopic("")
	return nil
}

// SetSubtopicDraft updates the add-subtopic input of topicID.
func (c *Controller) SetSubtopicDraft(topicID int64, d SubtopicDraft) { c.inputs.SetDraft(topicID, d) }

// SubmitSubtopic adds a subtopic from the draft of the open add-subtopic modal.
func (c *Controller) SubmitSubtopic(ctx context.Context) error {
	a, ok := c.modal.Current().(AddSubtopic)
	if !ok {
		return ErrNoTarget
	}
	d := c.inputs.Draft(a.TopicID)
	return c.AddSubtopic(ctx, a.TopicID, d.Title, d.URL, d.Content)
}

// SetEditDraft updates the title being edited, if the edit modal is open.
func (c *Controller) SetEditDraft(draft string) {
	c.modal.Update(func(m Modal) Modal {
		if e, ok := m.(EditTopic); ok {
			e.Draft = draft
			return e
		}
		return m
	})
}

// SubmitEdit saves the draft of the open edit modal.
func (c *Controller) SubmitEdit(ctx context.Context) error {
	e, ok := c.modal.Current().(EditTopic)
	if !ok {
		return ErrNoTarget
	}
	return c.UpdateTopic(ctx, e.TopicID, e.Draft)
}

// --- modal transitions (local only) ---

// OpenAddSubtopic shows the add-subtopic modal for topicID.
func (c *Controller) OpenAddSubtopic(topicID int64) error {
	if _, ok := c.cache.Topic(topicID); !ok {
		return fmt.Errorf("topic %d: %w", topicID, errs.ErrNotFound)
	}
	c.modal.Open(AddSubtopic{TopicID: topicID})
	return nil
}

// OpenViewContent shows the content of subtopicID.
func (c *Controller) OpenViewContent(subtopicID int64) error {
	if _, ok := c.cache.Subtopic(subtopicID); !ok {
		return fmt.Errorf("subtopic %d: %w", subtopicID, errs.ErrNotFound)
	}
	c.modal.Open(ViewContent{SubtopicID: subtopicID})
	return nil
}

// OpenEditTopic shows the edit modal seeded with the topic's current title.
func (c *Controller) OpenEditTopic(topicID int64) error {
	t, ok := c.cache.Topic(topicID)
	if !ok {
		return fmt.Errorf("topic %d: %w", topicID, errs.ErrNotFound)
	}
	c.modal.Open(EditTopic{TopicID: topicID, Draft: t.Title})
	return nil
}

// CloseModal hides the open modal.
func (c *Controller) CloseModal() { c.modal.Close() }

// --- auth pass-throughs ---

// SignIn signs in with email and password and loads the projection.
func (c *Controller) SignIn(ctx context.Context, email, password string) error {
	s, err := c.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		c.fail("sign in", err)
		return err
	}
	return c.established(ctx, s)
}

// SignUp registers an account. signedIn is false when the backend requires
// email confirmation before issuing a session.
func (c *Controller) SignUp(ctx context.Context, email, password string) (signedIn bool, err error) {
	s, err := c.auth.SignUp(ctx, email, password)
	if err != nil {
		c.fail("sign up", err)
		return false, err
	}
	if s == nil {
		return false, nil
	}
	return true, c.established(ctx, s)
}

// SignInWithOAuth prepares the provider redirect.
func (c *Controller) SignInWithOAuth(ctx context.Context, provider, redirectTo string) (remote.OAuthRedirect, error) {
	r, err := c.auth.SignInWithOAuth(ctx, provider, redirectTo)
	if err != nil {
		c.fail("oauth", err, zap.String("provider", provider))
	}
	return r, err
}

// CompleteOAuth exchanges the code returned to the redirect URL for a session.
func (c *Controller) CompleteOAuth(ctx context.Context, code, verifier string) error {
	s, err := c.auth.ExchangeCodeForSession(ctx, code, verifier)
	if err != nil {
		c.fail("oauth exchange", err)
		return err
	}
	return c.established(ctx, s)
}

// SignOut ends the session and resets local state.
func (c *Controller) SignOut(ctx context.Context) error {
	if err := c.auth.SignOut(ctx); err != nil {
		c.fail("sign out", err)
		return err
	}
	c.signedOut()
	return nil
}

func (c *Controller) established(ctx context.Context, s *model.Session) error {
	c.adopt(*s)
	err := c.EnsureFresh(ctx)
	if errors.Is(err, ErrSuperseded) {
		return nil
	}
	return err
}

// --- reads ---

// Snapshot is a point-in-time copy of the controller state. Units are read
// one after another, not atomically as a whole.
type Snapshot struct {
	Session  *model.Session
	Topics   []model.Topic
	NewTopic string
	Drafts   map[int64]SubtopicDraft
	Modal    Modal
	Notices  []Notice
}

// Snapshot returns the current state; notices stay pending.
func (c *Controller) Snapshot() Snapshot {
	return Snapshot{
		Session:  c.session.Current(),
		Topics:   c.cache.Snapshot(),
		NewTopic: c.inputs.NewTopic(),
		Drafts:   c.inputs.Drafts(),
		Modal:    c.modal.Current(),
		Notices:  c.notices.List(),
	}
}

// Session returns the current session or nil.
func (c *Controller) Session() *model.Session { return c.session.Current() }

// Topics returns the current projection.
func (c *Controller) Topics() []model.Topic { return c.cache.Snapshot() }

// Modal returns the open modal.
func (c *Controller) Modal() Modal { return c.modal.Current() }

// Draft returns the add-subtopic input of topicID.
func (c *Controller) Draft(topicID int64) SubtopicDraft { return c.inputs.Draft(topicID) }

// TakeNotices returns and clears pending notices.
func (c *Controller) TakeNotices() []Notice { return c.notices.Drain() }

// Notify records an informational notice for the user.
func (c *Controller) Notify(op, message string) {
	c.notices.Add(Notice{At: c.now(), Op: op, Message: message})
}
