package ui

import (
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/topiclist/internal/errs"
	"github.com/and161185/topiclist/internal/remote"
	"github.com/and161185/topiclist/internal/search"
	"github.com/and161185/topiclist/internal/state"
	"github.com/and161185/topiclist/internal/topics"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	cookieName         = "topiclist_ui"
	idleTTL            = 12 * time.Hour
	defaultMaxSessions = 1000
)

// ServerConfig configures the web UI.
type ServerConfig struct {
	PublicURL     string // externally visible base URL, used for OAuth redirects
	CookieSecure  bool
	OAuthProvider string // provider offered on the sign-in page; empty hides the button
	MaxSessions   int    // live browser sessions kept; the least recently seen is evicted
}

// ClientFactory returns a fresh backend client with its own session storage.
type ClientFactory func() (remote.Client, error)

// browser is the state of one browser session.
type browser struct {
	ctl      *state.Controller
	mu       sync.Mutex
	verifier string
	seen     time.Time
}

// Server serves the HTML UI. Every browser session (cookie) gets its own
// backend client and controller.
type Server struct {
	cfg       ServerConfig
	newClient ClientFactory
	log       *zap.Logger
	tmpl      *template.Template
	now       func() time.Time

	mu       sync.Mutex
	browsers map[string]*browser
}

// NewServer parses the embedded templates and returns a Server.
func NewServer(cfg ServerConfig, newClient ClientFactory, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"truncate": func(s string) string { return Truncate(s, TitleWidth) },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = defaultMaxSessions
	}
	return &Server{
		cfg:       cfg,
		newClient: newClient,
		log:       log,
		tmpl:      tmpl,
		now:       time.Now,
		browsers:  map[string]*browser{},
	}, nil
}

// Handler returns the UI routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.with(s.index))
	mux.HandleFunc("GET /search", s.with(s.find))

	// only the sign-in entry points start a browser session
	mux.HandleFunc("POST /auth/signin", s.start(s.signIn))
	mux.HandleFunc("POST /auth/signup", s.start(s.signUp))
	mux.HandleFunc("GET /auth/oauth", s.start(s.oauth))
	mux.HandleFunc("GET /auth/callback", s.with(s.callback))
	mux.HandleFunc("POST /auth/signout", s.with(s.signOut))

	mux.HandleFunc("POST /topics", s.with(s.addTopic))
	mux.HandleFunc("POST /topics/{id}/delete", s.with(s.deleteTopic))
	mux.HandleFunc("GET /topics/{id}/edit", s.with(s.openEdit))
	mux.HandleFunc("POST /topics/{id}/edit", s.with(s.submitEdit))
	mux.HandleFunc("GET /topics/{id}/subtopics/new", s.with(s.openAddSubtopic))
	mux.HandleFunc("POST /topics/{id}/subtopics", s.with(s.addSubtopic))
	mux.HandleFunc("POST /subtopics/{id}/toggle", s.with(s.toggle))
	mux.HandleFunc("GET /subtopics/{id}/content", s.with(s.viewContent))
	mux.HandleFunc("GET /modal/close", s.with(s.closeModal))
	return mux
}

// Close releases every browser session.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, b := range s.browsers {
		b.ctl.Close()
		delete(s.browsers, id)
	}
}

type handler func(w http.ResponseWriter, r *http.Request, b *browser)

// with resolves the browser session of r. Requests without one get the
// signed-out page (GET /) or are sent back to it.
func (s *Server) with(h handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b := s.lookup(r)
		if b == nil {
			if r.Method == http.MethodGet && r.URL.Path == "/" {
				s.renderPage(w, page{View: BuildView(state.Snapshot{Modal: state.Closed{}})})
				return
			}
			back(w, r)
			return
		}
		h(w, r, b)
	}
}

// start is like with but creates a browser session when r has none.
func (s *Server) start(h handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b := s.lookup(r)
		if b == nil {
			var err error
			if b, err = s.create(w, r); err != nil {
				s.log.Error("ui session", zap.Error(err))
				http.Error(w, "backend unavailable", http.StatusBadGateway)
				return
			}
		}
		h(w, r, b)
	}
}

func (s *Server) lookup(r *http.Request) *browser {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.browsers[c.Value]
	if !ok {
		return nil
	}
	b.seen = s.now()
	return b
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) (*browser, error) {
	now := s.now()
	client, err := s.newClient()
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	ctl := state.New(client.Auth(), topics.NewRepository(client), s.log.With(zap.String("ui_session", id.String())))
	if err := ctl.Mount(r.Context()); err != nil {
		s.log.Warn("mount", zap.Error(err))
	}
	b := &browser{ctl: ctl, seen: now}

	s.mu.Lock()
	s.sweepLocked(now)
	for len(s.browsers) >= s.cfg.MaxSessions {
		s.evictOldestLocked()
	}
	s.browsers[id.String()] = b
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    id.String(),
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return b, nil
}

// sweepLocked drops browser sessions idle for longer than idleTTL.
func (s *Server) sweepLocked(now time.Time) {
	for id, b := range s.browsers {
		if now.Sub(b.seen) > idleTTL {
			b.ctl.Close()
			delete(s.browsers, id)
		}
	}
}

func (s *Server) evictOldestLocked() {
	var (
		oldestID string
		oldest   *browser
	)
	for id, b := range s.browsers {
		if oldest == nil || b.seen.Before(oldest.seen) {
			oldestID, oldest = id, b
		}
	}
	if oldest != nil {
		oldest.ctl.Close()
		delete(s.browsers, oldestID)
	}
}

// page is the data passed to the index template.
type page struct {
	View
	OAuthProvider string
	Query         string
	Hits          []search.Hit
	Searched      bool
	SearchError   string
}

func (s *Server) index(w http.ResponseWriter, r *http.Request, b *browser) {
	s.render(w, r, b, page{})
}

func (s *Server) find(w http.ResponseWriter, r *http.Request, b *browser) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	p := page{Query: q, Searched: q != ""}
	if q != "" {
		_ = b.ctl.EnsureFresh(r.Context())
		idx, err := search.Build(b.ctl.Topics())
		if err != nil {
			s.log.Error("build search index", zap.Error(err))
			http.Error(w, "search unavailable", http.StatusInternalServerError)
			return
		}
		defer idx.Close()
		hits, err := idx.Search(q, 50)
		if err != nil {
			// malformed query syntax is the usual cause
			s.log.Debug("search", zap.String("q", q), zap.Error(err))
			p.SearchError = err.Error()
		}
		p.Hits = hits
	}
	s.render(w, r, b, p)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, b *browser, p page) {
	if err := b.ctl.EnsureFresh(r.Context()); err != nil && !errors.Is(err, state.ErrSuperseded) {
		s.log.Debug("ensure fresh", zap.Error(err))
	}
	snap := b.ctl.Snapshot()
	b.ctl.TakeNotices()

	p.View = BuildView(snap)
	s.renderPage(w, p)
}

func (s *Server) renderPage(w http.ResponseWriter, p page) {
	p.OAuthProvider = s.cfg.OAuthProvider
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, "index.html", p); err != nil {
		s.log.Error("render", zap.Error(err))
	}
}

func back(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// ignore reports errors that need no handling beyond the notice the
// controller already recorded.
func (s *Server) ignore(op string, err error) {
	switch {
	case err == nil, errors.Is(err, errs.ErrEmptyTitle), errors.Is(err, state.ErrSuperseded):
	default:
		s.log.Debug(op, zap.Error(err))
	}
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request, b *browser) {
	s.ignore("sign in", b.ctl.SignIn(r.Context(), r.FormValue("email"), r.FormValue("password")))
	back(w, r)
}

func (s *Server) signUp(w http.ResponseWriter, r *http.Request, b *browser) {
	ok, err := b.ctl.SignUp(r.Context(), r.FormValue("email"), r.FormValue("password"))
	s.ignore("sign up", err)
	if err == nil && !ok {
		s.log.Info("sign up pending confirmation")
		b.ctl.Notify("sign up", "Check your email to confirm the account, then sign in.")
	}
	back(w, r)
}

func (s *Server) oauth(w http.ResponseWriter, r *http.Request, b *browser) {
	provider := r.URL.Query().Get("provider")
	if provider == "" {
		provider = s.cfg.OAuthProvider
	}
	redir, err := b.ctl.SignInWithOAuth(r.Context(), provider, s.cfg.PublicURL+"/auth/callback")
	if err != nil {
		back(w, r)
		return
	}
	b.mu.Lock()
	b.verifier = redir.Verifier
	b.mu.Unlock()
	http.Redirect(w, r, redir.URL, http.StatusFound)
}

func (s *Server) callback(w http.ResponseWriter, r *http.Request, b *browser) {
	b.mu.Lock()
	verifier := b.verifier
	b.verifier = ""
	b.mu.Unlock()

	code := r.URL.Query().Get("code")
	if code == "" || verifier == "" {
		s.log.Warn("oauth callback without code or pending sign-in",
			zap.String("error", r.URL.Query().Get("error_description")))
		back(w, r)
		return
	}
	s.ignore("oauth exchange", b.ctl.CompleteOAuth(r.Context(), code, verifier))
	back(w, r)
}

func (s *Server) signOut(w http.ResponseWriter, r *http.Request, b *browser) {
	s.ignore("sign out", b.ctl.SignOut(r.Context()))
	back(w, r)
}

func (s *Server) addTopic(w http.ResponseWriter, r *http.Request, b *browser) {
	b.ctl.SetNewTopicTitle(r.FormValue("title"))
	s.ignore("add topic", b.ctl.SubmitNewTopic(r.Context()))
	back(w, r)
}

func (s *Server) deleteTopic(w http.ResponseWriter, r *http.Request, b *browser) {
	if id, ok := pathID(r); ok {
		s.ignore("delete topic", b.ctl.DeleteTopic(r.Context(), id))
	}
	back(w, r)
}

func (s *Server) openEdit(w http.ResponseWriter, r *http.Request, b *browser) {
	if id, ok := pathID(r); ok {
		s.ignore("open edit", b.ctl.OpenEditTopic(id))
	}
	back(w, r)
}

func (s *Server) submitEdit(w http.ResponseWriter, r *http.Request, b *browser) {
	id, ok := pathID(r)
	if !ok {
		back(w, r)
		return
	}
	if e, open := b.ctl.Modal().(state.EditTopic); !open || e.TopicID != id {
		if err := b.ctl.OpenEditTopic(id); err != nil {
			back(w, r)
			return
		}
	}
	b.ctl.SetEditDraft(r.FormValue("title"))
	s.ignore("update topic", b.ctl.SubmitEdit(r.Context()))
	back(w, r)
}

func (s *Server) openAddSubtopic(w http.ResponseWriter, r *http.Request, b *browser) {
	if id, ok := pathID(r); ok {
		s.ignore("open add subtopic", b.ctl.OpenAddSubtopic(id))
	}
	back(w, r)
}

func (s *Server) addSubtopic(w http.ResponseWriter, r *http.Request, b *browser) {
	id, ok := pathID(r)
	if !ok {
		back(w, r)
		return
	}
	if a, open := b.ctl.Modal().(state.AddSubtopic); !open || a.TopicID != id {
		if err := b.ctl.OpenAddSubtopic(id); err != nil {
			back(w, r)
			return
		}
	}
	b.ctl.SetSubtopicDraft(id, state.SubtopicDraft{
		Title:   r.FormValue("title"),
		URL:     r.FormValue("url"),
		Content: r.FormValue("content"),
	})
	s.ignore("add subtopic", b.ctl.SubmitSubtopic(r.Context()))
	back(w, r)
}

func (s *Server) toggle(w http.ResponseWriter, r *http.Request, b *browser) {
	if id, ok := pathID(r); ok {
		current := r.FormValue("completed") == "true"
		s.ignore("toggle", b.ctl.ToggleSubtopicCompletion(r.Context(), id, current))
	}
	back(w, r)
}

func (s *Server) viewContent(w http.ResponseWriter, r *http.Request, b *browser) {
	if id, ok := pathID(r); ok {
		s.ignore("view content", b.ctl.OpenViewContent(id))
	}
	back(w, r)
}

func (s *Server) closeModal(w http.ResponseWriter, r *http.Request, b *browser) {
	b.ctl.CloseModal()
	back(w, r)
}
