package ui

import (
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/topiclist/internal/errs"
	"github.com/and161185/topiclist/internal/remote"
	"github.com/and161185/topiclist/internal/remote/remotetest"
)

type uiHarness struct {
	t       *testing.T
	ui      *Server
	srv     *httptest.Server
	http    *http.Client
	backend *remotetest.Backend
}

func newUI(t *testing.T) *uiHarness {
	t.Helper()
	b := remotetest.New()
	b.FakeAuth().AddUser("ann@example.com", "pw")

	s, err := NewServer(ServerConfig{PublicURL: "http://ui.example/", OAuthProvider: "google"},
		func() (remote.Client, error) { return b, nil }, zaptest.NewLogger(t))
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		s.Close()
	})

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	base, _ := url.Parse(srv.URL)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, _ []*http.Request) error {
			if req.URL.Host != base.Host {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
	return &uiHarness{t: t, ui: s, srv: srv, http: client, backend: b}
}

func (h *uiHarness) get(path string) (int, string) {
	h.t.Helper()
	resp, err := h.http.Get(h.srv.URL + path)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func (h *uiHarness) post(path string, form url.Values) string {
	h.t.Helper()
	resp, err := h.http.PostForm(h.srv.URL+path, form)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	require.Equal(h.t, http.StatusOK, resp.StatusCode, "POST %s must redirect back to the page", path)
	body, _ := io.ReadAll(resp.Body)
	return string(body)
}

func TestServer_SignedOutShowsAuthForm(t *testing.T) {
	t.Parallel()

	h := newUI(t)
	code, body := h.get("/")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, `action="/auth/signin"`)
	require.Contains(t, body, "Continue with google")
	require.NotContains(t, body, "Add Topic")
}

func TestServer_ChecklistFlow(t *testing.T) {
	t.Parallel()

	h := newUI(t)
	body := h.post("/auth/signin", url.Values{"email": {"ann@example.com"}, "password": {"pw"}})
	require.Contains(t, body, "ann@example.com")
	require.Contains(t, body, "No topics yet.")

	body = h.post("/topics", url.Values{"title": {"   "}})
	require.Contains(t, body, "No topics yet.")
	require.Empty(t, h.backend.TopicRows())

	long := "Quarterly planning for the team"
	body = h.post("/topics", url.Values{"title": {long}})
	require.Contains(t, body, ">Quarterly planning f...<")
	require.Contains(t, body, `title="Quarterly planning for the team"`)
	id := h.backend.TopicRows()[0].ID
	topicPath := "/topics/" + itoa(id)

	_, body = h.get(topicPath + "/subtopics/new")
	require.Contains(t, body, "<h2>Add Subtopic</h2>")
	require.Contains(t, body, `class="modal-backdrop" href="/modal/close"`)

	body = h.post(topicPath+"/subtopics", url.Values{"title": {"Agenda"}, "url": {""}, "content": {"slides & notes"}})
	require.NotContains(t, body, "<h2>Add Subtopic</h2>", "successful add closes the modal")
	require.Contains(t, body, "View Additional Content")
	subs := h.backend.SubtopicRows()
	require.Len(t, subs, 1)
	subPath := "/subtopics/" + itoa(subs[0].ID)

	body = h.post(subPath+"/toggle", url.Values{"completed": {"false"}})
	require.Contains(t, body, `class="completed"`)
	require.True(t, h.backend.SubtopicRows()[0].Completed)

	_, body = h.get(subPath + "/content")
	require.Contains(t, body, "slides &amp; notes")

	_, body = h.get("/modal/close")
	require.NotContains(t, body, `role="dialog"`)

	_, body = h.get(topicPath + "/edit")
	require.Contains(t, body, "<h2>Edit Topic</h2>")
	body = h.post(topicPath+"/edit", url.Values{"title": {"Planning"}})
	require.NotContains(t, body, "<h2>Edit Topic</h2>")
	require.Contains(t, body, ">Planning<")

	_, body = h.get("/search?q=agenda")
	require.Contains(t, body, `href="`+subPath+`/content">Agenda</a>`)

	body = h.post(topicPath+"/delete", nil)
	require.Contains(t, body, "No topics yet.")

	body = h.post("/auth/signout", nil)
	require.Contains(t, body, `action="/auth/signin"`)
}

func TestServer_FailedWriteShowsNoticeAndKeepsModal(t *testing.T) {
	t.Parallel()

	h := newUI(t)
	h.post("/auth/signin", url.Values{"email": {"ann@example.com"}, "password": {"pw"}})
	h.post("/topics", url.Values{"title": {"Work"}})
	id := itoa(h.backend.TopicRows()[0].ID)

	h.get("/topics/" + id + "/subtopics/new")
	h.backend.FailNext(remotetest.OpSubtopicsInsert, errBoom)
	body := h.post("/topics/"+id+"/subtopics", url.Values{"title": {"Email"}})

	require.Contains(t, body, `role="alert"`)
	require.Contains(t, body, "<h2>Add Subtopic</h2>")
	require.Contains(t, body, `value="Email"`, "draft survives the failure")

	_, body = h.get("/")
	require.NotContains(t, body, `role="alert"`, "notices are shown once")
}

func TestServer_OAuthRoundTrip(t *testing.T) {
	t.Parallel()

	h := newUI(t)
	resp, err := h.http.Get(h.srv.URL + "/auth/oauth")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "google", loc.Query().Get("provider"))
	require.Equal(t, "http://ui.example/auth/callback", loc.Query().Get("redirect_to"))

	_, body := h.get("/auth/callback?code=" + url.QueryEscape("code:bob@example.com"))
	require.Contains(t, body, "bob@example.com")

	// the verifier is single use
	_, body = h.get("/auth/callback?code=" + url.QueryEscape("code:eve@example.com"))
	require.NotContains(t, body, "eve@example.com")
}

func TestServer_BadPathIDsAreIgnored(t *testing.T) {
	t.Parallel()

	h := newUI(t)
	h.post("/auth/signin", url.Values{"email": {"ann@example.com"}, "password": {"pw"}})
	body := h.post("/topics/abc/delete", nil)
	require.Contains(t, body, "No topics yet.")
	code, _ := h.get("/topics/-1/edit")
	require.Equal(t, http.StatusOK, code)
}

func TestServer_PendingSignUpShowsNotice(t *testing.T) {
	t.Parallel()

	h := newUI(t)
	h.backend.FakeAuth().ConfirmSignUps(true)
	body := h.post("/auth/signup", url.Values{"email": {"bob@example.com"}, "password": {"pw"}})
	require.Contains(t, body, `role="alert"`)
	require.Contains(t, body, "Check your email to confirm the account")
	require.Contains(t, body, `action="/auth/signin"`)
}

func TestServer_InvalidSearchQueryIsReported(t *testing.T) {
	t.Parallel()

	h := newUI(t)
	h.post("/auth/signin", url.Values{"email": {"ann@example.com"}, "password": {"pw"}})
	h.post("/topics", url.Values{"title": {"Work"}})

	_, body := h.get("/search?q=" + url.QueryEscape(`"unclosed`))
	require.Contains(t, body, "Invalid query:")
	require.NotContains(t, body, "No matches.")

	_, body = h.get("/search?q=nothing")
	require.Contains(t, body, "No matches.")
	require.NotContains(t, body, "Invalid query:")
}

func sessionCount(s *Server) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.browsers)
}

func TestServer_SessionsAreBounded(t *testing.T) {
	t.Parallel()

	b := remotetest.New()
	b.FakeAuth().AddUser("ann@example.com", "pw")
	var clients atomic.Int32
	s, err := NewServer(ServerConfig{PublicURL: "http://ui.example/", MaxSessions: 3},
		func() (remote.Client, error) {
			clients.Add(1)
			return b, nil
		}, zaptest.NewLogger(t))
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		s.Close()
	})
	noRedirect := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}

	for i := 0; i < 20; i++ {
		resp, err := noRedirect.Get(srv.URL + "/")
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Empty(t, resp.Cookies(), "anonymous page views get no session")

		resp, err = noRedirect.Get(srv.URL + "/topics/1/edit")
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	}
	require.Zero(t, sessionCount(s))
	require.Zero(t, clients.Load())

	for i := 0; i < 10; i++ {
		resp, err := noRedirect.PostForm(srv.URL+"/auth/signin", url.Values{"email": {"ann@example.com"}, "password": {"pw"}})
		require.NoError(t, err)
		resp.Body.Close()
		require.NotEmpty(t, resp.Cookies())
		require.LessOrEqual(t, sessionCount(s), 3)
	}
	require.Equal(t, int32(10), clients.Load())
	require.Equal(t, 3, sessionCount(s))
}

var errBoom = &errs.RemoteError{Status: http.StatusInternalServerError, Message: "boom"}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
