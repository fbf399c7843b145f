// Package rest implements remote.Client over the PostgREST/GoTrue HTTP protocol.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/topiclist/internal/convert"
	"github.com/and161185/topiclist/internal/errs"
	"github.com/and161185/topiclist/internal/remote"
)

// Config holds the backend endpoint and credentials.
type Config struct {
	URL     string        // base URL, e.g. https://xyz.supabase.co
	AnonKey string        // public api key sent as "apikey"
	Timeout time.Duration // per-request HTTP timeout, 0 disables
}

// Client talks to the backend over HTTP. It is safe for concurrent use.
type Client struct {
	base    *url.URL
	anonKey string
	http    *http.Client
	log     *zap.Logger
	now     func() time.Time

	store     SessionStore
	auth      *authClient
	topics    *table[convert.TopicRow, convert.TopicPatch]
	subtopics *table[convert.SubtopicRow, convert.SubtopicPatch]
}

var _ remote.Client = (*Client)(nil)

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client (tests, custom transports).
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithSessionStore sets where the session is persisted (defaults to memory).
func WithSessionStore(s SessionStore) Option { return func(c *Client) { c.store = s } }

// WithLogger sets the diagnostic logger.
func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.log = l } }

// WithClock overrides the time source used for token expiry.
func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

// New constructs a Client for cfg.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("rest: empty backend url")
	}
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("rest: bad backend url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("rest: unsupported scheme %q", base.Scheme)
	}

	c := &Client{
		base:    base,
		anonKey: cfg.AnonKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     zap.NewNop(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	if c.store == nil {
		c.store = NewMemoryStore()
	}
	c.auth = &authClient{c: c, store: c.store, listeners: map[int]remote.AuthListener{}}
	c.topics = &table[convert.TopicRow, convert.TopicPatch]{c: c, name: convert.TableTopics}
	c.subtopics = &table[convert.SubtopicRow, convert.SubtopicPatch]{c: c, name: convert.TableSubtopics}
	return c, nil
}

// Topics returns the topics table.
func (c *Client) Topics() remote.TopicTable { return c.topics }

// Subtopics returns the subtopics table.
func (c *Client) Subtopics() remote.SubtopicTable { return c.subtopics }

// Auth returns the authentication surface.
func (c *Client) Auth() remote.Auth { return c.auth }

// endpoint resolves a path below the base URL with the given query.
func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = q.Encode()
	return u.String()
}

// request describes one HTTP exchange with the backend.
type request struct {
	method string
	path   string
	query  url.Values
	body   any
	bearer string
	prefer string
}

// do executes req and decodes a JSON response into out (when non-nil).
// Every failure is returned as *errs.RemoteError.
func (c *Client) do(ctx context.Context, req request, out any) error {
	var body io.Reader
	if req.body != nil {
		b, err := json.Marshal(req.body)
		if err != nil {
			return &errs.RemoteError{Message: "encode request", Err: err}
		}
		body = bytes.NewReader(b)
	}

	hr, err := http.NewRequestWithContext(ctx, req.method, c.endpoint(req.path, req.query), body)
	if err != nil {
		return &errs.RemoteError{Message: "build request", Err: err}
	}
	hr.Header.Set("Accept", "application/json")
	if body != nil {
		hr.Header.Set("Content-Type", "application/json")
	}
	if c.anonKey != "" {
		hr.Header.Set("apikey", c.anonKey)
	}
	if req.bearer != "" {
		hr.Header.Set("Authorization", "Bearer "+req.bearer)
	}
	if req.prefer != "" {
		hr.Header.Set("Prefer", req.prefer)
	}

	start := c.now()
	resp, err := c.http.Do(hr)
	if err != nil {
		c.log.Debug("remote request failed",
			zap.String("method", req.method), zap.String("path", req.path), zap.Error(err))
		return &errs.RemoteError{Err: err}
	}
	defer resp.Body.Close()

	c.log.Debug("remote",
		zap.String("method", req.method),
		zap.String("path", req.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("dur", c.now().Sub(start)),
	)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &errs.RemoteError{Status: resp.StatusCode, Message: "read response", Err: err}
	}
	if resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &errs.RemoteError{Status: resp.StatusCode, Message: "decode response", Err: err}
	}
	return nil
}

// errorBody is the union of the table and auth error shapes.
type errorBody struct {
	convert.AuthErrorJSON
	Message string `json:"message"`
}

func decodeError(status int, raw []byte) *errs.RemoteError {
	re := &errs.RemoteError{Status: status}
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err != nil {
		re.Message = strings.TrimSpace(string(raw))
		if re.Message == "" {
			re.Message = http.StatusText(status)
		}
		return re
	}
	re.Code = eb.CodeString()
	re.Message = eb.Message
	if re.Message == "" {
		re.Message = eb.AuthErrorJSON.Message()
	}
	if re.Message == "" {
		re.Message = http.StatusText(status)
	}
	return re
}
