// Package restserver serves the table and auth HTTP protocol used by the
// topiclist client.
package restserver

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/topiclist/internal/service"
)

const maxBodyBytes = 1 << 20

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services behind the handlers.
type Deps struct {
	Auth   service.AuthService
	Tables service.TableService
	Health Pinger
}

// Server wires services into HTTP handlers.
type Server struct {
	auth    service.AuthService
	tables  map[string]tableOps
	schema  service.TableService
	health  Pinger
	anonKey string
	log     *zap.Logger
	now     func() time.Time
}

// New constructs the HTTP API. anonKey, when set, is required as the apikey
// header on every protocol request.
func New(d Deps, anonKey string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		auth:    d.Auth,
		tables:  newTableOps(d.Tables),
		schema:  d.Tables,
		health:  d.Health,
		anonKey: anonKey,
		log:     log,
		now:     time.Now,
	}
}

// Handler returns the routed handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	public := APIKey(s.anonKey)
	private := Chain(APIKey(s.anonKey), Auth(s.auth))

	mux.Handle("GET /rest/v1/{table}", private(http.HandlerFunc(s.listRows)))
	mux.Handle("POST /rest/v1/{table}", private(http.HandlerFunc(s.insertRows)))
	mux.Handle("PATCH /rest/v1/{table}", private(http.HandlerFunc(s.updateRows)))
	mux.Handle("DELETE /rest/v1/{table}", private(http.HandlerFunc(s.deleteRows)))

	mux.Handle("POST /auth/v1/signup", public(http.HandlerFunc(s.signUp)))
	mux.Handle("POST /auth/v1/token", public(http.HandlerFunc(s.token)))
	mux.Handle("POST /auth/v1/logout", private(http.HandlerFunc(s.logout)))
	mux.Handle("GET /auth/v1/user", private(http.HandlerFunc(s.user)))
	// browser redirects carry no headers
	mux.HandleFunc("GET /auth/v1/authorize", s.authorize)
	mux.HandleFunc("GET /auth/v1/callback", s.callback)

	mux.HandleFunc("GET /health", s.healthz)

	return Chain(RequestID, Logger(s.log), Recovery(s.log))(mux)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			s.log.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// fail logs server-side failures and writes a table error.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status, _ := statusOf(err); status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("request_id", RequestIDFromCtx(r.Context())),
			zap.Error(err))
	}
	writeRestError(w, err)
}

// failAuth is fail for auth endpoints.
func (s *Server) failAuth(w http.ResponseWriter, r *http.Request, err error) {
	if status, _ := statusOf(err); status >= http.StatusInternalServerError {
		s.log.Error("auth request failed",
			zap.String("request_id", RequestIDFromCtx(r.Context())),
			zap.Error(err))
	}
	writeAuthErr(w, err)
}
