package restserver

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/and161185/topiclist/internal/errs"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain applies mws so that the first one runs outermost.
func Chain(mws ...Middleware) Middleware {
	return func(final http.Handler) http.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			final = mws[i](final)
		}
		return final
	}
}

const requestIDHeader = "X-Request-Id"

// RequestID propagates X-Request-Id or assigns a new ULID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = ulid.Make().String()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), id)))
	})
}

// Logger logs one line per request. The user id is filled in by Auth further
// down the chain through a shared slot.
func Logger(log *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			slot := &userSlot{}

			next.ServeHTTP(sw, r.WithContext(context.WithValue(r.Context(), userSlotKey, slot)))

			// никаких пейлоадов, только метаданные
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", sw.status),
				zap.Duration("dur", time.Since(start)),
				zap.String("request_id", RequestIDFromCtx(r.Context())),
			}
			if slot.id != uuid.Nil {
				fields = append(fields, zap.String("user_id", slot.id.String()))
			}
			if sw.status >= http.StatusInternalServerError {
				log.Error("http", fields...)
				return
			}
			log.Info("http", fields...)
		})
	}
}

const userSlotKey ctxKey = "tl.userSlot"

type userSlot struct{ id uuid.UUID }

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

// Recovery turns a panic into a 500 and logs it with the stack.
func Recovery(log *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error("panic",
						zap.Any("reason", rec),
						zap.ByteString("stack", debug.Stack()),
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
					)
					writeRestError(w, errInternal)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// APIKey rejects requests whose apikey header differs from key. An empty key
// disables the check.
func APIKey(key string) Middleware {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("apikey")
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				writeAuthError(w, http.StatusUnauthorized, "invalid_api_key", "invalid or missing apikey")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (uuid.UUID, error)
}

// Auth requires a valid bearer access token and stores its subject in context.
func Auth(a authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, ok := bearerToken(r)
			if !ok {
				writeRestError(w, errs.ErrUnauthorized)
				return
			}
			id, err := a.Authenticate(r.Context(), tok)
			if err != nil {
				writeRestError(w, err)
				return
			}
			if slot, ok := r.Context().Value(userSlotKey).(*userSlot); ok {
				slot.id = id
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), id)))
		})
	}
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(h) < len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(h[len(prefix):])
	return tok, tok != ""
}

// clientIP is the peer address without port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
