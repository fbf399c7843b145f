package restserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/and161185/topiclist/internal/convert"
	"github.com/and161185/topiclist/internal/errs"
)

var errInternal = errors.New("internal")

// statusOf maps service errors to HTTP status and a short machine code.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests, "over_request_rate_limit"
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, errs.ErrAlreadyExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, errs.ErrConflict):
		return http.StatusConflict, "foreign_key_violation"
	case errors.Is(err, errs.ErrMissingFilter):
		return http.StatusBadRequest, "missing_filter"
	case errors.Is(err, errs.ErrUnsupportedProvider):
		return http.StatusBadRequest, "unsupported_provider"
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest, "validation_failed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// publicMessage hides internal error text from clients.
func publicMessage(status int, err error) string {
	if status >= http.StatusInternalServerError {
		return "internal server error"
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeRestError writes a table endpoint error {code, message}.
func writeRestError(w http.ResponseWriter, err error) {
	status, code := statusOf(err)
	writeJSON(w, status, convert.RestErrorJSON{Code: code, Message: publicMessage(status, err)})
}

// writeAuthError writes an auth endpoint error {error, error_description}.
func writeAuthError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, convert.AuthErrorJSON{Error: code, ErrorDescription: description})
}

func writeAuthErr(w http.ResponseWriter, err error) {
	status, code := statusOf(err)
	if status == http.StatusUnauthorized {
		code = "invalid_grant"
	}
	writeAuthError(w, status, code, publicMessage(status, err))
}
