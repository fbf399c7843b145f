package errs

import (
	"fmt"
	"net/http"
)

// RemoteError is the single failure kind surfaced by the remote backend client:
// transport failures, auth rejections and constraint violations alike.
type RemoteError struct {
	Status  int    // HTTP status, 0 for transport failures
	Code    string // backend error code, if any
	Message string
	Err     error // underlying transport error, if any
}

func (e *RemoteError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("remote: %v", e.Err)
	case e.Code != "":
		return fmt.Sprintf("remote: %d %s: %s", e.Status, e.Code, e.Message)
	default:
		return fmt.Sprintf("remote: %d: %s", e.Status, e.Message)
	}
}

// Unwrap exposes the transport error or the sentinel matching the status code.
func (e *RemoteError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	switch e.Status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrAlreadyExists
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrValidation
	}
	return nil
}
