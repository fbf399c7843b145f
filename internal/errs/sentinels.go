// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across client, service and repository layers.
var (
	// ErrNotFound indicates the requested entity does not exist (or is not visible to the caller).
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., email taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrConflict indicates a write referencing a row the caller cannot see.
	ErrConflict = errors.New("conflicting reference")

	// ErrValidation indicates malformed input rejected before reaching storage.
	ErrValidation = errors.New("validation error")

	// ErrEmptyTitle indicates a title that is empty after trimming whitespace.
	ErrEmptyTitle = errors.New("title is required")

	// ErrNoSession indicates an operation that requires a signed-in user.
	ErrNoSession = errors.New("no active session")

	// ErrMissingFilter indicates an update or delete issued without any row filter.
	ErrMissingFilter = errors.New("update/delete requires a filter")

	// ErrUnsupportedProvider indicates an OAuth provider that is not configured.
	ErrUnsupportedProvider = errors.New("unsupported oauth provider")
)
