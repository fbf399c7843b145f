// Package limiter throttles password sign-in attempts.
package limiter

import (
	"context"
	"crypto/sha256"
	"strings"
	"time"
)

// Limiter controls sign-in attempts and temporary lockouts per (email, client IP).
type Limiter interface {
	// Allow reports whether a sign-in may be attempted and, if not, for how long it is blocked.
	Allow(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful sign-in.
	Success(ctx context.Context, email string, ipHash []byte) error
	// Failure records a failed attempt and reports whether it triggered a block.
	Failure(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error)
}

// Config holds the throttling policy.
type Config struct {
	Window   time.Duration // failures older than this start a new count
	MaxFails int           // failures within Window that trigger a block
	BlockFor time.Duration
}

// HashIP returns a stable hash for an IP string to avoid storing raw addresses.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}

// Key normalizes an email into its limiter key.
func Key(email string) string { return strings.ToLower(strings.TrimSpace(email)) }
