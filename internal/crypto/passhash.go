// Package crypto holds the password hashing and PKCE primitives shared by the
// backend and its clients.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters (tuned for server-side hashing).
const (
	argonTime    uint32 = 3         // iterations
	argonMemory  uint32 = 64 * 1024 // 64 MB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32

	SaltLen = 16
)

// ErrEmptyPassword is returned when hashing an empty password.
var ErrEmptyPassword = errors.New("empty password")

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// NewPassword hashes password under a fresh random salt.
func NewPassword(password string) (hash, salt []byte, err error) {
	if password == "" {
		return nil, nil, ErrEmptyPassword
	}
	salt, err = RandBytes(SaltLen)
	if err != nil {
		return nil, nil, err
	}
	return HashPassword([]byte(password), salt), salt, nil
}

// HashPassword returns Argon2id hash of password using the provided salt.
func HashPassword(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// VerifyPassword verifies password against the stored hash and salt.
// Accounts without a stored hash (OAuth-only) never verify.
func VerifyPassword(password string, salt, expected []byte) bool {
	if len(expected) == 0 {
		return false
	}
	got := HashPassword([]byte(password), salt)
	return subtle.ConstantTimeCompare(got, expected) == 1
}
