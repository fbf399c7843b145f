package crypto

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// NewVerifier returns a random PKCE code verifier (43 chars of base64url).
func NewVerifier() (string, error) {
	b, err := RandBytes(32)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// ChallengeS256 derives the S256 code challenge for a verifier.
func ChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyChallenge reports whether verifier matches an S256 challenge.
func VerifyChallenge(verifier, challenge string) bool {
	got := ChallengeS256(verifier)
	return subtle.ConstantTimeCompare([]byte(got), []byte(challenge)) == 1
}
