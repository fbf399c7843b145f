package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func TestRandBytes_LengthAndUniqueness(t *testing.T) {
	t.Parallel()

	const n = 64
	a, err := RandBytes(n)
	if err != nil {
		t.Fatalf("RandBytes: %v", err)
	}
	if len(a) != n {
		t.Fatalf("len=%d, want=%d", len(a), n)
	}
	b, err := RandBytes(n)
	if err != nil {
		t.Fatalf("RandBytes(2): %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatalf("two subsequent RandBytes(%d) are equal", n)
	}
}

func TestHashPassword_DeterministicOnSameInput(t *testing.T) {
	t.Parallel()

	pw := []byte("p@ssw0rd")
	salt := []byte("NaCl-16-bytes?")

	h1 := HashPassword(pw, salt)
	if !bytes.Equal(h1, HashPassword(pw, salt)) {
		t.Fatalf("hash not deterministic for same input")
	}
	if bytes.Equal(h1, HashPassword(pw, []byte("another-salt----"))) {
		t.Fatalf("hash should differ when salt differs")
	}
	if bytes.Equal(h1, HashPassword([]byte("p@ssw0rd!"), salt)) {
		t.Fatalf("hash should differ when password differs")
	}
}

func TestNewPassword_Verify(t *testing.T) {
	t.Parallel()

	hash, salt, err := NewPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("NewPassword: %v", err)
	}
	if len(salt) != SaltLen {
		t.Fatalf("salt len=%d", len(salt))
	}
	if !VerifyPassword("correct horse battery staple", salt, hash) {
		t.Fatalf("expected true for correct password")
	}
	if VerifyPassword("wrong", salt, hash) {
		t.Fatalf("expected false for wrong password")
	}
	if VerifyPassword("correct horse battery staple", []byte("wrong-salt"), hash) {
		t.Fatalf("expected false for wrong salt")
	}
	if VerifyPassword("", salt, nil) {
		t.Fatalf("accounts without a hash must never verify")
	}

	if _, _, err := NewPassword(""); !errors.Is(err, ErrEmptyPassword) {
		t.Fatalf("want ErrEmptyPassword, got %v", err)
	}
}

func TestPKCE(t *testing.T) {
	t.Parallel()

	v, err := NewVerifier()
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	if len(v) != 43 {
		t.Fatalf("verifier len=%d, want 43", len(v))
	}
	// RFC 7636 appendix B
	if got := ChallengeS256("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"); got != "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM" {
		t.Fatalf("challenge=%s", got)
	}
	if !VerifyChallenge(v, ChallengeS256(v)) {
		t.Fatalf("verifier must match its own challenge")
	}
	if VerifyChallenge("other", ChallengeS256(v)) {
		t.Fatalf("foreign verifier must not match")
	}
}
