package auth

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Stored credentials are bcrypt over an md5-hex intermediate digest of the
// plaintext. The md5 step is not a security boundary: it exists so the game
// client and the web frontend can share one stored hash (the client only ever
// transmits the md5), and so the in-memory cache has a fixed-size stand-in for
// the plaintext. bcrypt carries the at-rest security.

// FastDigest returns the cheap intermediate digest of a plaintext password:
// the lowercase hex md5, as bytes.
func FastDigest(plaintext string) []byte {
	sum := md5.Sum([]byte(plaintext))
	out := make([]byte, hex.EncodedLen(len(sum)))
	hex.Encode(out, sum[:])
	return out
}

// HashPassword derives the stored credential from a plaintext password using
// the slow KDF. Intentionally expensive (~100-300ms).
func HashPassword(plaintext string) (string, error) {
	if len(plaintext) == 0 {
		return "", errors.New("auth: password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword(FastDigest(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// SlowCompare runs the full bcrypt comparison of a stored hash against a fast
// digest. This is the expensive path; callers are expected to consult the
// verification cache first.
func SlowCompare(storedHash string, digest []byte) error {
	if storedHash == "" {
		return errors.New("auth: stored hash is empty")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(storedHash), digest); err != nil {
		return ErrPasswordMismatch
	}
	return nil
}

// DigestsEqual compares two fast digests in constant time.
func DigestsEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
