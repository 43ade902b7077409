// Package apikey issues and verifies tenant bearer API keys. The raw
// secret is returned once, at issuance time, and never stored; only a
// salted bcrypt hash of it is persisted (spec.md §3 ApiKey).
//
// Grounded on original_source/backend/app/db/crud.py, which issues
// secrets.token_urlsafe(24) and stores passlib.hash.bcrypt(raw); the Go
// equivalent here uses crypto/rand + golang.org/x/crypto/bcrypt (the same
// bcrypt library caasmo-restinpieces, a pack repo, depends on for its own
// credential hashing).
package apikey

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// rawSecretBytes controls the entropy of an issued key (before
// base64url encoding), matching the original's token_urlsafe(24).
const rawSecretBytes = 24

// Generate returns a new random, URL-safe bearer secret.
func Generate() (string, error) {
	buf := make([]byte, rawSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("apikey: generate: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Hash salts (via an optional site-wide pepper, API_KEY_SALT) and hashes a
// raw secret for storage. bcrypt itself generates a per-call random salt;
// the pepper adds a second, operator-controlled secret so a stolen
// database alone can't be brute-forced offline even if bcrypt's cost
// factor is later judged too low.
func Hash(raw, pepper string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pepper+raw), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("apikey: hash: %w", err)
	}
	return string(h), nil
}

// Verify reports whether raw matches hashed, under the same pepper used at
// issuance. bcrypt.CompareHashAndPassword is constant-time with respect to
// the comparison itself.
func Verify(hashed, raw, pepper string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(pepper+raw)) == nil
}
