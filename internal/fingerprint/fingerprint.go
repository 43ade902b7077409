// Package fingerprint computes the deduplication key for an ingress body.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Compute returns the lowercase hex SHA-256 digest of raw. Inputs must be
// the exact bytes verified by the signature check (internal/signature) —
// any pre-parsing or re-encoding before this call invalidates the
// cross-check between the HMAC and the stored fingerprint.
func Compute(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
