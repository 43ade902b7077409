// Package signature verifies the provider's signed-webhook header:
// t=<unix_ts>,v1=<hex_hmac_sha256>, exactly as described in spec.md §4.1.
// Grounded on original_source/backend/app/services/stripe_verify.py, with
// the tolerance check always enforced (the original's TESTING escape
// hatch is not carried forward — SPEC_FULL.md treats tolerance as a hard
// invariant, not a debug convenience).
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind identifies why verification failed, so the HTTP boundary can map it
// to the correct status/body per spec.md §7.
type Kind int

const (
	// KindNone indicates verification succeeded.
	KindNone Kind = iota
	KindMalformedHeader
	KindTimestampOutOfTolerance
	KindBadSignature
)

// Error wraps a verification failure with its Kind for boundary mapping.
type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string { return e.msg }

func newErr(kind Kind, msg string) *Error { return &Error{Kind: kind, msg: msg} }

var errEmptySecret = errors.New("signature: secret is empty")

// DefaultTolerance is used when a caller passes tolerance <= 0.
const DefaultTolerance = 300 * time.Second

// Verify parses header, recomputes HMAC-SHA256(secret, "<t>.<raw>") over
// the exact raw bytes, and rejects unless the MAC matches under
// constant-time comparison and the timestamp is within tolerance of now.
//
// Verification MUST occur against the bytes received on the wire; any
// JSON normalization before this call would break interoperability with
// the provider's own signing (spec.md §4.1 rationale).
func Verify(raw []byte, header string, secret string, tolerance time.Duration) error {
	if secret == "" {
		return errEmptySecret
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	ts, sig, err := parseHeader(header)
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	delta := now - ts
	if delta < 0 {
		delta = -delta
	}
	if time.Duration(delta)*time.Second > tolerance {
		return newErr(KindTimestampOutOfTolerance, "signature: timestamp outside tolerance")
	}

	payload := fmt.Sprintf("%d.%s", ts, raw)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(sig))) {
		return newErr(KindBadSignature, "signature: mismatch")
	}
	return nil
}

// parseHeader parses a comma-separated key=value header and extracts the
// t and v1 pairs. Unknown pairs are ignored. Fails with KindMalformedHeader
// if t or v1 is missing or t does not parse as an integer.
func parseHeader(header string) (ts int64, sig string, err error) {
	var tStr string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.TrimSpace(kv[0]) {
		case "t":
			tStr = strings.TrimSpace(kv[1])
		case "v1":
			sig = strings.TrimSpace(kv[1])
		}
	}
	if tStr == "" || sig == "" {
		return 0, "", newErr(KindMalformedHeader, "signature: malformed header")
	}
	ts, perr := strconv.ParseInt(tStr, 10, 64)
	if perr != nil {
		return 0, "", newErr(KindMalformedHeader, "signature: malformed timestamp")
	}
	return ts, sig, nil
}
