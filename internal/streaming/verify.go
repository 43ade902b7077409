package streaming

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/webhookrelay/relay/internal/canonical"
)

// VerifyChain walks delivery_audit_log in chronological order and checks
// that, for every row, hash == sha256(canonical(payload) || prevHashBytes),
// signer_id equals signerID (any other signer fails the walk), and the
// signature verifies against signerPublicKey. A single well-known public key is sufficient here since
// internal/signing only ever issues one LocalSigner per process (no
// multi-signer key registry, unlike the teacher's kernel).
//
// Grounded on kernel/internal/audit/chain_verifer.go's VerifyChain, with
// the registry lookup replaced by a single passed-in public key.
func VerifyChain(ctx context.Context, db *sql.DB, signerID string, signerPublicKey []byte) error {
	if db == nil {
		return errors.New("streaming: db is nil")
	}
	if len(signerPublicKey) != ed25519.PublicKeySize {
		return fmt.Errorf("streaming: public key must be %d bytes", ed25519.PublicKeySize)
	}

	q := `SELECT id, event_type, payload, prev_hash, hash, signature, signer_id FROM delivery_audit_log ORDER BY ts ASC`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return fmt.Errorf("streaming: query delivery_audit_log: %w", err)
	}
	defer rows.Close()

	index := 0
	for rows.Next() {
		index++
		var (
			id, eventType, hashHex, sigB64, gotSignerID string
			payloadB                                    []byte
			prevHash                                     sql.NullString
		)
		if err := rows.Scan(&id, &eventType, &payloadB, &prevHash, &hashHex, &sigB64, &gotSignerID); err != nil {
			return fmt.Errorf("streaming: scan row %d: %w", index, err)
		}

		var payload interface{}
		if err := json.Unmarshal(payloadB, &payload); err != nil {
			return fmt.Errorf("streaming: unmarshal payload for record %s: %w", id, err)
		}

		canon, err := canonical.Marshal(payload)
		if err != nil {
			return fmt.Errorf("streaming: canonicalize payload for record %s: %w", id, err)
		}

		concat := append([]byte{}, canon...)
		if prevHash.Valid && prevHash.String != "" {
			prevBytes, err := hex.DecodeString(prevHash.String)
			if err != nil {
				return fmt.Errorf("streaming: decode prev_hash for record %s: %w", id, err)
			}
			concat = append(concat, prevBytes...)
		}

		sum := sha256.Sum256(concat)
		computedHex := hex.EncodeToString(sum[:])
		if computedHex != hashHex {
			return fmt.Errorf("streaming: hash mismatch for record %s (type=%s): computed=%s stored=%s", id, eventType, computedHex, hashHex)
		}

		if gotSignerID != signerID {
			return fmt.Errorf("streaming: record %s signed by unexpected signer %s", id, gotSignerID)
		}
		sigBytes, err := base64.StdEncoding.DecodeString(sigB64)
		if err != nil {
			return fmt.Errorf("streaming: invalid signature encoding for record %s: %w", id, err)
		}
		if !ed25519.Verify(ed25519.PublicKey(signerPublicKey), sum[:], sigBytes) {
			return fmt.Errorf("streaming: signature verification failed for record %s", id)
		}
	}

	return rows.Err()
}
