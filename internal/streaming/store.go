package streaming

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/webhookrelay/relay/internal/canonical"
	"github.com/webhookrelay/relay/internal/signing"
)

// Store persists delivery-audit Records into the delivery_audit_log
// table, a bookkeeping table separate from "deliveries" so
// models.Delivery stays exactly the shape the specification names.
// Grounded on kernel/internal/audit/pg_store.go's AppendAuditEvent /
// FetchPendingEventsForStreaming / MarkEventStreamResult trio.
type Store struct {
	db *sql.DB
}

// NewStore constructs a Postgres-backed Store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) lastHash(ctx context.Context) (string, error) {
	var h sql.NullString
	q := `SELECT hash FROM delivery_audit_log ORDER BY ts DESC LIMIT 1`
	if err := s.db.QueryRowContext(ctx, q).Scan(&h); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	if !h.Valid {
		return "", nil
	}
	return h.String, nil
}

// Append canonicalizes rec.Payload, chains it to the previous record's
// hash, signs the chained hash, and persists the record in
// delivery_audit_log with stream_status='pending'.
func (s *Store) Append(ctx context.Context, rec *Record, signer signing.Signer) error {
	canon, err := canonical.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("streaming: canonicalize payload: %w", err)
	}

	prev, err := s.lastHash(ctx)
	if err != nil {
		return fmt.Errorf("streaming: fetch last hash: %w", err)
	}

	concat := append([]byte{}, canon...)
	if prev != "" {
		prevBytes, err := hex.DecodeString(prev)
		if err != nil {
			return fmt.Errorf("streaming: decode prev hash: %w", err)
		}
		concat = append(concat, prevBytes...)
	}
	hash := sha256Sum(concat)

	sig, signerID, err := signer.Sign(hash)
	if err != nil {
		return fmt.Errorf("streaming: sign hash: %w", err)
	}

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.PrevHash = prev
	rec.Hash = hex.EncodeToString(hash)
	rec.Signature = base64.StdEncoding.EncodeToString(sig)
	rec.SignerID = signerID
	if rec.Ts.IsZero() {
		rec.Ts = time.Now().UTC()
	}

	payloadJSON, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("streaming: marshal payload: %w", err)
	}
	metaJSON := []byte("null")
	if rec.Metadata != nil {
		metaJSON, err = json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("streaming: marshal metadata: %w", err)
		}
	}

	q := `
		INSERT INTO delivery_audit_log
		  (id, event_type, payload, prev_hash, hash, signature, signer_id, ts, metadata, stream_status, stream_attempts)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,'pending',0)
	`
	_, err = s.db.ExecContext(ctx, q,
		rec.ID, rec.EventType, payloadJSON, rec.PrevHash, rec.Hash,
		rec.Signature, rec.SignerID, rec.Ts, metaJSON,
	)
	if err != nil {
		return fmt.Errorf("streaming: insert delivery_audit_log: %w", err)
	}
	return nil
}

// FetchPendingForStreaming selects a batch of pending/retry records,
// claims them (stream_status -> in_progress, stream_attempts++), and
// returns them. Uses SELECT ... FOR UPDATE SKIP LOCKED so multiple
// worker processes can drain the same table safely.
func (s *Store) FetchPendingForStreaming(ctx context.Context, batchSize int) ([]*Record, error) {
	if batchSize <= 0 {
		batchSize = 10
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("streaming: begin tx: %w", err)
	}
	defer func() {
		if tx != nil {
			_ = tx.Rollback()
		}
	}()

	q := `
		SELECT id, event_type, payload, prev_hash, hash, signature, signer_id, ts, metadata
		FROM delivery_audit_log
		WHERE stream_status IN ('pending','retry')
		ORDER BY ts ASC
		FOR UPDATE SKIP LOCKED
		LIMIT $1
	`
	rows, err := tx.QueryContext(ctx, q, batchSize)
	if err != nil {
		return nil, fmt.Errorf("streaming: select pending: %w", err)
	}

	ids := make([]string, 0, batchSize)
	records := make([]*Record, 0, batchSize)
	for rows.Next() {
		var (
			id, eventType, prevHash, hashStr, signature, signerID string
			payloadBytes, metaBytes                                []byte
			ts                                                     time.Time
		)
		if err := rows.Scan(&id, &eventType, &payloadBytes, &prevHash, &hashStr, &signature, &signerID, &ts, &metaBytes); err != nil {
			rows.Close()
			return nil, fmt.Errorf("streaming: scan pending row: %w", err)
		}
		var payload interface{}
		if len(payloadBytes) > 0 {
			_ = json.Unmarshal(payloadBytes, &payload)
		}
		var metadata interface{}
		if len(metaBytes) > 0 && string(metaBytes) != "null" {
			_ = json.Unmarshal(metaBytes, &metadata)
		}
		records = append(records, &Record{
			ID: id, EventType: eventType, Payload: payload,
			PrevHash: prevHash, Hash: hashStr, Signature: signature,
			SignerID: signerID, Ts: ts, Metadata: metadata,
		})
		ids = append(ids, id)
	}
	rows.Close()

	for _, id := range ids {
		_, err := tx.ExecContext(ctx, `
			UPDATE delivery_audit_log
			SET stream_status = 'in_progress',
			    stream_attempts = stream_attempts + 1,
			    last_stream_error = NULL
			WHERE id = $1
		`, id)
		if err != nil {
			return nil, fmt.Errorf("streaming: claim record %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("streaming: commit claim: %w", err)
	}
	tx = nil
	return records, nil
}

// MarkStreamResult records the outcome of producing+archiving a record.
// Mirrors kernel/internal/audit/pg_store.go's MarkEventStreamResult:
// success clears the error and marks 'complete'; failure marks 'retry'
// until maxStreamAttempts, then 'failed'.
func (s *Store) MarkStreamResult(ctx context.Context, recordID string, archivedKey sql.NullString, success bool, errMsg sql.NullString) error {
	const maxStreamAttempts = 5

	if success {
		q := `
			UPDATE delivery_audit_log
			SET s3_object_key = $1,
			    last_stream_error = NULL,
			    stream_status = 'complete'
			WHERE id = $2
		`
		_, err := s.db.ExecContext(ctx, q, archivedKey, recordID)
		if err != nil {
			return fmt.Errorf("streaming: mark success: %w", err)
		}
		return nil
	}

	q := fmt.Sprintf(`
		UPDATE delivery_audit_log
		SET last_stream_error = $1,
		    stream_status = CASE WHEN stream_attempts >= %d THEN 'failed' ELSE 'retry' END
		WHERE id = $2
	`, maxStreamAttempts)
	_, err := s.db.ExecContext(ctx, q, errMsg, recordID)
	if err != nil {
		return fmt.Errorf("streaming: mark failure: %w", err)
	}
	return nil
}
