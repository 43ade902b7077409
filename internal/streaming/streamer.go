package streaming

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/webhookrelay/relay/internal/canonical"
)

func canonicalEnvelope(envelope map[string]interface{}) ([]byte, error) {
	return canonical.Marshal(envelope)
}

// StreamerConfig configures the durable DB-first streamer loop.
// Grounded on kernel/internal/audit/streamer.go's StreamerConfig.
type StreamerConfig struct {
	BatchSize      int
	PollInterval   time.Duration
	MaxConcurrency int
}

// Streamer drains delivery_audit_log: it claims pending/retry rows with
// SELECT ... FOR UPDATE SKIP LOCKED, produces each to Kafka, archives it
// to S3, and marks the row's outcome so Postgres stays the source of
// truth for what has and hasn't shipped. Adapted from
// kernel/internal/audit/streamer.go.
type Streamer struct {
	store    *Store
	producer Producer
	archiver Archiver
	cfg      StreamerConfig
	wg       sync.WaitGroup
}

// NewStreamer constructs a Streamer, filling in defaults for zero cfg
// fields.
func NewStreamer(store *Store, producer Producer, archiver Archiver, cfg StreamerConfig) *Streamer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 5
	}
	return &Streamer{store: store, producer: producer, archiver: archiver, cfg: cfg}
}

// Run polls for pending work and streams it until ctx is cancelled.
func (s *Streamer) Run(ctx context.Context) error {
	log.Printf("streaming: starting (batch=%d concurrency=%d)", s.cfg.BatchSize, s.cfg.MaxConcurrency)
	defer log.Printf("streaming: stopped")

	sem := make(chan struct{}, s.cfg.MaxConcurrency)

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			if s.producer != nil {
				_ = s.producer.Close()
			}
			return ctx.Err()
		default:
		}

		records, err := s.store.FetchPendingForStreaming(ctx, s.cfg.BatchSize)
		if err != nil {
			log.Printf("streaming: fetch pending: %v", err)
			time.Sleep(s.cfg.PollInterval)
			continue
		}
		if len(records) == 0 {
			time.Sleep(s.cfg.PollInterval)
			continue
		}

		for _, rec := range records {
			select {
			case <-ctx.Done():
			default:
			}
			sem <- struct{}{}
			s.wg.Add(1)
			go func(rec *Record) {
				defer func() {
					<-sem
					s.wg.Done()
				}()
				if err := s.processRecord(ctx, rec); err != nil {
					log.Printf("streaming: process record %s: %v", rec.ID, err)
				}
			}(rec)
		}

		for i := 0; i < s.cfg.MaxConcurrency; i++ {
			sem <- struct{}{}
		}
		for i := 0; i < s.cfg.MaxConcurrency; i++ {
			<-sem
		}
	}
}

// processRecord ships one claimed row to Kafka, archives it to S3, and
// records the outcome. Each step's failure is persisted via
// MarkStreamResult before returning, so a retried row always carries the
// most recent failure reason.
func (s *Streamer) processRecord(parentCtx context.Context, rec *Record) error {
	ctx, cancel := context.WithTimeout(parentCtx, 30*time.Second)
	defer cancel()

	canonBytes, err := canonicalRecordBytes(rec)
	if err != nil {
		return s.failRecord(parentCtx, rec.ID, err)
	}

	if _, _, _, err := s.produce(ctx, rec.ID, canonBytes); err != nil {
		return s.failRecord(parentCtx, rec.ID, fmt.Errorf("kafka produce: %w", err))
	}

	archivedKey, err := s.archive(ctx, rec)
	if err != nil {
		return s.failRecord(parentCtx, rec.ID, fmt.Errorf("s3 archive: %w", err))
	}

	if err := s.store.MarkStreamResult(parentCtx, rec.ID, archivedKey, true, sql.NullString{}); err != nil {
		return fmt.Errorf("streaming: mark success: %w", err)
	}
	return nil
}

func (s *Streamer) produce(ctx context.Context, recordID string, canonBytes []byte) (int, int64, time.Time, error) {
	return s.producer.Produce(ctx, []byte(recordID), canonBytes)
}

// archive uploads rec when an archiver is configured. A nil archiver is
// valid (S3 archiving is optional, per the same Kafka+bucket gate that
// enables streaming at all) and is treated as a no-op, not an error.
func (s *Streamer) archive(ctx context.Context, rec *Record) (sql.NullString, error) {
	if s.archiver == nil {
		return sql.NullString{}, nil
	}
	key, err := s.archiver.ArchiveAndReturnKey(ctx, rec)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: key, Valid: true}, nil
}

// failRecord records err's message on rec's row via MarkStreamResult
// (status 'retry', or 'failed' once its attempts are used up) and returns
// a wrapped error for the caller to log.
func (s *Streamer) failRecord(ctx context.Context, recordID string, err error) error {
	_ = s.store.MarkStreamResult(ctx, recordID, sql.NullString{}, false, nullErr(err))
	return fmt.Errorf("streaming: %w", err)
}

func nullErr(err error) sql.NullString {
	return sql.NullString{String: err.Error(), Valid: true}
}
