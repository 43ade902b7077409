package streaming

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

type fakeProducer struct {
	produceFunc func(ctx context.Context, key, value []byte) (int, int64, time.Time, error)
}

func (f *fakeProducer) Produce(ctx context.Context, key, value []byte) (int, int64, time.Time, error) {
	if f.produceFunc != nil {
		return f.produceFunc(ctx, key, value)
	}
	return -1, -1, time.Now().UTC(), nil
}

func (f *fakeProducer) Close() error { return nil }

type fakeArchiver struct {
	archiveFunc func(ctx context.Context, rec *Record) (string, error)
}

func (f *fakeArchiver) ArchiveAndReturnKey(ctx context.Context, rec *Record) (string, error) {
	if f.archiveFunc != nil {
		return f.archiveFunc(ctx, rec)
	}
	return "archived/" + rec.ID + ".json", nil
}

func TestProcessRecord_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := NewStore(db)
	prod := &fakeProducer{}
	arch := &fakeArchiver{}
	streamer := NewStreamer(store, prod, arch, StreamerConfig{BatchSize: 1, MaxConcurrency: 1, PollInterval: time.Second})

	rec := &Record{
		ID:        "rec-1",
		EventType: "delivery.success",
		Payload:   map[string]interface{}{"eventId": "evt-1"},
		Ts:        time.Now().UTC(),
		Hash:      "deadbeef",
		Signature: "sig",
		SignerID:  "signer-1",
	}

	mock.ExpectExec("UPDATE\\s+delivery_audit_log").
		WithArgs(sqlmock.AnyArg(), rec.ID).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := streamer.processRecord(context.Background(), rec); err != nil {
		t.Fatalf("processRecord: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestProcessRecord_ProducerFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := NewStore(db)
	prod := &fakeProducer{
		produceFunc: func(ctx context.Context, key, value []byte) (int, int64, time.Time, error) {
			return -1, -1, time.Time{}, errors.New("kafka down")
		},
	}
	arch := &fakeArchiver{}
	streamer := NewStreamer(store, prod, arch, StreamerConfig{BatchSize: 1, MaxConcurrency: 1, PollInterval: time.Second})

	rec := &Record{ID: "rec-2", EventType: "delivery.failure", Payload: map[string]interface{}{"eventId": "evt-2"}, Ts: time.Now().UTC()}

	mock.ExpectExec("UPDATE\\s+delivery_audit_log").
		WithArgs(sqlmock.AnyArg(), rec.ID).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := streamer.processRecord(context.Background(), rec); err == nil {
		t.Fatalf("expected error from processRecord due to producer failure")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
