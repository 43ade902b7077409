package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/webhookrelay/relay/internal/models"
)

func TestInsertEventIfAbsent_Created(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()
	s := NewPGStore(db)

	mock.ExpectExec("INSERT INTO events").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ev, created, err := s.InsertEventIfAbsent(context.Background(), "tenant-1", "abc123", []byte(`{"id":"evt_1"}`))
	if err != nil {
		t.Fatalf("InsertEventIfAbsent error: %v", err)
	}
	if !created {
		t.Fatal("expected created=true")
	}
	if ev.TenantID != "tenant-1" || ev.Fingerprint != "abc123" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertEventIfAbsent_Duplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()
	s := NewPGStore(db)

	mock.ExpectExec("INSERT INTO events").
		WillReturnResult(sqlmock.NewResult(0, 0))

	rows := sqlmock.NewRows([]string{"id", "tenant_id", "fingerprint", "payload", "duplicate", "created_at"}).
		AddRow("evt-existing", "tenant-1", "abc123", []byte(`{"id":"evt_1"}`), false, time.Now().UTC())
	mock.ExpectQuery("SELECT id, tenant_id, fingerprint, payload, duplicate, created_at FROM events WHERE tenant_id=").
		WillReturnRows(rows)

	ev, created, err := s.InsertEventIfAbsent(context.Background(), "tenant-1", "abc123", []byte(`{"id":"evt_1"}`))
	if err != nil {
		t.Fatalf("InsertEventIfAbsent error: %v", err)
	}
	if created {
		t.Fatal("expected created=false on conflict")
	}
	if ev.ID != "evt-existing" {
		t.Fatalf("expected existing row returned, got %+v", ev)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetEvent_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()
	s := NewPGStore(db)

	mock.ExpectQuery("SELECT id, tenant_id, fingerprint, payload, duplicate, created_at FROM events WHERE id=").
		WillReturnError(sql.ErrNoRows)

	_, err = s.GetEvent(context.Background(), "missing")
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertDelivery_AscendingAttempts(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()
	s := NewPGStore(db)

	for i := 0; i < 2; i++ {
		mock.ExpectExec("INSERT INTO deliveries").WillReturnResult(sqlmock.NewResult(0, 1))
	}

	for attempt := 1; attempt <= 2; attempt++ {
		d := &models.Delivery{EventID: "evt-1", Attempts: attempt, Status: 500, Response: "err"}
		if err := s.InsertDelivery(context.Background(), d); err != nil {
			t.Fatalf("InsertDelivery error: %v", err)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
