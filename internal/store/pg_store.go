package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/webhookrelay/relay/internal/models"
)

// PGStore persists tenants, API keys, targets, events and deliveries into
// Postgres. Query style (numbered $n placeholders, ExecContext/QueryRowContext,
// sql.ErrNoRows -> ErrNotFound) is grounded on
// kernel/internal/audit/pg_store.go.
type PGStore struct {
	db *sql.DB
}

// NewPGStore constructs a Postgres-backed Store.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// Ping verifies connectivity to Postgres.
func (p *PGStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func newID() string { return uuid.New().String() }

// --- Tenants ---

func (p *PGStore) CreateTenant(ctx context.Context, name, token string) (*models.Tenant, error) {
	t := &models.Tenant{
		ID:        newID(),
		Name:      name,
		Token:     token,
		CreatedAt: time.Now().UTC(),
	}
	q := `INSERT INTO tenants (id, name, token, created_at) VALUES ($1,$2,$3,$4)`
	if _, err := p.db.ExecContext(ctx, q, t.ID, t.Name, t.Token, t.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert tenant: %w", err)
	}
	return t, nil
}

func (p *PGStore) GetTenantByToken(ctx context.Context, token string) (*models.Tenant, error) {
	q := `SELECT id, name, token, COALESCE(signing_secret, ''), created_at FROM tenants WHERE token=$1`
	return p.scanTenant(p.db.QueryRowContext(ctx, q, token))
}

func (p *PGStore) GetTenantByID(ctx context.Context, id string) (*models.Tenant, error) {
	q := `SELECT id, name, token, COALESCE(signing_secret, ''), created_at FROM tenants WHERE id=$1`
	return p.scanTenant(p.db.QueryRowContext(ctx, q, id))
}

func (p *PGStore) scanTenant(row *sql.Row) (*models.Tenant, error) {
	t := &models.Tenant{}
	if err := row.Scan(&t.ID, &t.Name, &t.Token, &t.SigningSecret, &t.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan tenant: %w", err)
	}
	return t, nil
}

func (p *PGStore) SetSigningSecret(ctx context.Context, tenantID, secret string) error {
	q := `UPDATE tenants SET signing_secret=$1 WHERE id=$2`
	res, err := p.db.ExecContext(ctx, q, secret, tenantID)
	if err != nil {
		return fmt.Errorf("set signing secret: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- API keys ---

func (p *PGStore) CreateApiKey(ctx context.Context, tenantID, hashedKey string) (*models.ApiKey, error) {
	k := &models.ApiKey{
		ID:        newID(),
		TenantID:  tenantID,
		HashedKey: hashedKey,
		CreatedAt: time.Now().UTC(),
	}
	q := `INSERT INTO api_keys (id, tenant_id, hashed_key, created_at) VALUES ($1,$2,$3,$4)`
	if _, err := p.db.ExecContext(ctx, q, k.ID, k.TenantID, k.HashedKey, k.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert api_key: %w", err)
	}
	return k, nil
}

// ListApiKeys returns every API key row. Verification iterates these and
// bcrypt-compares the submitted bearer token (see internal/apikey), the
// same approach as original_source/backend/app/db/crud.py's
// verify_api_key, which scans all ApiKey rows.
func (p *PGStore) ListApiKeys(ctx context.Context) ([]*models.ApiKey, error) {
	q := `SELECT id, tenant_id, hashed_key, created_at FROM api_keys`
	rows, err := p.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list api_keys: %w", err)
	}
	defer rows.Close()

	var out []*models.ApiKey
	for rows.Next() {
		k := &models.ApiKey{}
		if err := rows.Scan(&k.ID, &k.TenantID, &k.HashedKey, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan api_key: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// --- Targets ---

func (p *PGStore) UpsertTarget(ctx context.Context, tenantID, url, provider string, headers map[string]string) (*models.Target, error) {
	if provider == "" {
		provider = "stripe"
	}
	headersJSON, err := json.Marshal(headers)
	if err != nil {
		return nil, fmt.Errorf("marshal headers: %w", err)
	}

	existing, err := p.GetTargetByTenant(ctx, tenantID)
	if err != nil && err != ErrNotFound {
		return nil, err
	}

	if existing != nil {
		q := `UPDATE targets SET url=$1, provider=$2, headers=$3 WHERE tenant_id=$4`
		if _, err := p.db.ExecContext(ctx, q, url, provider, headersJSON, tenantID); err != nil {
			return nil, fmt.Errorf("update target: %w", err)
		}
		existing.URL = url
		existing.Provider = provider
		existing.Headers = headers
		return existing, nil
	}

	t := &models.Target{
		ID:        newID(),
		TenantID:  tenantID,
		URL:       url,
		Headers:   headers,
		Provider:  provider,
		CreatedAt: time.Now().UTC(),
	}
	q := `INSERT INTO targets (id, tenant_id, url, provider, headers, created_at) VALUES ($1,$2,$3,$4,$5,$6)`
	if _, err := p.db.ExecContext(ctx, q, t.ID, t.TenantID, t.URL, t.Provider, headersJSON, t.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert target: %w", err)
	}
	return t, nil
}

func (p *PGStore) GetTargetByTenant(ctx context.Context, tenantID string) (*models.Target, error) {
	q := `SELECT id, tenant_id, url, provider, headers, created_at FROM targets WHERE tenant_id=$1`
	row := p.db.QueryRowContext(ctx, q, tenantID)

	t := &models.Target{}
	var headersJSON []byte
	if err := row.Scan(&t.ID, &t.TenantID, &t.URL, &t.Provider, &headersJSON, &t.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan target: %w", err)
	}
	if len(headersJSON) > 0 {
		if err := json.Unmarshal(headersJSON, &t.Headers); err != nil {
			return nil, fmt.Errorf("unmarshal target headers: %w", err)
		}
	}
	return t, nil
}

// --- Events ---

// InsertEventIfAbsent relies on the UNIQUE(tenant_id, fingerprint)
// constraint: the INSERT carries ON CONFLICT DO NOTHING so two concurrent
// requests for the same (tenant, fingerprint) never both win — exactly one
// row is created, and the loser simply re-selects it (spec.md §4.2, §5).
func (p *PGStore) InsertEventIfAbsent(ctx context.Context, tenantID, fingerprint string, payload []byte) (*models.Event, bool, error) {
	ev := &models.Event{
		ID:          newID(),
		TenantID:    tenantID,
		Fingerprint: fingerprint,
		Payload:     payload,
		Duplicate:   false,
		CreatedAt:   time.Now().UTC(),
	}

	q := `
		INSERT INTO events (id, tenant_id, fingerprint, payload, duplicate, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (tenant_id, fingerprint) DO NOTHING
	`
	res, err := p.db.ExecContext(ctx, q, ev.ID, ev.TenantID, ev.Fingerprint, ev.Payload, ev.Duplicate, ev.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("insert event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return ev, true, nil
	}

	existing, err := p.getEventByFingerprint(ctx, tenantID, fingerprint)
	if err != nil {
		return nil, false, fmt.Errorf("fetch existing event after conflict: %w", err)
	}
	return existing, false, nil
}

func (p *PGStore) getEventByFingerprint(ctx context.Context, tenantID, fingerprint string) (*models.Event, error) {
	q := `SELECT id, tenant_id, fingerprint, payload, duplicate, created_at FROM events WHERE tenant_id=$1 AND fingerprint=$2`
	return p.scanEvent(p.db.QueryRowContext(ctx, q, tenantID, fingerprint))
}

func (p *PGStore) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	q := `SELECT id, tenant_id, fingerprint, payload, duplicate, created_at FROM events WHERE id=$1`
	return p.scanEvent(p.db.QueryRowContext(ctx, q, id))
}

func (p *PGStore) scanEvent(row *sql.Row) (*models.Event, error) {
	ev := &models.Event{}
	if err := row.Scan(&ev.ID, &ev.TenantID, &ev.Fingerprint, &ev.Payload, &ev.Duplicate, &ev.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}
	return ev, nil
}

// --- Deliveries ---

// InsertDelivery appends a Delivery row. Delivery rows are append-only and
// must be written in ascending Attempts order per event (spec.md §5); this
// method does not enforce ordering itself — callers (the worker, and the
// replay handler) are responsible for supplying attempts in order.
func (p *PGStore) InsertDelivery(ctx context.Context, d *models.Delivery) error {
	if d.ID == "" {
		d.ID = newID()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	q := `
		INSERT INTO deliveries (id, event_id, attempts, status, response, next_run, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`
	_, err := p.db.ExecContext(ctx, q, d.ID, d.EventID, d.Attempts, d.Status, d.Response, d.NextRun, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

func (p *PGStore) ListDeliveries(ctx context.Context, eventID string) ([]*models.Delivery, error) {
	q := `SELECT id, event_id, attempts, status, response, next_run, created_at FROM deliveries WHERE event_id=$1 ORDER BY attempts ASC`
	rows, err := p.db.QueryContext(ctx, q, eventID)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var out []*models.Delivery
	for rows.Next() {
		d := &models.Delivery{}
		if err := rows.Scan(&d.ID, &d.EventID, &d.Attempts, &d.Status, &d.Response, &d.NextRun, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

var _ Store = (*PGStore)(nil)
