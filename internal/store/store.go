// Package store is the relational persistence layer: tenants, API keys,
// targets, events and deliveries, backed by Postgres via database/sql and
// lib/pq (grounded on kernel/cmd/kernel/main.go's sql.Open("postgres", ...)
// and kernel/internal/audit/pg_store.go's query style).
package store

import (
	"context"
	"errors"

	"github.com/webhookrelay/relay/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence boundary the ingress, replay, and management
// handlers depend on. A single Postgres-backed implementation (PGStore)
// satisfies it; tests substitute sqlmock-driven *sql.DB instances.
type Store interface {
	// Tenants
	CreateTenant(ctx context.Context, name, token string) (*models.Tenant, error)
	GetTenantByToken(ctx context.Context, token string) (*models.Tenant, error)
	GetTenantByID(ctx context.Context, id string) (*models.Tenant, error)
	SetSigningSecret(ctx context.Context, tenantID, secret string) error

	// API keys
	CreateApiKey(ctx context.Context, tenantID, hashedKey string) (*models.ApiKey, error)
	ListApiKeys(ctx context.Context) ([]*models.ApiKey, error)

	// Targets
	UpsertTarget(ctx context.Context, tenantID, url, provider string, headers map[string]string) (*models.Target, error)
	GetTargetByTenant(ctx context.Context, tenantID string) (*models.Target, error)

	// Events
	// InsertEventIfAbsent attempts to create the Event row for
	// (tenantID, fingerprint). It returns the persisted row (existing or
	// freshly inserted) and whether this call actually created it.
	InsertEventIfAbsent(ctx context.Context, tenantID, fingerprint string, payload []byte) (ev *models.Event, created bool, err error)
	GetEvent(ctx context.Context, id string) (*models.Event, error)

	// Deliveries
	InsertDelivery(ctx context.Context, d *models.Delivery) error
	ListDeliveries(ctx context.Context, eventID string) ([]*models.Delivery, error)

	Ping(ctx context.Context) error
}
