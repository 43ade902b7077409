// Package models contains the canonical data records used throughout the
// relay: tenants, API keys, targets, events and their delivery attempts.
package models

import (
	"encoding/json"
	"time"
)

// Tenant owns an ingress token, zero or more API keys, one target, and many
// events. Created by the signup flow.
type Tenant struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Token         string    `json:"token"`
	SigningSecret string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}

// ApiKey belongs to one tenant and stores only a salted hash of the issued
// bearer secret. The raw secret is never persisted.
type ApiKey struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	HashedKey string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Target is the single outbound destination configured for a tenant.
// Upsert semantics: at most one row per tenant.
type Target struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenant_id"`
	URL       string            `json:"url"`
	Headers   map[string]string `json:"headers,omitempty"`
	Provider  string            `json:"provider"`
	CreatedAt time.Time         `json:"created_at"`
}

// Event is immutable once persisted. (TenantID, Fingerprint) is unique.
type Event struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenant_id"`
	Fingerprint string          `json:"fingerprint"`
	Payload     json.RawMessage `json:"payload"`
	Duplicate   bool            `json:"duplicate"`
	CreatedAt   time.Time       `json:"created_at"`
}

// BlobKey returns the deterministic object-store key for this event's
// payload blob: <tenant_id>/<fingerprint>.json.
func (e *Event) BlobKey() string {
	return e.TenantID + "/" + e.Fingerprint + ".json"
}

// Delivery is one append-only attempt log row for an Event. Attempts is the
// 1-indexed ordinal carried on the job that produced this row (attempts=0
// is reserved for the manual-replay audit marker).
type Delivery struct {
	ID        string     `json:"id"`
	EventID   string     `json:"event_id"`
	Attempts  int        `json:"attempts"`
	Status    int        `json:"status"`
	Response  string     `json:"response"`
	NextRun   *time.Time `json:"next_run,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// IngressPayload is the minimal schema an ingress body must conform to:
// {id, event, data?} with no extra top-level fields.
type IngressPayload struct {
	ID    string          `json:"id" validate:"required"`
	Event string          `json:"event" validate:"required"`
	Data  json.RawMessage `json:"data,omitempty"`
}
