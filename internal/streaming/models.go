// Package streaming gives every recorded delivery attempt the same
// hash-chained, Ed25519-signed, Kafka+S3 durable trail the teacher gives
// its own audit log (kernel/internal/audit), applied to Delivery records
// instead of AuditEvent records. It is intentionally a separate
// bookkeeping table (delivery_audit_log) rather than extra columns on
// "deliveries", so models.Delivery stays exactly the shape the
// specification names.
package streaming

import "time"

// Record is one hash-chained, signed audit entry for a delivery attempt.
// Envelope mirrors AuditEvent's shape (id/eventType/payload/prevHash/
// hash/signature/signerId/ts/metadata) so the canonical-JSON and signing
// helpers built for that shape work unchanged here.
type Record struct {
	ID        string      `json:"id"`
	EventType string      `json:"eventType"` // "delivery.success" | "delivery.failure"
	Payload   interface{} `json:"payload"`
	PrevHash  string      `json:"prevHash,omitempty"`
	Hash      string      `json:"hash,omitempty"`
	Signature string      `json:"signature,omitempty"`
	SignerID  string      `json:"signerId,omitempty"`
	Ts        time.Time   `json:"ts"`
	Metadata  interface{} `json:"metadata,omitempty"`

	// StreamStatus/StreamAttempts/LastStreamErr/S3ObjectKey are bookkeeping columns,
	// not part of the signed envelope.
	StreamStatus   string
	StreamAttempts int
	LastStreamErr  string
	S3ObjectKey    string
}

// DeliveryOutcome is the payload embedded in a Record for a completed
// delivery attempt.
type DeliveryOutcome struct {
	EventID      string `json:"eventId"`
	TenantID     string `json:"tenantId"`
	TargetID     string `json:"targetId"`
	Attempt      int    `json:"attempt"`
	Status       int    `json:"status"`
	ResponseBody string `json:"responseBody"`
	Succeeded    bool   `json:"succeeded"`
}
