// Package blob is the object-storage adapter for raw event payloads and
// (via internal/streaming) delivery audit envelopes. Grounded on
// kernel/internal/audit/s3_archiver.go and
// original_source/backend/app/storage/s3_client.py.
package blob

import "context"

// Store writes content-typed blobs to object storage, server-side
// encrypted where supported (spec.md §4.7).
type Store interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}
