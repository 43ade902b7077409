package streaming

import "time"

// recordEnvelope builds the canonical wire/archive representation of a
// Record: the same field set is produced to Kafka and archived to S3, so
// both paths canonicalize from this single map rather than maintaining
// two copies that could drift apart.
func recordEnvelope(rec *Record) map[string]interface{} {
	return map[string]interface{}{
		"id":        rec.ID,
		"eventType": rec.EventType,
		"payload":   rec.Payload,
		"prevHash":  rec.PrevHash,
		"hash":      rec.Hash,
		"signature": rec.Signature,
		"signerId":  rec.SignerID,
		"ts":        rec.Ts.Format(time.RFC3339Nano),
		"metadata":  rec.Metadata,
	}
}

// canonicalRecordBytes returns rec's envelope as deterministic canonical
// JSON, suitable both for producing and for archiving.
func canonicalRecordBytes(rec *Record) ([]byte, error) {
	return canonicalEnvelope(recordEnvelope(rec))
}
