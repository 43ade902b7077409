// Package queue is the at-least-once, delayed-execution job queue
// capability spec.md §4.6/§9 describes: "model as a capability:
// Queue.enqueue(job_name, args, eta?) + worker dispatch". Attempt counting
// lives on the job payload, not in the queue or any broker-side retry
// machinery (spec.md §9 design note).
package queue

import (
	"context"
	"encoding/json"
	"time"
)

// DeliveryJob is the payload carried by every queued job: which event to
// attempt delivery for, and which 1-indexed attempt this is.
type DeliveryJob struct {
	EventID string `json:"event_id"`
	Attempt int    `json:"attempt"`
}

// Queue is the capability interface the ingress, replay, and worker
// depend on. A Redis-backed sorted-set implementation (RedisQueue)
// satisfies it for production; an in-memory implementation is provided
// for tests and single-process demos.
type Queue interface {
	// Enqueue schedules job for execution at or after eta. A zero eta
	// means "as soon as possible".
	Enqueue(ctx context.Context, job DeliveryJob, eta time.Time) error

	// Dequeue blocks (bounded by ctx) until a due job is available, and
	// returns it. At-least-once: the same job may be returned more than
	// once if a consumer crashes after dequeue but before ack.
	Dequeue(ctx context.Context) (DeliveryJob, bool, error)
}

func marshalJob(job DeliveryJob) ([]byte, error) {
	return json.Marshal(job)
}

func unmarshalJob(b []byte) (DeliveryJob, error) {
	var job DeliveryJob
	err := json.Unmarshal(b, &job)
	return job, err
}
