package queue

import (
	"context"
	"testing"
	"time"
)

func TestMemoryQueue_FIFOApprox(t *testing.T) {
	q := NewMemoryQueue()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := q.Enqueue(ctx, DeliveryJob{EventID: "e1", Attempt: 1}, time.Time{}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.Enqueue(ctx, DeliveryJob{EventID: "e2", Attempt: 1}, time.Time{}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	job, ok, err := q.Dequeue(ctx)
	if err != nil || !ok {
		t.Fatalf("dequeue: ok=%v err=%v", ok, err)
	}
	if job.EventID != "e1" || job.Attempt != 1 {
		t.Fatalf("unexpected job: %+v", job)
	}

	job, ok, err = q.Dequeue(ctx)
	if err != nil || !ok {
		t.Fatalf("dequeue: ok=%v err=%v", ok, err)
	}
	if job.EventID != "e2" {
		t.Fatalf("expected e2 second, got %+v", job)
	}
}

func TestMemoryQueue_RespectsETA(t *testing.T) {
	q := NewMemoryQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	eta := time.Now().Add(150 * time.Millisecond)
	if err := q.Enqueue(ctx, DeliveryJob{EventID: "e2", Attempt: 2}, eta); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	start := time.Now()
	_, ok, err := q.Dequeue(ctx)
	if err != nil || !ok {
		t.Fatalf("dequeue: ok=%v err=%v", ok, err)
	}
	if time.Since(start) < 100*time.Millisecond {
		t.Fatalf("expected dequeue to wait for eta, took %s", time.Since(start))
	}
}
