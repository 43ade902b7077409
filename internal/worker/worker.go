// Package worker implements the delivery worker: it dequeues
// (event_id, attempt) jobs, POSTs the event payload to the tenant's
// target, records the outcome, and either schedules a backoff retry or
// gives up at MAX_ATTEMPTS, per spec.md §4.3.
package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/webhookrelay/relay/internal/models"
	"github.com/webhookrelay/relay/internal/queue"
	"github.com/webhookrelay/relay/internal/signing"
	"github.com/webhookrelay/relay/internal/store"
	"github.com/webhookrelay/relay/internal/streaming"
)

const (
	// BaseDelay and MaxAttempts are spec.md §4.3's retry schedule:
	// BaseDelay * 2^(attempt-1), giving up after MaxAttempts.
	BaseDelay   = 30 * time.Second
	MaxAttempts = 5

	deliveryTimeout = 10 * time.Second
)

// NextDelay returns the backoff delay before attempt number attempt
// (1-indexed) should run, per spec.md §4.3.
func NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return BaseDelay * time.Duration(1<<uint(attempt-1))
}

// Worker pulls delivery jobs and executes them with bounded concurrency.
// Grounded on kernel/internal/audit/streamer.go's claim-and-process loop
// shape, applied to internal/queue instead of a Postgres claim query
// (spec.md §4.6 explicitly models the queue as a capability interface,
// not a specific broker).
type Worker struct {
	st       store.Store
	q        queue.Queue
	client   *http.Client
	stream   *streaming.Store
	signer   signing.Signer
	producer streaming.Producer
	archiver streaming.Archiver
}

// New constructs a Worker. stream/signer/producer/archiver may be nil,
// in which case delivery outcomes are persisted to "deliveries" only and
// no audit trail is streamed (useful for local/test runs without Kafka/S3
// configured).
func New(st store.Store, q queue.Queue, stream *streaming.Store, signer signing.Signer, producer streaming.Producer, archiver streaming.Archiver) *Worker {
	return &Worker{
		st:       st,
		q:        q,
		client:   &http.Client{Timeout: deliveryTimeout},
		stream:   stream,
		signer:   signer,
		producer: producer,
		archiver: archiver,
	}
}

// Run dequeues due jobs and processes them with up to maxConcurrency
// goroutines in flight, until ctx is cancelled.
func (w *Worker) Run(ctx context.Context, pollInterval time.Duration, maxConcurrency int) {
	if maxConcurrency <= 0 {
		maxConcurrency = 5
	}
	log.Printf("worker: starting (concurrency=%d poll=%s)", maxConcurrency, pollInterval)
	defer log.Printf("worker: stopped")

	sem := make(chan struct{}, maxConcurrency)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, ok, err := w.q.Dequeue(ctx)
		if err != nil {
			log.Printf("worker: dequeue: %v", err)
			time.Sleep(pollInterval)
			continue
		}
		if !ok {
			time.Sleep(pollInterval)
			continue
		}

		sem <- struct{}{}
		go func(job queue.DeliveryJob) {
			defer func() { <-sem }()
			if err := w.processJob(ctx, job); err != nil {
				log.Printf("worker: process job event=%s attempt=%d: %v", job.EventID, job.Attempt, err)
			}
		}(job)
	}
}

// processJob loads the event and target, attempts delivery, appends a
// Delivery row, and either schedules the next attempt or terminates.
func (w *Worker) processJob(ctx context.Context, job queue.DeliveryJob) error {
	ev, err := w.st.GetEvent(ctx, job.EventID)
	if err != nil {
		return fmt.Errorf("load event: %w", err)
	}
	target, err := w.st.GetTargetByTenant(ctx, ev.TenantID)
	if err != nil {
		return fmt.Errorf("load target: %w", err)
	}

	status, respBody, deliverErr := w.deliver(ctx, target, ev)
	succeeded := deliverErr == nil && status >= 200 && status < 300

	d := &models.Delivery{
		ID:        uuid.New().String(),
		EventID:   ev.ID,
		Attempts:  job.Attempt,
		Status:    status,
		Response:  respBody,
		CreatedAt: time.Now().UTC(),
	}

	if !succeeded && job.Attempt < MaxAttempts {
		next := d.CreatedAt.Add(NextDelay(job.Attempt))
		d.NextRun = &next
	}

	if err := w.st.InsertDelivery(ctx, d); err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}

	eventType := "delivery.failure"
	if succeeded {
		eventType = "delivery.success"
	}
	w.appendAuditRecord(ctx, ev, target, job.Attempt, status, respBody, succeeded, eventType)

	if succeeded {
		return nil
	}
	if job.Attempt >= MaxAttempts {
		log.Printf("worker: event=%s exhausted %d attempts, giving up", ev.ID, MaxAttempts)
		return nil
	}

	nextJob := queue.DeliveryJob{EventID: ev.ID, Attempt: job.Attempt + 1}
	if err := w.q.Enqueue(ctx, nextJob, *d.NextRun); err != nil {
		return fmt.Errorf("enqueue retry: %w", err)
	}
	return nil
}

func (w *Worker) deliver(ctx context.Context, target *models.Target, ev *models.Event) (int, string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, target.URL, bytes.NewReader(ev.Payload))
	if err != nil {
		return 0, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range target.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return 0, err.Error(), err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	return resp.StatusCode, string(body), nil
}

// appendAuditRecord persists the delivery outcome into the
// delivery_audit_log trail when streaming is configured. Failure to
// append the audit record never fails the delivery itself — the
// "deliveries" row inserted above is already the source of truth.
func (w *Worker) appendAuditRecord(ctx context.Context, ev *models.Event, target *models.Target, attempt, status int, respBody string, succeeded bool, eventType string) {
	if w.stream == nil || w.signer == nil {
		return
	}
	rec := &streaming.Record{
		EventType: eventType,
		Payload: streaming.DeliveryOutcome{
			EventID:      ev.ID,
			TenantID:     ev.TenantID,
			TargetID:     target.ID,
			Attempt:      attempt,
			Status:       status,
			ResponseBody: respBody,
			Succeeded:    succeeded,
		},
	}
	if err := w.stream.Append(ctx, rec, w.signer); err != nil {
		log.Printf("worker: append audit record event=%s: %v", ev.ID, err)
	}
}

// MarkManualReplay writes the attempts=0 audit marker row spec.md's
// replay endpoint convention expects (DESIGN.md Open Question 4), then
// enqueues the real attempt=1 job. It writes no delivery_audit_log
// record; only the attempts that follow are recorded there.
func MarkManualReplay(ctx context.Context, st store.Store, q queue.Queue, eventID string) error {
	marker := &models.Delivery{
		ID:        uuid.New().String(),
		EventID:   eventID,
		Attempts:  0,
		Status:    0,
		Response:  "manual replay",
		CreatedAt: time.Now().UTC(),
	}
	if err := st.InsertDelivery(ctx, marker); err != nil {
		return fmt.Errorf("insert replay marker: %w", err)
	}
	return q.Enqueue(ctx, queue.DeliveryJob{EventID: eventID, Attempt: 1}, time.Time{})
}
