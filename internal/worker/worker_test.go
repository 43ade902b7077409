package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/webhookrelay/relay/internal/models"
	"github.com/webhookrelay/relay/internal/queue"
	"github.com/webhookrelay/relay/internal/store"
)

func TestNextDelay_ExponentialBackoff(t *testing.T) {
	cases := map[int]int{
		1: 30,
		2: 60,
		3: 120,
		4: 240,
		5: 480,
	}
	for attempt, wantSeconds := range cases {
		got := NextDelay(attempt)
		if got.Seconds() != float64(wantSeconds) {
			t.Fatalf("NextDelay(%d) = %s, want %ds", attempt, got, wantSeconds)
		}
	}
}

func TestNextDelay_ClampsBelowOne(t *testing.T) {
	if NextDelay(0) != NextDelay(1) {
		t.Fatalf("expected attempt<1 to clamp to attempt=1's delay")
	}
}

// fakeStore is a minimal store.Store covering only what processJob
// touches: GetEvent, GetTargetByTenant, InsertDelivery.
type fakeStore struct {
	event      *models.Event
	target     *models.Target
	deliveries []*models.Delivery
}

func (f *fakeStore) CreateTenant(ctx context.Context, name, token string) (*models.Tenant, error) {
	return nil, nil
}
func (f *fakeStore) GetTenantByToken(ctx context.Context, token string) (*models.Tenant, error) {
	return nil, nil
}
func (f *fakeStore) GetTenantByID(ctx context.Context, id string) (*models.Tenant, error) {
	return nil, nil
}
func (f *fakeStore) SetSigningSecret(ctx context.Context, tenantID, secret string) error { return nil }
func (f *fakeStore) CreateApiKey(ctx context.Context, tenantID, hashedKey string) (*models.ApiKey, error) {
	return nil, nil
}
func (f *fakeStore) ListApiKeys(ctx context.Context) ([]*models.ApiKey, error) { return nil, nil }
func (f *fakeStore) UpsertTarget(ctx context.Context, tenantID, url, provider string, headers map[string]string) (*models.Target, error) {
	return nil, nil
}
func (f *fakeStore) GetTargetByTenant(ctx context.Context, tenantID string) (*models.Target, error) {
	return f.target, nil
}
func (f *fakeStore) InsertEventIfAbsent(ctx context.Context, tenantID, fingerprint string, payload []byte) (*models.Event, bool, error) {
	return nil, false, nil
}
func (f *fakeStore) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	return f.event, nil
}
func (f *fakeStore) InsertDelivery(ctx context.Context, d *models.Delivery) error {
	f.deliveries = append(f.deliveries, d)
	return nil
}
func (f *fakeStore) ListDeliveries(ctx context.Context, eventID string) ([]*models.Delivery, error) {
	return f.deliveries, nil
}
func (f *fakeStore) Ping(ctx context.Context) error { return nil }

var _ store.Store = (*fakeStore)(nil)

// fakeQueue records every enqueued job.
type fakeQueue struct {
	enqueued []queue.DeliveryJob
	etas     []time.Time
}

func (q *fakeQueue) Enqueue(ctx context.Context, job queue.DeliveryJob, eta time.Time) error {
	q.enqueued = append(q.enqueued, job)
	q.etas = append(q.etas, eta)
	return nil
}
func (q *fakeQueue) Dequeue(ctx context.Context) (queue.DeliveryJob, bool, error) {
	return queue.DeliveryJob{}, false, nil
}

var _ queue.Queue = (*fakeQueue)(nil)

// TestProcessJob_BackoffDoublesPerAttempt drives processJob through a
// sequence of failing attempts and asserts NextRun-CreatedAt matches
// BASE_DELAY*2^(attempts-1) for each one (spec.md §8 scenario 4/5),
// catching the regression where the delay was computed one attempt
// ahead of the row it was attached to.
func TestProcessJob_BackoffDoublesPerAttempt(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer target.Close()

	st := &fakeStore{
		event:  &models.Event{ID: "evt-1", TenantID: "tenant-1", Payload: []byte(`{}`)},
		target: &models.Target{ID: "target-1", TenantID: "tenant-1", URL: target.URL},
	}
	q := &fakeQueue{}
	w := New(st, q, nil, nil, nil, nil)

	wantSeconds := []float64{30, 60, 120, 240}
	for attempt := 1; attempt <= len(wantSeconds); attempt++ {
		if err := w.processJob(context.Background(), queue.DeliveryJob{EventID: "evt-1", Attempt: attempt}); err != nil {
			t.Fatalf("processJob(attempt=%d): %v", attempt, err)
		}

		d := st.deliveries[len(st.deliveries)-1]
		if d.Attempts != attempt {
			t.Fatalf("attempt %d: delivery.Attempts = %d, want %d", attempt, d.Attempts, attempt)
		}
		if d.NextRun == nil {
			t.Fatalf("attempt %d: expected NextRun to be set", attempt)
		}
		gotDelay := d.NextRun.Sub(d.CreatedAt).Seconds()
		if gotDelay != wantSeconds[attempt-1] {
			t.Fatalf("attempt %d: next_run-created_at = %.0fs, want %.0fs", attempt, gotDelay, wantSeconds[attempt-1])
		}
	}

	if len(q.enqueued) != len(wantSeconds) {
		t.Fatalf("expected %d retries enqueued, got %d", len(wantSeconds), len(q.enqueued))
	}
	for i, job := range q.enqueued {
		if job.Attempt != i+2 {
			t.Fatalf("enqueued job %d: Attempt = %d, want %d", i, job.Attempt, i+2)
		}
	}
}

// TestProcessJob_GivesUpAfterMaxAttempts checks that attempt=MaxAttempts
// records a final failing Delivery with no NextRun and nothing is
// re-enqueued (spec.md §8 "give up after 5").
func TestProcessJob_GivesUpAfterMaxAttempts(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer target.Close()

	st := &fakeStore{
		event:  &models.Event{ID: "evt-1", TenantID: "tenant-1", Payload: []byte(`{}`)},
		target: &models.Target{ID: "target-1", TenantID: "tenant-1", URL: target.URL},
	}
	q := &fakeQueue{}
	w := New(st, q, nil, nil, nil, nil)

	if err := w.processJob(context.Background(), queue.DeliveryJob{EventID: "evt-1", Attempt: MaxAttempts}); err != nil {
		t.Fatalf("processJob: %v", err)
	}

	d := st.deliveries[len(st.deliveries)-1]
	if d.NextRun != nil {
		t.Fatalf("expected no NextRun at MaxAttempts, got %v", d.NextRun)
	}
	if len(q.enqueued) != 0 {
		t.Fatalf("expected no retry enqueued at MaxAttempts, got %d", len(q.enqueued))
	}
}

// TestProcessJob_SucceedsAndStops checks a 2xx response records a
// succeeded Delivery with no NextRun and enqueues no retry.
func TestProcessJob_SucceedsAndStops(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	st := &fakeStore{
		event:  &models.Event{ID: "evt-1", TenantID: "tenant-1", Payload: []byte(`{}`)},
		target: &models.Target{ID: "target-1", TenantID: "tenant-1", URL: target.URL},
	}
	q := &fakeQueue{}
	w := New(st, q, nil, nil, nil, nil)

	if err := w.processJob(context.Background(), queue.DeliveryJob{EventID: "evt-1", Attempt: 1}); err != nil {
		t.Fatalf("processJob: %v", err)
	}

	d := st.deliveries[len(st.deliveries)-1]
	if d.NextRun != nil {
		t.Fatalf("expected no NextRun on success, got %v", d.NextRun)
	}
	if len(q.enqueued) != 0 {
		t.Fatalf("expected no retry enqueued on success, got %d", len(q.enqueued))
	}
}
