package httpserver

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/webhookrelay/relay/internal/apikey"
	"github.com/webhookrelay/relay/internal/config"
	"github.com/webhookrelay/relay/internal/models"
	"github.com/webhookrelay/relay/internal/queue"
	"github.com/webhookrelay/relay/internal/ratelimit"
	"github.com/webhookrelay/relay/internal/store"
)

// fakeStore is an in-memory store.Store, used so httpserver's handlers
// can be exercised end to end without a live Postgres, the way
// httptest.NewServer is meant to be used.
type fakeStore struct {
	tenants  map[string]*models.Tenant // by id
	byToken  map[string]string         // token -> id
	apiKeys  []*models.ApiKey
	targets  map[string]*models.Target // by tenant id
	events   map[string]*models.Event  // by id
	byFp     map[string]string         // tenant_id/fingerprint -> event id
	delivery []*models.Delivery
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tenants: map[string]*models.Tenant{},
		byToken: map[string]string{},
		targets: map[string]*models.Target{},
		events:  map[string]*models.Event{},
		byFp:    map[string]string{},
	}
}

func (f *fakeStore) CreateTenant(ctx context.Context, name, token string) (*models.Tenant, error) {
	t := &models.Tenant{ID: fmt.Sprintf("tenant-%d", len(f.tenants)+1), Name: name, Token: token, CreatedAt: time.Now().UTC()}
	f.tenants[t.ID] = t
	f.byToken[token] = t.ID
	return t, nil
}

func (f *fakeStore) GetTenantByToken(ctx context.Context, token string) (*models.Tenant, error) {
	id, ok := f.byToken[token]
	if !ok {
		return nil, store.ErrNotFound
	}
	return f.tenants[id], nil
}

func (f *fakeStore) GetTenantByID(ctx context.Context, id string) (*models.Tenant, error) {
	t, ok := f.tenants[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) SetSigningSecret(ctx context.Context, tenantID, secret string) error {
	t, ok := f.tenants[tenantID]
	if !ok {
		return store.ErrNotFound
	}
	t.SigningSecret = secret
	return nil
}

func (f *fakeStore) CreateApiKey(ctx context.Context, tenantID, hashedKey string) (*models.ApiKey, error) {
	k := &models.ApiKey{ID: fmt.Sprintf("key-%d", len(f.apiKeys)+1), TenantID: tenantID, HashedKey: hashedKey, CreatedAt: time.Now().UTC()}
	f.apiKeys = append(f.apiKeys, k)
	return k, nil
}

func (f *fakeStore) ListApiKeys(ctx context.Context) ([]*models.ApiKey, error) {
	return f.apiKeys, nil
}

func (f *fakeStore) UpsertTarget(ctx context.Context, tenantID, url, provider string, headers map[string]string) (*models.Target, error) {
	if provider == "" {
		provider = "stripe"
	}
	t := &models.Target{ID: "target-" + tenantID, TenantID: tenantID, URL: url, Provider: provider, Headers: headers, CreatedAt: time.Now().UTC()}
	f.targets[tenantID] = t
	return t, nil
}

func (f *fakeStore) GetTargetByTenant(ctx context.Context, tenantID string) (*models.Target, error) {
	t, ok := f.targets[tenantID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) InsertEventIfAbsent(ctx context.Context, tenantID, fingerprint string, payload []byte) (*models.Event, bool, error) {
	key := tenantID + "/" + fingerprint
	if id, ok := f.byFp[key]; ok {
		return f.events[id], false, nil
	}
	ev := &models.Event{ID: fmt.Sprintf("evt-%d", len(f.events)+1), TenantID: tenantID, Fingerprint: fingerprint, Payload: payload, CreatedAt: time.Now().UTC()}
	f.events[ev.ID] = ev
	f.byFp[key] = ev.ID
	return ev, true, nil
}

func (f *fakeStore) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	ev, ok := f.events[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return ev, nil
}

func (f *fakeStore) InsertDelivery(ctx context.Context, d *models.Delivery) error {
	f.delivery = append(f.delivery, d)
	return nil
}

func (f *fakeStore) ListDeliveries(ctx context.Context, eventID string) ([]*models.Delivery, error) {
	var out []*models.Delivery
	for _, d := range f.delivery {
		if d.EventID == eventID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }

var _ store.Store = (*fakeStore)(nil)

// fakeQueue records enqueued jobs without ever handing them out; the
// ingress/replay tests only care that a job is accepted, not that it is
// delivered.
type fakeQueue struct{ jobs []queue.DeliveryJob }

func (q *fakeQueue) Enqueue(ctx context.Context, job queue.DeliveryJob, eta time.Time) error {
	q.jobs = append(q.jobs, job)
	return nil
}
func (q *fakeQueue) Dequeue(ctx context.Context) (queue.DeliveryJob, bool, error) {
	return queue.DeliveryJob{}, false, nil
}

var _ queue.Queue = (*fakeQueue)(nil)

func newTestApp() (*AppContext, *fakeStore) {
	st := newFakeStore()
	return &AppContext{
		Config:     &config.Config{APIKeySalt: "pepper", IngressBodyLimitBytes: 1 << 20, SignatureTolerance: 300 * time.Second},
		Store:      st,
		Queue:      &fakeQueue{},
		GlobalRate: ratelimit.NewInMemoryStore(),
		TenantRate: ratelimit.NewInMemoryStore(),
	}, st
}

func signBody(secret string, body []byte, ts int64) string {
	signed := fmt.Sprintf("%d.%s", ts, body)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signed))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestHandleIngress_AcceptsValidSignature(t *testing.T) {
	app, st := newTestApp()
	tenant, err := st.CreateTenant(context.Background(), "Acme", "tok123")
	require.NoError(t, err)
	require.NoError(t, st.SetSigningSecret(context.Background(), tenant.ID, "whsec_test"))

	r := NewRouter(app)
	srv := httptest.NewServer(r)
	defer srv.Close()

	body := []byte(`{"id":"evt_1","event":"charge.succeeded"}`)
	header := signBody("whsec_test", body, time.Now().Unix())

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/in/tok123", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Stripe-Signature", header)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleIngress_UnknownTokenReturns404(t *testing.T) {
	app, _ := newTestApp()
	r := NewRouter(app)
	srv := httptest.NewServer(r)
	defer srv.Close()

	body := []byte(`{"id":"evt_1","event":"charge.succeeded"}`)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/in/does-not-exist", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleIngress_BadSignatureReturns400(t *testing.T) {
	app, st := newTestApp()
	tenant, err := st.CreateTenant(context.Background(), "Acme", "tok123")
	require.NoError(t, err)
	require.NoError(t, st.SetSigningSecret(context.Background(), tenant.ID, "whsec_test"))

	r := NewRouter(app)
	srv := httptest.NewServer(r)
	defer srv.Close()

	body := []byte(`{"id":"evt_1","event":"charge.succeeded"}`)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/in/tok123", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Stripe-Signature", signBody("wrong-secret", body, time.Now().Unix()))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleSignupAndMe(t *testing.T) {
	app, _ := newTestApp()
	r := NewRouter(app)
	srv := httptest.NewServer(r)
	defer srv.Close()

	signupBody, _ := json.Marshal(map[string]string{"name": "Acme"})
	resp, err := http.Post(srv.URL+"/signup", "application/json", bytes.NewReader(signupBody))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		ApiKey string `json:"api_key"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.ApiKey)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/me", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+out.ApiKey)

	meResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer meResp.Body.Close()
	require.Equal(t, http.StatusOK, meResp.StatusCode)
}

func TestHandleMe_NoAuthReturns401(t *testing.T) {
	app, _ := newTestApp()
	r := NewRouter(app)
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/me")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandleReplay_UnknownEventReturns404(t *testing.T) {
	app, st := newTestApp()
	rawKey, err := apikey.Generate()
	require.NoError(t, err)
	hashed, err := apikey.Hash(rawKey, app.Config.APIKeySalt)
	require.NoError(t, err)
	tenant, err := st.CreateTenant(context.Background(), "Acme", "tok123")
	require.NoError(t, err)
	_, err = st.CreateApiKey(context.Background(), tenant.ID, hashed)
	require.NoError(t, err)

	r := NewRouter(app)
	srv := httptest.NewServer(r)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/events/does-not-exist/replay", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+rawKey)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
