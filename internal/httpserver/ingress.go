package httpserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/webhookrelay/relay/internal/fingerprint"
	"github.com/webhookrelay/relay/internal/models"
	"github.com/webhookrelay/relay/internal/queue"
	"github.com/webhookrelay/relay/internal/ratelimit"
	"github.com/webhookrelay/relay/internal/signature"
	"github.com/webhookrelay/relay/internal/store"
)

// handleIngress implements POST /in/{token}, running spec.md §4.2's
// preconditions in order (first failure wins) before admitting the
// event.
func handleIngress(app *AppContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		// 1. Body size <= 1 MiB, rejected before reading when possible.
		if r.ContentLength > app.Config.IngressBodyLimitBytes {
			writeDetail(w, http.StatusRequestEntityTooLarge, "Payload too large")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, app.Config.IngressBodyLimitBytes)

		// 2. Tenant resolution by token.
		token := chi.URLParam(r, "token")
		tenant, err := app.Store.GetTenantByToken(ctx, token)
		if err == store.ErrNotFound {
			writeDetail(w, http.StatusNotFound, "Not Found")
			return
		}
		if err != nil {
			log.Printf("ingress: resolve tenant: %v", err)
			writeDetail(w, http.StatusInternalServerError, "Internal error")
			return
		}

		// Per-tenant rate limit (spec.md §4.6: 30 req/60s).
		if err := ratelimit.Allow(ctx, app.TenantRate, tenant.ID, ratelimit.PerTenantPolicy); err != nil {
			writeDetail(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}

		raw, err := io.ReadAll(r.Body)
		if err != nil {
			writeDetail(w, http.StatusRequestEntityTooLarge, "Payload too large")
			return
		}

		// 3. Non-empty body.
		if len(raw) == 0 {
			writeDetail(w, http.StatusBadRequest, "Empty JSON body")
			return
		}

		// 4. Signature header present (case-insensitive name via net/http's
		// canonicalization).
		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			writeDetail(w, http.StatusBadRequest, "Missing signature header")
			return
		}

		// 5. Tenant has a signing_secret configured.
		if tenant.SigningSecret == "" {
			writeDetail(w, http.StatusBadRequest, "Tenant has no signing secret configured")
			return
		}

		// 6. Signature verification.
		if err := signature.Verify(raw, sigHeader, tenant.SigningSecret, app.Config.SignatureTolerance); err != nil {
			writeDetail(w, http.StatusBadRequest, "Invalid Stripe signature")
			return
		}

		// 7. Body parses as {id, event, data?} with no extra top-level
		// fields.
		payload, fieldErrs := decodeIngressPayload(raw)
		if fieldErrs != nil {
			writeFieldErrors(w, fieldErrs)
			return
		}
		if app.Validate != nil {
			if err := app.Validate.Struct(payload); err != nil {
				writeFieldErrors(w, map[string]string{"_": err.Error()})
				return
			}
		}

		fp := fingerprint.Compute(raw)
		ev, created, err := app.Store.InsertEventIfAbsent(ctx, tenant.ID, fp, raw)
		if err != nil {
			log.Printf("ingress: insert event: %v", err)
			writeDetail(w, http.StatusInternalServerError, "Internal error")
			return
		}

		if created {
			if err := app.Queue.Enqueue(ctx, queue.DeliveryJob{EventID: ev.ID, Attempt: 1}, time.Time{}); err != nil {
				log.Printf("ingress: enqueue delivery job event=%s: %v", ev.ID, err)
			}
		}

		// Best-effort blob write; failure is logged, never fails the
		// request (spec.md §4.2, §4.7 — the index row is authoritative).
		if app.Blob != nil {
			if err := app.Blob.Put(ctx, ev.BlobKey(), raw, "application/json"); err != nil {
				log.Printf("ingress: blob put key=%s: %v", ev.BlobKey(), err)
			}
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
	}
}

// decodeIngressPayload enforces the minimal schema {id:string,
// event:string, data?:object} with no extra top-level fields.
func decodeIngressPayload(raw []byte) (*models.IngressPayload, map[string]string) {
	var loose map[string]json.RawMessage
	if err := json.Unmarshal(raw, &loose); err != nil {
		return nil, map[string]string{"_": "invalid JSON: " + err.Error()}
	}
	allowed := map[string]bool{"id": true, "event": true, "data": true}
	for k := range loose {
		if !allowed[k] {
			return nil, map[string]string{k: fmt.Sprintf("unexpected field %q", k)}
		}
	}

	var payload models.IngressPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, map[string]string{"_": "invalid JSON: " + err.Error()}
	}
	errs := map[string]string{}
	if payload.ID == "" {
		errs["id"] = "required"
	}
	if payload.Event == "" {
		errs["event"] = "required"
	}
	if d := bytes.TrimSpace(payload.Data); len(d) > 0 && d[0] != '{' && string(d) != "null" {
		errs["data"] = "must be an object"
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return &payload, nil
}
