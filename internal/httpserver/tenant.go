package httpserver

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/webhookrelay/relay/internal/apikey"
	"github.com/webhookrelay/relay/internal/auth"
	"github.com/webhookrelay/relay/internal/store"
)

// signupRequest is the minimal shape original_source/backend/app/main.py's
// TenantCreate schema accepts.
type signupRequest struct {
	Name string `json:"name" validate:"required"`
}

// handleSignup implements POST /signup: create Tenant + issue an ApiKey,
// grounded on original_source/backend/app/main.py's signup handler and
// crud.py's create_tenant/issue_api_key pair.
func handleSignup(app *AppContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
			writeDetail(w, http.StatusBadRequest, "name required")
			return
		}

		token, err := randomToken()
		if err != nil {
			writeDetail(w, http.StatusInternalServerError, "Internal error")
			return
		}

		tenant, err := app.Store.CreateTenant(r.Context(), req.Name, token)
		if err != nil {
			writeDetail(w, http.StatusInternalServerError, "Internal error")
			return
		}

		rawKey, err := apikey.Generate()
		if err != nil {
			writeDetail(w, http.StatusInternalServerError, "Internal error")
			return
		}
		hashed, err := apikey.Hash(rawKey, app.Config.APIKeySalt)
		if err != nil {
			writeDetail(w, http.StatusInternalServerError, "Internal error")
			return
		}
		if _, err := app.Store.CreateApiKey(r.Context(), tenant.ID, hashed); err != nil {
			writeDetail(w, http.StatusInternalServerError, "Internal error")
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"tenant":      map[string]string{"id": tenant.ID, "name": tenant.Name, "token": tenant.Token},
			"api_key":     rawKey,
			"ingress_url": "/in/" + tenant.Token,
		})
	}
}

// handleMe implements GET /me: bearer-authenticated whoami.
func handleMe(w http.ResponseWriter, r *http.Request) {
	tenant := auth.FromContext(r.Context())
	if tenant == nil {
		writeDetail(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": tenant.ID, "name": tenant.Name, "token": tenant.Token})
}

type upsertTargetRequest struct {
	URL      string            `json:"url" validate:"required,url"`
	Provider string            `json:"provider"`
	Headers  map[string]string `json:"headers,omitempty"`
}

// handleUpsertTarget implements POST /targets: upsert the caller
// tenant's single destination (spec.md §3 Target: "one per tenant
// (upsert semantics)").
func handleUpsertTarget(app *AppContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := auth.FromContext(r.Context())
		if tenant == nil {
			writeDetail(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		var req upsertTargetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeDetail(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		if app.Validate != nil {
			if err := app.Validate.Struct(req); err != nil {
				writeFieldErrors(w, map[string]string{"_": err.Error()})
				return
			}
		}

		target, err := app.Store.UpsertTarget(r.Context(), tenant.ID, req.URL, req.Provider, req.Headers)
		if err != nil {
			writeDetail(w, http.StatusInternalServerError, "Internal error")
			return
		}

		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"id": target.ID, "url": target.URL, "provider": target.Provider, "headers": target.Headers,
		})
	}
}

type setStripeSecretRequest struct {
	SigningSecret string `json:"signing_secret" validate:"required"`
}

// handleSetStripeSecret implements PUT /tenants/{token}/stripe.
// DESIGN.md Open Question 2: the source leaves this endpoint
// unauthenticated; SPEC_FULL.md gates it behind bearer auth and requires
// the caller's tenant to own the path token, so one tenant cannot
// silently overwrite another tenant's signing secret.
func handleSetStripeSecret(app *AppContext) http.HandlerFunc {
	authMW := auth.Middleware(app.Store, app.Config.APIKeySalt)
	return authMW(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := auth.FromContext(r.Context())
		token := chi.URLParam(r, "token")
		if tenant == nil || tenant.Token != token {
			writeDetail(w, http.StatusNotFound, "Not Found")
			return
		}

		var req setStripeSecretRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SigningSecret == "" {
			writeDetail(w, http.StatusBadRequest, "signing_secret required")
			return
		}

		if err := app.Store.SetSigningSecret(r.Context(), tenant.ID, req.SigningSecret); err != nil {
			if err == store.ErrNotFound {
				writeDetail(w, http.StatusNotFound, "Not Found")
				return
			}
			writeDetail(w, http.StatusInternalServerError, "Internal error")
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})).ServeHTTP
}

func randomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
