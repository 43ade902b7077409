// Package httpserver is the chi-routed HTTP surface: signed ingress,
// manual replay, and the external tenant-management collaborators
// (signup, whoami, target upsert, signing-secret rotation) spec.md §6
// names as contracts the core consumes through. Router wiring is
// grounded on kernel/cmd/kernel/main.go's chi setup and
// kernel/internal/handlers/handlers.go's handler-closure-over-dependencies
// style — the teacher's reflection-based RegisterRoutes is replaced with
// an explicit AppContext struct passed directly to each handler
// constructor, since this service has one concrete dependency set
// rather than the kernel's pluggable-backend design.
package httpserver

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/webhookrelay/relay/internal/auth"
	"github.com/webhookrelay/relay/internal/blob"
	"github.com/webhookrelay/relay/internal/config"
	"github.com/webhookrelay/relay/internal/queue"
	"github.com/webhookrelay/relay/internal/ratelimit"
	"github.com/webhookrelay/relay/internal/store"
)

// AppContext bundles every dependency a handler needs. Constructed once
// in cmd/ingress/main.go and threaded into NewRouter.
type AppContext struct {
	Config     *config.Config
	DB         *sql.DB
	Store      store.Store
	Blob       blob.Store
	Queue      queue.Queue
	GlobalRate ratelimit.Store
	TenantRate ratelimit.Store
	Validate   *validator.Validate
}

// NewRouter wires the full HTTP surface: public health checks, the
// signed ingress endpoint, the authenticated replay and management
// endpoints.
func NewRouter(app *AppContext) http.Handler {
	if app.Validate == nil {
		app.Validate = validator.New()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(app.Config))

	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(app))

	r.With(globalRateLimitMiddleware(app)).Post("/in/{token}", handleIngress(app))

	r.Post("/signup", handleSignup(app))

	authMW := auth.Middleware(app.Store, app.Config.APIKeySalt)
	r.With(authMW).Get("/me", handleMe)
	r.With(authMW).Post("/targets", handleUpsertTarget(app))
	r.With(authMW).Post("/events/{id}/replay", handleReplay(app))

	r.Put("/tenants/{token}/stripe", handleSetStripeSecret(app))

	return r
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "ts": time.Now().UTC()})
}

func handleReadyz(app *AppContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := app.Store.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "store not ready"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ready"})
	}
}
