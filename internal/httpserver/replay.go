package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/webhookrelay/relay/internal/auth"
	"github.com/webhookrelay/relay/internal/store"
	"github.com/webhookrelay/relay/internal/worker"
)

// handleReplay implements POST /events/{id}/replay, spec.md §4.4: the
// event must exist and belong to the caller's tenant, else 404. On
// success it writes the attempts=0 audit marker and enqueues attempt=1.
func handleReplay(app *AppContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tenant := auth.FromContext(ctx)
		if tenant == nil {
			writeDetail(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		eventID := chi.URLParam(r, "id")
		ev, err := app.Store.GetEvent(ctx, eventID)
		if err == store.ErrNotFound || (err == nil && ev.TenantID != tenant.ID) {
			writeDetail(w, http.StatusNotFound, "Not Found")
			return
		}
		if err != nil {
			writeDetail(w, http.StatusInternalServerError, "Internal error")
			return
		}

		if err := worker.MarkManualReplay(ctx, app.Store, app.Queue, ev.ID); err != nil {
			writeDetail(w, http.StatusInternalServerError, "Internal error")
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "event_id": ev.ID})
	}
}
