package httpserver

import (
	"net/http"
	"strings"

	"github.com/webhookrelay/relay/internal/config"
	"github.com/webhookrelay/relay/internal/ratelimit"
)

// corsMiddleware reflects the caller's Origin back when it matches
// ALLOWED_ORIGINS (comma-separated) or FRONTEND_URL. Out-of-scope per
// spec.md §1 ("external collaborators"), but SPEC_FULL.md's ambient
// stack still carries it; no third-party CORS library appears anywhere
// in the corpus, so this stays on net/http directly.
func corsMiddleware(cfg *config.Config) func(http.Handler) http.Handler {
	allowed := map[string]bool{}
	for _, o := range strings.Split(cfg.AllowedOrigins, ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			allowed[o] = true
		}
	}
	if cfg.FrontendURL != "" {
		allowed[cfg.FrontendURL] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && allowed[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Stripe-Signature")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// globalRateLimitMiddleware enforces spec.md §4.6's global per-source-IP
// limit (100 req/60s) ahead of any downstream ingress work.
func globalRateLimitMiddleware(app *AppContext) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if err := ratelimit.Allow(r.Context(), app.GlobalRate, ip, ratelimit.GlobalIPPolicy); err != nil {
				writeDetail(w, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i != -1 {
		host = host[:i]
	}
	return host
}
