package httpserver

import (
	"encoding/json"
	"net/http"
)

// writeJSON is the single place response bodies are encoded, mirroring
// kernel/internal/handlers/handlers.go's writeJSON helper.
func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDetail writes the {"detail": "..."} shape spec.md §7's error
// taxonomy uses for every non-2xx ingress response.
func writeDetail(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"detail": detail})
}

// writeFieldErrors writes a 400 with per-field validation errors, used
// when the ingress body fails schema validation (spec.md §7 "InvalidJson
// or schema mismatch").
func writeFieldErrors(w http.ResponseWriter, errs map[string]string) {
	writeJSON(w, http.StatusBadRequest, map[string]interface{}{
		"detail": "Invalid payload",
		"errors": errs,
	})
}
