// Package server implements the HTTP surface over pkg/identity and
// pkg/session: struct-per-resource handlers, a signed-request middleware
// wrapping pkg/requestauth, and the mux wiring consumed by cmd/identityd.
package server

import (
	"encoding/json"
	"log"
	"net/http"
)

// writeJSON encodes data as the JSON response body with status.
func writeJSON(w http.ResponseWriter, logger *log.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Printf("error encoding response: %v", err)
	}
}

// writeError writes a {"error":{"code":...,"message":...}} body.
func writeError(w http.ResponseWriter, logger *log.Logger, status int, code, message string) {
	writeJSON(w, logger, status, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

// decodeJSON decodes r's body into v, returning a request-error-shaped
// error the caller can hand straight to writeError on failure.
func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
