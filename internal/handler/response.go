package handler

// RESPONSE HELPERS:
// Every JSON body goes out through writeJSON so headers and status are set
// before the body, in that order. Once the body starts, header changes are
// silently ignored by net/http.

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// writeJSON sends data as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeText sends a plain-text body.
func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		slog.Error("failed to write response", slog.String("error", err.Error()))
	}
}
