package handler

import (
	"net/http"
	"time"
)

// Health serves GET /healthz.
func Health(started time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"uptime": time.Since(started).Truncate(time.Second).String(),
		})
	}
}
