package handler

import (
	"net/http"
	"regexp"

	"github.com/dukerupert/courier/internal/domain"
)

var runIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Streamer writes the progress events of one run to a client.
type Streamer interface {
	Stream(w http.ResponseWriter, r *http.Request, runID string)
}

// ProgressHandler serves GET /progress/{runID} as Server-Sent Events.
// Clients may subscribe before the run starts; events published before the
// subscription are not replayed.
type ProgressHandler struct {
	streamer Streamer
}

// NewProgressHandler creates a progress handler.
func NewProgressHandler(streamer Streamer) *ProgressHandler {
	return &ProgressHandler{streamer: streamer}
}

func (h *ProgressHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runID")
	if !runIDPattern.MatchString(runID) {
		ErrorResponse(w, r, domain.Invalid("handler.Progress", "Invalid run ID"))
		return
	}
	h.streamer.Stream(w, r, runID)
}
