package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Iron-Ham/codeloom/internal/logging"
	"github.com/Iron-Ham/codeloom/internal/session"
)

// EventsHandler streams session progress over Server-Sent Events.
type EventsHandler struct {
	registry *session.Registry
	logger   *logging.Logger
}

// NewEventsHandler creates the SSE handler.
func NewEventsHandler(registry *session.Registry, logger *logging.Logger) *EventsHandler {
	return &EventsHandler{registry: registry, logger: logger}
}

// Stream subscribes to a session and relays its events. The first frame
// is a "snapshot" event carrying the full session state at subscription
// time; every event that follows has a sequence number greater than the
// snapshot's. The stream ends when the session reaches a terminal state
// or the client disconnects.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	snapshot, events, cancel, err := h.registry.Subscribe(id)
	if err != nil {
		respondError(w, err)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeSSE(w, "snapshot", snapshot); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			if err := writeSSE(w, string(ev.Type), ev); err != nil {
				h.logger.WithSession(id).Debug("event stream write failed", "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSE writes one SSE frame with an event name and a JSON payload.
func writeSSE(w http.ResponseWriter, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
