package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const eventKeepaliveInterval = 15 * time.Second

// handleEvents streams service events as server-sent events until the
// client disconnects or the server stops.
func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"streaming not supported"})

		return
	}

	events, unsubscribe := s.svc.Events().Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// An initial comment lets clients see the stream is open.
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	keepalive := time.NewTicker(eventKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case ev, open := <-events:
			if !open {
				return
			}

			payload, err := json.Marshal(ev)
			if err != nil {
				s.log.WithError(err).Warn("Failed to encode event")

				continue
			}

			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n",
				ev.ID, ev.Type, payload)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		case <-s.done:
			return
		}
	}
}
