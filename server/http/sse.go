package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/w-h-a/spinach/completion"
)

// relaySSE forwards completion events as server-sent events. A clean finish
// ends with the [DONE] sentinel; a failure ends with an error payload and no
// sentinel, so clients can tell the two apart.
func (s *Server) relaySSE(w http.ResponseWriter, r *http.Request, events <-chan completion.StreamEvent) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-events:
			if !open {
				return
			}

			if event.Err != nil {
				payload, _ := json.Marshal(map[string]any{"error": event.Err.Error()})
				fmt.Fprintf(w, "data: %s\n\n", payload)
				flusher.Flush()
				return
			}

			if event.Done {
				fmt.Fprint(w, "data: [DONE]\n\n")
				flusher.Flush()
				return
			}

			fmt.Fprintf(w, "data: %s\n\n", event.Data)
			flusher.Flush()
		}
	}
}
