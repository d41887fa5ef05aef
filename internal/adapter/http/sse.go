package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/agentrelay/agentrelay/internal/broadcast"
)

// streamEvents writes the subscriber's events as server-sent events until
// the stream closes or the client disconnects. Each event is one SSE data
// frame carrying the kind-tagged event JSON.
func (h *Handlers) streamEvents(w http.ResponseWriter, r *http.Request, sub *broadcast.Subscriber) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.bc.Unsubscribe(sub)
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.bc.Unsubscribe(sub)
			// Drain so a concurrent publisher is not left blocked on close.
			for range sub.Events() {
			}
			return
		case ev, open := <-sub.Events():
			if !open {
				if errors.Is(sub.Err(), broadcast.ErrSlowSubscriber) {
					// Tell the client why the stream died so it resubscribes.
					fmt.Fprint(w, "event: error\ndata: {\"reason\":\"slow_subscriber\"}\n\n")
					flusher.Flush()
				}
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				slog.Error("failed to marshal stream event", "task_id", sub.TaskID(), "error", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
