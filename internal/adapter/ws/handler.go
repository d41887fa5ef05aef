// Package ws streams per-task events over WebSocket, as an alternative to
// the SSE binding for clients that want a bidirectional transport.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/agentrelay/agentrelay/internal/broadcast"
	"github.com/agentrelay/agentrelay/internal/domain"
	"github.com/agentrelay/agentrelay/internal/service"
)

// Handler upgrades task subscription requests to WebSocket and relays the
// task's event stream. Each connection serves exactly one task.
type Handler struct {
	tasks *service.TaskService
	bc    *broadcast.Broadcaster
}

// NewHandler creates a WebSocket subscription handler.
func NewHandler(tasks *service.TaskService, bc *broadcast.Broadcaster) *Handler {
	return &Handler{tasks: tasks, bc: bc}
}

// Subscribe handles GET /v1/tasks/{id}/ws. Events are sent as text frames
// carrying the kind-tagged event JSON; the connection closes when the task
// reaches a terminal state.
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")

	sub, err := h.tasks.Resubscribe(r.Context(), taskID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrTaskNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		h.bc.Unsubscribe(sub)
		slog.Error("websocket accept failed", "task_id", taskID, "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Read loop detects disconnects and consumes pings.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	slog.Info("websocket subscriber attached", "task_id", taskID, "remote", r.RemoteAddr)
	defer h.bc.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev, open := <-sub.Events():
			if !open {
				reason := ""
				if errors.Is(sub.Err(), broadcast.ErrSlowSubscriber) {
					reason = "slow subscriber"
				}
				_ = conn.Close(websocket.StatusNormalClosure, reason)
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				slog.Error("failed to marshal event", "task_id", taskID, "error", err)
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				slog.Debug("websocket write failed", "task_id", taskID, "error", err)
				return
			}
		}
	}
}
