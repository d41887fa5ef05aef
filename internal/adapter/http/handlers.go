package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/agentrelay/agentrelay/internal/broadcast"
	"github.com/agentrelay/agentrelay/internal/domain"
	"github.com/agentrelay/agentrelay/internal/domain/a2a"
	"github.com/agentrelay/agentrelay/internal/port/taskstore"
	"github.com/agentrelay/agentrelay/internal/service"
)

// Handlers bundles the HTTP handlers and their service dependencies.
type Handlers struct {
	tasks     *service.TaskService
	push      *service.PushService
	cards     *service.CardService
	bc        *broadcast.Broadcaster
	bodyLimit int64
}

// NewHandlers creates the handler set.
func NewHandlers(tasks *service.TaskService, push *service.PushService, cards *service.CardService, bc *broadcast.Broadcaster, bodyLimit int64) *Handlers {
	if bodyLimit <= 0 {
		bodyLimit = 4 << 20
	}
	return &Handlers{tasks: tasks, push: push, cards: cards, bc: bc, bodyLimit: bodyLimit}
}

// AgentCard serves the public discovery document.
func (h *Handlers) AgentCard(w http.ResponseWriter, r *http.Request) {
	data, err := h.cards.CardJSON(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

// ExtendedCard serves the authenticated extended card.
func (h *Handlers) ExtendedCard(w http.ResponseWriter, r *http.Request) {
	data, err := h.cards.ExtendedCardJSON(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

// SendMessage handles message:send. The response is the routing outcome:
// a direct reply message or a task snapshot, kind-tagged either way.
func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	params, ok := readJSON[service.SendParams](w, r, h.bodyLimit)
	if !ok {
		return
	}
	params.Extensions = declaredExtensions(r)

	ev, err := h.tasks.Send(r.Context(), params)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.echoExtensions(w, params.Extensions)
	writeJSON(w, http.StatusOK, ev)
}

// StreamMessage handles message:stream over SSE.
func (h *Handlers) StreamMessage(w http.ResponseWriter, r *http.Request) {
	params, ok := readJSON[service.SendParams](w, r, h.bodyLimit)
	if !ok {
		return
	}
	params.Extensions = declaredExtensions(r)

	sub, err := h.tasks.SendStreaming(r.Context(), params)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.echoExtensions(w, params.Extensions)
	h.streamEvents(w, r, sub)
}

// GetTask returns one task with response shaping from query parameters.
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	historyLength, err := queryInt(r, "historyLength")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	includeArtifacts, err := queryBool(r, "includeArtifacts")
	if err != nil {
		writeDomainError(w, err)
		return
	}

	t, err := h.tasks.Get(r.Context(), urlParam(r, "id"), historyLength, includeArtifacts)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// ListTasks returns one page of the caller's tasks.
func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	p := service.ListParams{
		PageToken: r.URL.Query().Get("pageToken"),
		Filter: taskstore.ListFilter{
			ContextID: r.URL.Query().Get("contextId"),
			State:     a2a.TaskState(r.URL.Query().Get("state")),
		},
	}

	if raw := r.URL.Query().Get("lastUpdatedAfter"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeDomainError(w, domain.ErrInvalidRequest.WithMessage("lastUpdatedAfter must be RFC 3339"))
			return
		}
		p.Filter.LastUpdatedAfter = ts
	}

	pageSize, err := queryInt(r, "pageSize")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if pageSize != nil {
		p.PageSize = *pageSize
	}

	if p.HistoryLength, err = queryInt(r, "historyLength"); err != nil {
		writeDomainError(w, err)
		return
	}
	if p.IncludeArtifacts, err = queryBool(r, "includeArtifacts"); err != nil {
		writeDomainError(w, err)
		return
	}

	page, err := h.tasks.List(r.Context(), p)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// CancelTask requests cancelation and returns the resulting task.
func (h *Handlers) CancelTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.tasks.Cancel(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// DeleteTask purges the task and everything attached to it.
func (h *Handlers) DeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.tasks.Delete(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SubscribeTask reattaches an event stream to an existing task.
func (h *Handlers) SubscribeTask(w http.ResponseWriter, r *http.Request) {
	sub, err := h.tasks.Resubscribe(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.streamEvents(w, r, sub)
}

// SetPushConfig registers or replaces a webhook config for the task.
func (h *Handlers) SetPushConfig(w http.ResponseWriter, r *http.Request) {
	cfg, ok := readJSON[a2a.PushNotificationConfig](w, r, h.bodyLimit)
	if !ok {
		return
	}
	stored, err := h.push.Set(r.Context(), urlParam(r, "id"), cfg)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a2a.TaskPushNotificationConfig{
		TaskID: urlParam(r, "id"),
		Config: *stored,
	})
}

// GetPushConfig returns one webhook config.
func (h *Handlers) GetPushConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.push.Get(r.Context(), urlParam(r, "id"), urlParam(r, "configID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a2a.TaskPushNotificationConfig{
		TaskID: urlParam(r, "id"),
		Config: *cfg,
	})
}

// ListPushConfigs returns all webhook configs of the task.
func (h *Handlers) ListPushConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := h.push.List(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]a2a.TaskPushNotificationConfig, 0, len(configs))
	for _, cfg := range configs {
		out = append(out, a2a.TaskPushNotificationConfig{
			TaskID: urlParam(r, "id"),
			Config: cfg,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// DeletePushConfig removes one webhook config.
func (h *Handlers) DeletePushConfig(w http.ResponseWriter, r *http.Request) {
	if err := h.push.Delete(r.Context(), urlParam(r, "id"), urlParam(r, "configID")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// echoExtensions reports the activated extension subset back to the caller.
func (h *Handlers) echoExtensions(w http.ResponseWriter, declared []string) {
	active := h.cards.NegotiateExtensions(declared)
	if len(active) == 0 {
		return
	}
	w.Header().Set(headerExtensions, strings.Join(active, ", "))
}
