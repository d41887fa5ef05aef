package http

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router. The
// discovery document and health endpoint sit outside /v1; everything else
// is versioned.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.Health)
	r.Get("/.well-known/agent-card.json", h.AgentCard)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/card", h.ExtendedCard)

		r.Post("/message:send", h.SendMessage)
		r.Post("/message:stream", h.StreamMessage)

		r.Get("/tasks", h.ListTasks)
		r.Get("/tasks/{id}", h.GetTask)
		r.Post("/tasks/{id}:cancel", h.CancelTask)
		r.Get("/tasks/{id}:subscribe", h.SubscribeTask)
		r.Delete("/tasks/{id}", h.DeleteTask)

		r.Post("/tasks/{id}/pushNotificationConfigs", h.SetPushConfig)
		r.Get("/tasks/{id}/pushNotificationConfigs", h.ListPushConfigs)
		r.Get("/tasks/{id}/pushNotificationConfigs/{configID}", h.GetPushConfig)
		r.Delete("/tasks/{id}/pushNotificationConfigs/{configID}", h.DeletePushConfig)
	})
}
