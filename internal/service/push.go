package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	cfotel "github.com/agentrelay/agentrelay/internal/adapter/otel"
	"github.com/agentrelay/agentrelay/internal/adapter/webhook"
	"github.com/agentrelay/agentrelay/internal/domain"
	"github.com/agentrelay/agentrelay/internal/domain/a2a"
	"github.com/agentrelay/agentrelay/internal/port/eventbus"
	"github.com/agentrelay/agentrelay/internal/port/pushstore"
	"github.com/agentrelay/agentrelay/internal/port/taskstore"
)

// Deliverer posts one event to one webhook endpoint.
type Deliverer interface {
	Deliver(ctx context.Context, taskID string, cfg a2a.PushNotificationConfig, ev a2a.Event) error
}

// PushService manages webhook registrations and drives delivery by
// consuming the task event stream from the bus. Registration is
// synchronous with the caller; delivery is fully decoupled from the
// request path and survives process restarts via JetStream redelivery.
type PushService struct {
	configs      pushstore.Store
	tasks        taskstore.Store
	bus          eventbus.Bus
	deliverer    Deliverer
	enabled      bool
	allowPrivate bool
	metrics      *cfotel.Metrics
}

// NewPushService creates a PushService. When enabled is false every
// config operation fails with the push-not-supported error, matching the
// capability advertised on the agent card.
func NewPushService(configs pushstore.Store, tasks taskstore.Store, bus eventbus.Bus, deliverer Deliverer, enabled, allowPrivate bool, metrics *cfotel.Metrics) *PushService {
	return &PushService{
		configs:      configs,
		tasks:        tasks,
		bus:          bus,
		deliverer:    deliverer,
		enabled:      enabled,
		allowPrivate: allowPrivate,
		metrics:      metrics,
	}
}

// Set registers or replaces a webhook config for the task. The URL is
// validated here and again before every dispatch.
func (s *PushService) Set(ctx context.Context, taskID string, cfg a2a.PushNotificationConfig) (*a2a.PushNotificationConfig, error) {
	if !s.enabled {
		return nil, domain.ErrPushNotificationNotSupported
	}
	if _, err := s.tasks.Get(ctx, taskID); err != nil {
		return nil, err
	}
	if err := webhook.ValidateURL(cfg.URL, s.allowPrivate); err != nil {
		return nil, domain.ErrInvalidRequest.
			WithMessage("push notification url rejected: %v", err).
			WithDetail("url", cfg.URL)
	}
	return s.configs.Save(ctx, taskID, cfg)
}

// Get returns one webhook config of the task.
func (s *PushService) Get(ctx context.Context, taskID, configID string) (*a2a.PushNotificationConfig, error) {
	if !s.enabled {
		return nil, domain.ErrPushNotificationNotSupported
	}
	if _, err := s.tasks.Get(ctx, taskID); err != nil {
		return nil, err
	}
	cfg, ok, err := s.configs.Get(ctx, taskID, configID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrInvalidRequest.
			WithMessage("push notification config %s not found", configID)
	}
	return cfg, nil
}

// List returns all webhook configs of the task.
func (s *PushService) List(ctx context.Context, taskID string) ([]a2a.PushNotificationConfig, error) {
	if !s.enabled {
		return nil, domain.ErrPushNotificationNotSupported
	}
	if _, err := s.tasks.Get(ctx, taskID); err != nil {
		return nil, err
	}
	return s.configs.List(ctx, taskID)
}

// Delete removes one webhook config. Deleting an absent config succeeds.
func (s *PushService) Delete(ctx context.Context, taskID, configID string) error {
	if !s.enabled {
		return domain.ErrPushNotificationNotSupported
	}
	if _, err := s.tasks.Get(ctx, taskID); err != nil {
		return err
	}
	return s.configs.Delete(ctx, taskID, configID)
}

// Start subscribes to the task event stream and dispatches each event to
// the task's registered webhooks. A delivery failure makes the handler
// return an error so the bus redelivers; endpoints therefore must be
// idempotent. The returned cancel function stops consumption.
func (s *PushService) Start(ctx context.Context) (cancel func(), err error) {
	if !s.enabled || s.bus == nil {
		return func() {}, nil
	}
	return s.bus.Subscribe(ctx, eventbus.SubjectTaskEventsAll, s.handle)
}

func (s *PushService) handle(ctx context.Context, subject string, data []byte) error {
	taskID := eventbus.TaskIDFromSubject(subject)
	if taskID == "" {
		slog.Warn("event on unexpected subject", "subject", subject)
		return nil
	}

	var ev a2a.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		// A malformed event will never parse; redelivering it is useless.
		slog.Error("failed to unmarshal bus event", "subject", subject, "error", err)
		return nil
	}

	configs, err := s.configs.List(ctx, taskID)
	if err != nil {
		return err
	}

	var failed error
	for _, cfg := range configs {
		started := time.Now()
		dctx, span := cfotel.StartDeliverySpan(ctx, taskID, cfg.ID)
		err := s.deliverer.Deliver(dctx, taskID, cfg, ev)
		span.End()

		if s.metrics != nil {
			s.metrics.PushDeliveries.Add(ctx, 1)
			s.metrics.PushDuration.Record(ctx, time.Since(started).Seconds())
		}
		if err != nil {
			slog.Error("webhook delivery failed", "task_id", taskID, "config_id", cfg.ID, "error", err)
			if s.metrics != nil {
				s.metrics.PushFailures.Add(ctx, 1)
			}
			failed = err
		}
	}
	return failed
}
