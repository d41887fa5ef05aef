// Package pushstore defines the push notification config store port.
package pushstore

import (
	"context"

	"github.com/agentrelay/agentrelay/internal/domain/a2a"
)

// Store holds webhook registrations keyed by (taskID, configID). Config
// state is independent of task lifecycle; purging a task removes its
// configs.
type Store interface {
	// Save upserts a config for the task, assigning an ID when absent,
	// and returns the stored config.
	Save(ctx context.Context, taskID string, cfg a2a.PushNotificationConfig) (*a2a.PushNotificationConfig, error)

	// Get returns one config, or domain.ErrTaskNotFound-style absence via
	// ok=false.
	Get(ctx context.Context, taskID, configID string) (*a2a.PushNotificationConfig, bool, error)

	// List returns all configs registered for the task.
	List(ctx context.Context, taskID string) ([]a2a.PushNotificationConfig, error)

	// Delete removes one config. Deleting an absent config is not an
	// error.
	Delete(ctx context.Context, taskID, configID string) error

	// DeleteByTask removes every config for the task.
	DeleteByTask(ctx context.Context, taskID string) error
}
