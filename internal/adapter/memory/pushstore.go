package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/agentrelay/agentrelay/internal/domain/a2a"
	"github.com/agentrelay/agentrelay/internal/port/pushstore"
)

// PushStore is an in-memory push notification config store.
type PushStore struct {
	mu      sync.RWMutex
	configs map[string]map[string]a2a.PushNotificationConfig // taskID -> configID -> config
}

// NewPushStore creates an empty in-memory push config store.
func NewPushStore() *PushStore {
	return &PushStore{configs: make(map[string]map[string]a2a.PushNotificationConfig)}
}

// Save upserts a config for the task, assigning an ID when absent.
func (s *PushStore) Save(_ context.Context, taskID string, cfg a2a.PushNotificationConfig) (*a2a.PushNotificationConfig, error) {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byID, ok := s.configs[taskID]
	if !ok {
		byID = make(map[string]a2a.PushNotificationConfig)
		s.configs[taskID] = byID
	}
	byID[cfg.ID] = cfg.Clone()

	stored := cfg.Clone()
	return &stored, nil
}

// Get returns one config for the task.
func (s *PushStore) Get(_ context.Context, taskID, configID string) (*a2a.PushNotificationConfig, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[taskID][configID]
	if !ok {
		return nil, false, nil
	}
	c := cfg.Clone()
	return &c, true, nil
}

// List returns all configs for the task, ordered by ID for stable output.
func (s *PushStore) List(_ context.Context, taskID string) ([]a2a.PushNotificationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byID := s.configs[taskID]
	out := make([]a2a.PushNotificationConfig, 0, len(byID))
	for _, cfg := range byID {
		out = append(out, cfg.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Delete removes one config. Deleting an absent config is a no-op.
func (s *PushStore) Delete(_ context.Context, taskID, configID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if byID, ok := s.configs[taskID]; ok {
		delete(byID, configID)
		if len(byID) == 0 {
			delete(s.configs, taskID)
		}
	}
	return nil
}

// DeleteByTask removes every config for the task.
func (s *PushStore) DeleteByTask(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.configs, taskID)
	return nil
}

var _ pushstore.Store = (*PushStore)(nil)
