package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/agentrelay/agentrelay/internal/domain/a2a"
	"github.com/agentrelay/agentrelay/internal/port/pushstore"
)

func (s *Store) SavePushConfig(ctx context.Context, taskID string, cfg a2a.PushNotificationConfig) (*a2a.PushNotificationConfig, error) {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}

	auth, err := json.Marshal(cfg.Authentication)
	if err != nil {
		return nil, fmt.Errorf("marshal authentication: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO push_configs (id, task_id, url, token, authentication)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (task_id, id) DO UPDATE
		 SET url = EXCLUDED.url,
		     token = EXCLUDED.token,
		     authentication = EXCLUDED.authentication`,
		cfg.ID, taskID, cfg.URL, cfg.Token, auth)
	if err != nil {
		return nil, fmt.Errorf("save push config %s: %w", cfg.ID, err)
	}
	cloned := cfg.Clone()
	return &cloned, nil
}

func (s *Store) GetPushConfig(ctx context.Context, taskID, configID string) (*a2a.PushNotificationConfig, bool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, url, token, authentication
		 FROM push_configs WHERE task_id = $1 AND id = $2`,
		taskID, configID)

	cfg, err := scanPushConfig(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get push config %s: %w", configID, err)
	}
	return cfg, true, nil
}

func (s *Store) ListPushConfigs(ctx context.Context, taskID string) ([]a2a.PushNotificationConfig, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, url, token, authentication
		 FROM push_configs WHERE task_id = $1 ORDER BY id`,
		taskID)
	if err != nil {
		return nil, fmt.Errorf("list push configs: %w", err)
	}
	defer rows.Close()

	var result []a2a.PushNotificationConfig
	for rows.Next() {
		cfg, err := scanPushConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan push config: %w", err)
		}
		result = append(result, *cfg)
	}
	return result, rows.Err()
}

func (s *Store) DeletePushConfig(ctx context.Context, taskID, configID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM push_configs WHERE task_id = $1 AND id = $2`,
		taskID, configID)
	if err != nil {
		return fmt.Errorf("delete push config %s: %w", configID, err)
	}
	return nil
}

func (s *Store) DeletePushConfigsByTask(ctx context.Context, taskID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM push_configs WHERE task_id = $1`, taskID)
	if err != nil {
		return fmt.Errorf("delete push configs for task %s: %w", taskID, err)
	}
	return nil
}

func scanPushConfig(row rowScanner) (*a2a.PushNotificationConfig, error) {
	var (
		cfg  a2a.PushNotificationConfig
		auth []byte
	)
	if err := row.Scan(&cfg.ID, &cfg.URL, &cfg.Token, &auth); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(auth, &cfg.Authentication); err != nil {
		return nil, fmt.Errorf("unmarshal authentication: %w", err)
	}
	return &cfg, nil
}

// PushStore adapts a Store to the pushstore port, keeping the port's
// method names free of the "push" prefix that disambiguates them on the
// shared Store.
type PushStore struct {
	store *Store
}

// NewPushStore wraps the store's push config methods as a pushstore.Store.
func NewPushStore(store *Store) *PushStore {
	return &PushStore{store: store}
}

func (p *PushStore) Save(ctx context.Context, taskID string, cfg a2a.PushNotificationConfig) (*a2a.PushNotificationConfig, error) {
	return p.store.SavePushConfig(ctx, taskID, cfg)
}

func (p *PushStore) Get(ctx context.Context, taskID, configID string) (*a2a.PushNotificationConfig, bool, error) {
	return p.store.GetPushConfig(ctx, taskID, configID)
}

func (p *PushStore) List(ctx context.Context, taskID string) ([]a2a.PushNotificationConfig, error) {
	return p.store.ListPushConfigs(ctx, taskID)
}

func (p *PushStore) Delete(ctx context.Context, taskID, configID string) error {
	return p.store.DeletePushConfig(ctx, taskID, configID)
}

func (p *PushStore) DeleteByTask(ctx context.Context, taskID string) error {
	return p.store.DeletePushConfigsByTask(ctx, taskID)
}

var _ pushstore.Store = (*PushStore)(nil)
