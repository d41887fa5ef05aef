package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/agentrelay/agentrelay/internal/domain"
	"github.com/agentrelay/agentrelay/internal/domain/a2a"
	"github.com/agentrelay/agentrelay/internal/middleware"
	"github.com/agentrelay/agentrelay/internal/port/taskstore"
)

const defaultPageSize = 50

const taskColumns = `id, context_id, status, history, artifacts, metadata`

// Get returns the caller's task by ID. A task owned by another caller is
// reported as not found, indistinguishable from a missing one.
func (s *Store) Get(ctx context.Context, taskID string) (*a2a.Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1 AND caller_id = $2`,
		taskID, middleware.CallerID(ctx))

	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, fmt.Errorf("get task %s: %w", taskID, err)
	}
	return t, nil
}

// Save upserts the task under the caller's scope.
func (s *Store) Save(ctx context.Context, t *a2a.Task) error {
	status, err := json.Marshal(t.Status)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	history, err := json.Marshal(t.History)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	artifacts, err := json.Marshal(t.Artifacts)
	if err != nil {
		return fmt.Errorf("marshal artifacts: %w", err)
	}
	metadata, err := json.Marshal(t.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO tasks (id, caller_id, context_id, state, status, status_ts, history, artifacts, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE
		 SET state = EXCLUDED.state,
		     status = EXCLUDED.status,
		     status_ts = EXCLUDED.status_ts,
		     history = EXCLUDED.history,
		     artifacts = EXCLUDED.artifacts,
		     metadata = EXCLUDED.metadata
		 WHERE tasks.caller_id = EXCLUDED.caller_id`,
		t.ID, middleware.CallerID(ctx), t.ContextID, string(t.Status.State),
		status, t.Status.Timestamp, history, artifacts, metadata)
	if err != nil {
		return fmt.Errorf("save task %s: %w", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		// The ID exists under a different caller. Do not leak existence.
		return domain.ErrTaskNotFound
	}
	return nil
}

// Delete purges the caller's task. Push configs cascade via foreign key.
func (s *Store) Delete(ctx context.Context, taskID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM tasks WHERE id = $1 AND caller_id = $2`,
		taskID, middleware.CallerID(ctx))
	if err != nil {
		return fmt.Errorf("delete task %s: %w", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

// List returns one page of the caller's tasks, ordered descending by
// status timestamp with the task ID as tiebreaker.
func (s *Store) List(ctx context.Context, req taskstore.ListRequest) (*taskstore.Page, error) {
	caller := middleware.CallerID(ctx)

	where := []string{"caller_id = $1"}
	args := []any{caller}

	if req.Filter.ContextID != "" {
		args = append(args, req.Filter.ContextID)
		where = append(where, fmt.Sprintf("context_id = $%d", len(args)))
	}
	if req.Filter.State != "" {
		args = append(args, string(req.Filter.State))
		where = append(where, fmt.Sprintf("state = $%d", len(args)))
	}
	if !req.Filter.LastUpdatedAfter.IsZero() {
		args = append(args, req.Filter.LastUpdatedAfter)
		where = append(where, fmt.Sprintf("status_ts >= $%d", len(args)))
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM tasks WHERE ` + strings.Join(where, " AND ")
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}

	if req.PageToken != "" {
		cur, err := taskstore.DecodeCursor(req.PageToken)
		if err != nil {
			return nil, err
		}
		args = append(args, cur.UpdatedAt, cur.ID)
		where = append(where, fmt.Sprintf("(status_ts, id) < ($%d, $%d)", len(args)-1, len(args)))
	}

	size := req.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	args = append(args, size+1)

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE ` + strings.Join(where, " AND ") +
		fmt.Sprintf(` ORDER BY status_ts DESC, id DESC LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []a2a.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	next := ""
	if len(tasks) > size {
		last := tasks[size-1]
		next = taskstore.EncodeCursor(taskstore.Cursor{UpdatedAt: last.Status.Timestamp, ID: last.ID})
		tasks = tasks[:size]
	}

	return &taskstore.Page{
		Tasks:         tasks,
		TotalSize:     total,
		NextPageToken: next,
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*a2a.Task, error) {
	var (
		t         a2a.Task
		status    []byte
		history   []byte
		artifacts []byte
		metadata  []byte
	)
	if err := row.Scan(&t.ID, &t.ContextID, &status, &history, &artifacts, &metadata); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(status, &t.Status); err != nil {
		return nil, fmt.Errorf("unmarshal status: %w", err)
	}
	if err := json.Unmarshal(history, &t.History); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}
	if err := json.Unmarshal(artifacts, &t.Artifacts); err != nil {
		return nil, fmt.Errorf("unmarshal artifacts: %w", err)
	}
	if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return &t, nil
}

var _ taskstore.Store = (*Store)(nil)
