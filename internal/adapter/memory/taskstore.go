// Package memory implements the task and push config store ports with
// in-process maps. It backs local development and tests; production uses
// the postgres adapter.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/agentrelay/agentrelay/internal/domain"
	"github.com/agentrelay/agentrelay/internal/domain/a2a"
	"github.com/agentrelay/agentrelay/internal/middleware"
	"github.com/agentrelay/agentrelay/internal/port/taskstore"
)

const defaultPageSize = 50

// TaskStore is an in-memory, caller-scoped task store.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*ownedTask // keyed by task ID
}

type ownedTask struct {
	caller string
	task   *a2a.Task
}

// NewTaskStore creates an empty in-memory task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[string]*ownedTask)}
}

// Get returns the caller's task by ID. A task owned by another caller is
// reported as not found, indistinguishable from a missing one.
func (s *TaskStore) Get(ctx context.Context, taskID string) (*a2a.Task, error) {
	caller := middleware.CallerID(ctx)

	s.mu.RLock()
	defer s.mu.RUnlock()

	ot, ok := s.tasks[taskID]
	if !ok || ot.caller != caller {
		return nil, domain.ErrTaskNotFound
	}
	return ot.task.Clone(), nil
}

// Save upserts the task under the caller's scope.
func (s *TaskStore) Save(ctx context.Context, t *a2a.Task) error {
	caller := middleware.CallerID(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.tasks[t.ID]; ok && existing.caller != caller {
		// An ID collision across callers cannot happen with generated IDs;
		// treat it as not found rather than leak existence.
		return domain.ErrTaskNotFound
	}
	s.tasks[t.ID] = &ownedTask{caller: caller, task: t.Clone()}
	return nil
}

// Delete purges the caller's task.
func (s *TaskStore) Delete(ctx context.Context, taskID string) error {
	caller := middleware.CallerID(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	ot, ok := s.tasks[taskID]
	if !ok || ot.caller != caller {
		return domain.ErrTaskNotFound
	}
	delete(s.tasks, taskID)
	return nil
}

// List returns one page of the caller's tasks, ordered descending by
// status timestamp with the task ID as tiebreaker.
func (s *TaskStore) List(ctx context.Context, req taskstore.ListRequest) (*taskstore.Page, error) {
	caller := middleware.CallerID(ctx)

	s.mu.RLock()
	var matched []*a2a.Task
	for _, ot := range s.tasks {
		if ot.caller != caller {
			continue
		}
		if !matchesFilter(ot.task, req.Filter) {
			continue
		}
		matched = append(matched, ot.task.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		ti, tj := matched[i].Status.Timestamp, matched[j].Status.Timestamp
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)

	if req.PageToken != "" {
		cur, err := taskstore.DecodeCursor(req.PageToken)
		if err != nil {
			return nil, err
		}
		idx := sort.Search(len(matched), func(i int) bool {
			t := matched[i]
			if !t.Status.Timestamp.Equal(cur.UpdatedAt) {
				return t.Status.Timestamp.Before(cur.UpdatedAt)
			}
			return t.ID < cur.ID
		})
		matched = matched[idx:]
	}

	size := req.PageSize
	if size <= 0 {
		size = defaultPageSize
	}

	next := ""
	if len(matched) > size {
		last := matched[size-1]
		next = taskstore.EncodeCursor(taskstore.Cursor{UpdatedAt: last.Status.Timestamp, ID: last.ID})
		matched = matched[:size]
	}

	tasks := make([]a2a.Task, len(matched))
	for i, t := range matched {
		tasks[i] = *t
	}

	return &taskstore.Page{
		Tasks:         tasks,
		TotalSize:     total,
		NextPageToken: next,
	}, nil
}

func matchesFilter(t *a2a.Task, f taskstore.ListFilter) bool {
	if f.ContextID != "" && t.ContextID != f.ContextID {
		return false
	}
	if f.State != "" && t.Status.State != f.State {
		return false
	}
	if !f.LastUpdatedAfter.IsZero() && t.Status.Timestamp.Before(f.LastUpdatedAfter) {
		return false
	}
	return true
}

var _ taskstore.Store = (*TaskStore)(nil)

// String implements fmt.Stringer for debug logging.
func (s *TaskStore) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf("memory.TaskStore(%d tasks)", len(s.tasks))
}
