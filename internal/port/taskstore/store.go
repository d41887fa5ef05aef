// Package taskstore defines the task store port (interface).
//
// Every operation is scoped to the caller taken from the request context;
// a task outside the caller's boundary is indistinguishable from a missing
// one.
package taskstore

import (
	"context"
	"time"

	"github.com/agentrelay/agentrelay/internal/domain/a2a"
)

// ListFilter narrows a List call. Zero values mean "no constraint"; the
// caller boundary is always applied regardless of the filter.
type ListFilter struct {
	ContextID        string        `json:"contextId,omitempty"`
	State            a2a.TaskState `json:"state,omitempty"`
	LastUpdatedAfter time.Time     `json:"lastUpdatedAfter,omitempty"`
}

// ListRequest is a cursor-paginated listing request. Ordering is fixed:
// descending by status timestamp, most recently updated first.
type ListRequest struct {
	Filter    ListFilter `json:"filter"`
	PageSize  int        `json:"pageSize,omitempty"`
	PageToken string     `json:"pageToken,omitempty"`
}

// Page is one page of tasks. NextPageToken is always present; the empty
// string is the end sentinel.
type Page struct {
	Tasks         []a2a.Task `json:"tasks"`
	TotalSize     int        `json:"totalSize"`
	NextPageToken string     `json:"nextPageToken"`
}

// Store is the port interface for durable task state.
type Store interface {
	// Get returns the caller's task by ID, or domain.ErrTaskNotFound.
	Get(ctx context.Context, taskID string) (*a2a.Task, error)

	// Save upserts the task under the caller's scope.
	Save(ctx context.Context, t *a2a.Task) error

	// Delete purges the task. Returns domain.ErrTaskNotFound if absent.
	Delete(ctx context.Context, taskID string) error

	// List returns one page of the caller's tasks, full history and
	// artifacts included; response shaping happens above the store.
	List(ctx context.Context, req ListRequest) (*Page, error)
}
