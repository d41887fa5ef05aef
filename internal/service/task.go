package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	cfotel "github.com/agentrelay/agentrelay/internal/adapter/otel"
	"github.com/agentrelay/agentrelay/internal/broadcast"
	"github.com/agentrelay/agentrelay/internal/domain"
	"github.com/agentrelay/agentrelay/internal/domain/a2a"
	"github.com/agentrelay/agentrelay/internal/middleware"
	"github.com/agentrelay/agentrelay/internal/port/agent"
	"github.com/agentrelay/agentrelay/internal/port/cache"
	"github.com/agentrelay/agentrelay/internal/port/eventbus"
	"github.com/agentrelay/agentrelay/internal/port/pushstore"
	"github.com/agentrelay/agentrelay/internal/port/taskstore"
)

// TaskServiceConfig carries the dependencies and tunables of a TaskService.
type TaskServiceConfig struct {
	Store       taskstore.Store
	PushConfigs pushstore.Store
	Executor    agent.Executor
	Broadcaster *broadcast.Broadcaster
	// Bus is optional; when nil, events are not published for push
	// delivery.
	Bus eventbus.Bus
	// Cache is optional; when set, terminal task snapshots are cached.
	Cache   cache.Cache
	TaskTTL time.Duration
	// HistoryDefault is the history length applied when a request does not
	// set historyLength.
	HistoryDefault int
	// RequiredExtensions lists extension URIs a caller must declare before
	// the agent accepts its messages.
	RequiredExtensions []string
	// PushEnabled gates inline push configs on send; it must match the
	// capability advertised on the agent card.
	PushEnabled bool
	// PushAllowPrivate skips webhook destination checks, for development.
	PushAllowPrivate bool
	Metrics          *cfotel.Metrics
}

// TaskService owns the task lifecycle: message routing, state transitions,
// event publication, retrieval, listing, cancelation, and purging. All
// mutations of one task happen under that task's lock, so the store write
// and the event fan-out are a single atomic step in the task's event order.
type TaskService struct {
	store       taskstore.Store
	pushConfigs pushstore.Store
	executor    agent.Executor
	bc          *broadcast.Broadcaster
	bus         eventbus.Bus
	cache       cache.Cache
	taskTTL     time.Duration
	historyDef  int
	required    []string
	pushEnabled bool
	pushPrivate bool
	metrics     *cfotel.Metrics

	locks *taskLocks

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewTaskService creates a TaskService.
func NewTaskService(cfg TaskServiceConfig) *TaskService {
	if cfg.HistoryDefault <= 0 {
		cfg.HistoryDefault = 20
	}
	return &TaskService{
		store:       cfg.Store,
		pushConfigs: cfg.PushConfigs,
		executor:    cfg.Executor,
		bc:          cfg.Broadcaster,
		bus:         cfg.Bus,
		cache:       cfg.Cache,
		taskTTL:     cfg.TaskTTL,
		historyDef:  cfg.HistoryDefault,
		required:    cfg.RequiredExtensions,
		pushEnabled: cfg.PushEnabled,
		pushPrivate: cfg.PushAllowPrivate,
		metrics:     cfg.Metrics,
		locks:       newTaskLocks(),
		cancels:     make(map[string]context.CancelFunc),
	}
}

// Get returns the caller's task with response shaping applied:
// historyLength trims retained messages (nil applies the server default,
// zero omits history), and artifacts are included only on request.
func (s *TaskService) Get(ctx context.Context, taskID string, historyLength *int, includeArtifacts bool) (*a2a.Task, error) {
	if t, ok := s.cachedTask(ctx, taskID); ok {
		s.shape(t, historyLength, includeArtifacts)
		return t, nil
	}

	t, err := s.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.Status.State.Terminal() {
		s.cacheTask(ctx, t)
	}
	s.shape(t, historyLength, includeArtifacts)
	return t, nil
}

// ListParams narrows and shapes a task listing.
type ListParams struct {
	Filter           taskstore.ListFilter
	PageSize         int
	PageToken        string
	HistoryLength    *int
	IncludeArtifacts bool
}

// List returns one page of the caller's tasks, most recently updated
// first, with the same response shaping as Get applied to every task.
func (s *TaskService) List(ctx context.Context, p ListParams) (*taskstore.Page, error) {
	page, err := s.store.List(ctx, taskstore.ListRequest{
		Filter:    p.Filter,
		PageSize:  p.PageSize,
		PageToken: p.PageToken,
	})
	if err != nil {
		return nil, err
	}
	for i := range page.Tasks {
		s.shape(&page.Tasks[i], p.HistoryLength, p.IncludeArtifacts)
	}
	return page, nil
}

// Cancel requests cancelation of a running task. The recorded state
// changes immediately; stopping the executor's compute is best effort via
// context cancelation. Canceling an already canceled task is a no-op;
// canceling any other terminal task fails.
func (s *TaskService) Cancel(ctx context.Context, taskID string) (*a2a.Task, error) {
	unlock := s.locks.lock(taskID)
	defer unlock()

	t, err := s.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if t.Status.State == a2a.TaskStateCanceled {
		return t, nil
	}
	if t.Status.State.Terminal() {
		return nil, domain.ErrTaskNotCancelable.WithMessage("task %s is already %s", taskID, t.Status.State).
			WithDetail("state", string(t.Status.State))
	}

	if err := s.transitionLocked(ctx, t, a2a.TaskStateCanceled, nil); err != nil {
		return nil, err
	}
	s.stopExecutor(taskID)
	if s.metrics != nil {
		s.metrics.TasksCanceled.Add(ctx, 1)
	}
	return t, nil
}

// Delete purges the task, its push configs, and any live subscriptions.
func (s *TaskService) Delete(ctx context.Context, taskID string) error {
	unlock := s.locks.lock(taskID)
	defer unlock()

	if err := s.store.Delete(ctx, taskID); err != nil {
		return err
	}
	if s.pushConfigs != nil {
		if err := s.pushConfigs.DeleteByTask(ctx, taskID); err != nil {
			slog.Warn("failed to purge push configs", "task_id", taskID, "error", err)
		}
	}
	s.stopExecutor(taskID)
	s.bc.CloseTask(taskID)
	if s.cache != nil {
		_ = s.cache.Delete(ctx, taskCacheKey(middleware.CallerID(ctx), taskID))
	}
	return nil
}

// Resubscribe attaches a new event stream to an existing task. The first
// event is always a full task snapshot. A terminal task has no stream
// left to attach to; callers fetch its snapshot with Get instead.
func (s *TaskService) Resubscribe(ctx context.Context, taskID string) (*broadcast.Subscriber, error) {
	unlock := s.locks.lock(taskID)
	defer unlock()

	t, err := s.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.Status.State.Terminal() {
		return nil, domain.ErrUnsupportedOperation.
			WithMessage("task %s is %s; its stream is closed", t.ID, t.Status.State).
			WithDetail("state", string(t.Status.State))
	}

	return s.bc.Register(taskID, a2a.SnapshotEvent(t)), nil
}

// transitionLocked moves the task to a new state, records the optional
// status message in history, persists, and publishes the status event.
// The caller holds the task's lock. A repeated state is treated as a
// status refresh rather than an illegal transition, so an executor may
// report Working with a progress message while already working.
func (s *TaskService) transitionLocked(ctx context.Context, t *a2a.Task, to a2a.TaskState, msg *a2a.Message) error {
	if t.Status.State != to && !a2a.CanTransition(t.Status.State, to) {
		return domain.ErrInvalidAgentResponse.
			WithMessage("illegal transition from %s to %s", t.Status.State, to).
			WithDetail("from", string(t.Status.State)).
			WithDetail("to", string(to))
	}

	if msg != nil {
		m := msg.Clone()
		m.TaskID = t.ID
		m.ContextID = t.ContextID
		if m.MessageID == "" {
			m.MessageID = a2a.NewMessageID()
		}
		t.History = append(t.History, m)
		msg = &m
	}
	t.Status = a2a.TaskStatus{
		State:     to,
		Message:   msg,
		Timestamp: time.Now().UTC(),
	}

	if err := s.store.Save(ctx, t); err != nil {
		return err
	}

	final := to.Terminal()
	s.publishLocked(ctx, t.ID, a2a.StatusEvent(t, final))
	if final {
		s.cacheTask(ctx, t)
	}
	return nil
}

// publishLocked fans the event out to stream subscribers and, when a bus
// is configured, to the push delivery pipeline. The caller holds the
// task's lock, which fixes the event order every consumer observes. A bus
// publish failure is logged, not surfaced: the state change is already
// durable and JetStream redelivery covers the delivery path, not the
// publish path, so the event is lost only for webhooks.
func (s *TaskService) publishLocked(ctx context.Context, taskID string, ev a2a.Event) {
	s.bc.Publish(taskID, ev)
	if s.metrics != nil {
		s.metrics.EventsPublished.Add(ctx, 1)
	}

	if s.bus == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("failed to marshal event for bus", "task_id", taskID, "error", err)
		return
	}
	if err := s.bus.Publish(ctx, eventbus.EventSubject(taskID), data); err != nil {
		slog.Warn("failed to publish event to bus", "task_id", taskID, "error", err)
	}
}

func (s *TaskService) shape(t *a2a.Task, historyLength *int, includeArtifacts bool) {
	t.TrimHistory(historyLength, s.historyDef)
	if !includeArtifacts {
		t.Artifacts = nil
		return
	}
	// Requested but empty is distinct from not requested on the wire.
	if t.Artifacts == nil {
		t.Artifacts = []a2a.Artifact{}
	}
}

func (s *TaskService) registerCancel(taskID string, cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancels[taskID] = cancel
	s.mu.Unlock()
}

// stopExecutor cancels the task's executor context, if one is running.
func (s *TaskService) stopExecutor(taskID string) {
	s.mu.Lock()
	cancel, ok := s.cancels[taskID]
	if ok {
		delete(s.cancels, taskID)
	}
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

func taskCacheKey(caller, taskID string) string {
	return "task." + caller + "." + taskID
}

// cachedTask returns a cached terminal snapshot of the task, if present.
func (s *TaskService) cachedTask(ctx context.Context, taskID string) (*a2a.Task, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, ok, err := s.cache.Get(ctx, taskCacheKey(middleware.CallerID(ctx), taskID))
	if err != nil || !ok {
		return nil, false
	}
	var t a2a.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, false
	}
	return &t, true
}

// cacheTask stores a terminal snapshot. Only terminal tasks are cached;
// they can no longer change, so the entry never goes stale.
func (s *TaskService) cacheTask(ctx context.Context, t *a2a.Task) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(t)
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, taskCacheKey(middleware.CallerID(ctx), t.ID), data, s.taskTTL)
}
