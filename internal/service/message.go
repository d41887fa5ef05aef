package service

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/agentrelay/agentrelay/internal/adapter/webhook"
	"github.com/agentrelay/agentrelay/internal/broadcast"
	"github.com/agentrelay/agentrelay/internal/domain"
	"github.com/agentrelay/agentrelay/internal/domain/a2a"
	"github.com/agentrelay/agentrelay/internal/port/agent"

	cfotel "github.com/agentrelay/agentrelay/internal/adapter/otel"
)

// SendConfiguration carries the caller's per-send options.
type SendConfiguration struct {
	AcceptedOutputModes []string `json:"acceptedOutputModes,omitempty"`
	// HistoryLength shapes the task returned by a blocking send. Nil
	// applies the server default; zero omits history.
	HistoryLength *int `json:"historyLength,omitempty"`
	// PushNotificationConfig registers a webhook for the task in the same
	// call that creates it.
	PushNotificationConfig *a2a.PushNotificationConfig `json:"pushNotificationConfig,omitempty"`
	// Blocking makes the send wait until the task reaches a terminal or
	// interrupted state before returning.
	Blocking bool `json:"blocking,omitempty"`
}

// SendParams is one message/send or message/stream request.
type SendParams struct {
	Message       a2a.Message        `json:"message"`
	Configuration *SendConfiguration `json:"configuration,omitempty"`
	Metadata      map[string]any     `json:"metadata,omitempty"`

	// Extensions lists the extension URIs the caller declared for this
	// request. Filled by the transport binding, never from the body.
	Extensions []string `json:"-"`
}

// Send routes an inbound message. A message without a task reference
// either gets a direct reply (agent policy) or creates a new task; a
// message referencing an interrupted task resumes it. The returned event
// is a message for direct replies, otherwise a task snapshot.
func (s *TaskService) Send(ctx context.Context, p SendParams) (a2a.Event, error) {
	t, sub, ev, err := s.route(ctx, p, false)
	if err != nil {
		return a2a.Event{}, err
	}
	if ev != nil {
		return *ev, nil
	}

	blocking := p.Configuration != nil && p.Configuration.Blocking
	if blocking {
		return s.awaitOutcome(ctx, t.ID, sub, p)
	}
	if sub != nil {
		s.bc.Unsubscribe(sub)
	}

	snap := t.Clone()
	s.shape(snap, historyLength(p), false)
	return a2a.SnapshotEvent(snap), nil
}

// SendStreaming routes an inbound message like Send but returns a live
// event stream. The first event is always a full task snapshot; direct
// replies produce a single message event followed by stream close.
func (s *TaskService) SendStreaming(ctx context.Context, p SendParams) (*broadcast.Subscriber, error) {
	_, sub, ev, err := s.route(ctx, p, true)
	if err != nil {
		return nil, err
	}
	if ev != nil {
		// Direct reply: a short-lived stream carrying just the message.
		sub = s.bc.Register(a2a.NewTaskID(), *ev)
		s.bc.Unsubscribe(sub)
		return sub, nil
	}
	return sub, nil
}

// route validates and dispatches the message, returning either a running
// task (with an optional pre-registered subscriber) or a direct reply
// event.
func (s *TaskService) route(ctx context.Context, p SendParams, subscribe bool) (*a2a.Task, *broadcast.Subscriber, *a2a.Event, error) {
	if err := p.Message.Validate(); err != nil {
		return nil, nil, nil, err
	}
	if err := s.checkExtensions(p.Extensions); err != nil {
		return nil, nil, nil, err
	}

	msg := p.Message.Clone()
	if msg.MessageID == "" {
		msg.MessageID = a2a.NewMessageID()
	}

	if msg.TaskID == "" {
		if r, ok := s.executor.(agent.Responder); ok {
			reply, done, err := r.Respond(ctx, msg)
			if err != nil {
				return nil, nil, nil, err
			}
			if done {
				return nil, nil, &a2a.Event{Message: reply}, nil
			}
		}
		t, sub, err := s.startTask(ctx, msg, p, subscribe)
		return t, sub, nil, err
	}

	t, sub, err := s.resumeTask(ctx, msg, p, subscribe)
	return t, sub, nil, err
}

// startTask creates a task for the message and launches the executor.
func (s *TaskService) startTask(ctx context.Context, msg a2a.Message, p SendParams, subscribe bool) (*a2a.Task, *broadcast.Subscriber, error) {
	t := a2a.NewTask(msg)
	msg = t.History[0]

	unlock := s.locks.lock(t.ID)
	defer unlock()

	if err := s.store.Save(ctx, t); err != nil {
		return nil, nil, err
	}
	if err := s.registerSendPush(ctx, t.ID, p); err != nil {
		// Roll the task back rather than run without the requested webhook.
		_ = s.store.Delete(ctx, t.ID)
		return nil, nil, err
	}

	var sub *broadcast.Subscriber
	if subscribe || (p.Configuration != nil && p.Configuration.Blocking) {
		sub = s.bc.Register(t.ID, a2a.SnapshotEvent(t.Clone()))
	}

	if s.metrics != nil {
		s.metrics.TasksCreated.Add(ctx, 1)
	}
	s.spawn(ctx, t, msg)
	return t, sub, nil
}

// resumeTask appends the message to an existing task and, when the task
// was paused awaiting input, resumes execution.
func (s *TaskService) resumeTask(ctx context.Context, msg a2a.Message, p SendParams, subscribe bool) (*a2a.Task, *broadcast.Subscriber, error) {
	unlock := s.locks.lock(msg.TaskID)
	defer unlock()

	t, err := s.store.Get(ctx, msg.TaskID)
	if err != nil {
		return nil, nil, err
	}

	if msg.ContextID != "" && msg.ContextID != t.ContextID {
		return nil, nil, domain.ErrInvalidRequest.
			WithMessage("message contextId %q does not match task context %q", msg.ContextID, t.ContextID)
	}
	if t.Status.State.Terminal() {
		return nil, nil, domain.ErrUnsupportedOperation.
			WithMessage("task %s is %s and accepts no further messages", t.ID, t.Status.State).
			WithDetail("state", string(t.Status.State))
	}
	if !t.Status.State.Interrupted() {
		return nil, nil, domain.ErrInvalidRequest.
			WithMessage("task %s is still %s; wait for it to pause or finish", t.ID, t.Status.State).
			WithDetail("state", string(t.Status.State))
	}

	// Register the webhook first; a rejected config must not mutate the task.
	if err := s.registerSendPush(ctx, t.ID, p); err != nil {
		return nil, nil, err
	}

	msg.ContextID = t.ContextID
	t.History = append(t.History, msg)

	if err := s.transitionLocked(ctx, t, a2a.TaskStateWorking, nil); err != nil {
		return nil, nil, err
	}

	var sub *broadcast.Subscriber
	if subscribe || (p.Configuration != nil && p.Configuration.Blocking) {
		sub = s.bc.Register(t.ID, a2a.SnapshotEvent(t.Clone()))
	}

	s.spawn(ctx, t, msg)
	return t, sub, nil
}

// registerSendPush stores a webhook config supplied inline with the send.
// The same capability gate and destination checks apply as for a config
// registered through the push endpoints.
func (s *TaskService) registerSendPush(ctx context.Context, taskID string, p SendParams) error {
	if p.Configuration == nil || p.Configuration.PushNotificationConfig == nil {
		return nil
	}
	if !s.pushEnabled || s.pushConfigs == nil {
		return domain.ErrPushNotificationNotSupported
	}
	cfg := *p.Configuration.PushNotificationConfig
	if err := webhook.ValidateURL(cfg.URL, s.pushPrivate); err != nil {
		return domain.ErrInvalidRequest.
			WithMessage("push notification url rejected: %v", err).
			WithDetail("url", cfg.URL)
	}
	_, err := s.pushConfigs.Save(ctx, taskID, cfg)
	return err
}

// spawn starts the executor on a background goroutine. The run context is
// detached from the request's deadline but keeps its values, so store
// writes stay scoped to the caller after the HTTP request returns.
func (s *TaskService) spawn(reqCtx context.Context, t *a2a.Task, msg a2a.Message) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(reqCtx))
	s.registerCancel(t.ID, cancel)

	rc := agent.RequestContext{
		TaskID:    t.ID,
		ContextID: t.ContextID,
		Message:   msg,
		Task:      t.Clone(),
	}
	go s.run(runCtx, rc)
}

// run drives one executor turn and settles the task if the executor
// returns without doing so itself.
func (s *TaskService) run(ctx context.Context, rc agent.RequestContext) {
	started := time.Now()
	ctx, span := cfotel.StartExecutionSpan(ctx, rc.TaskID, rc.ContextID)
	defer span.End()
	defer s.stopExecutor(rc.TaskID)

	execErr := s.executor.Execute(ctx, rc, &taskUpdater{svc: s, taskID: rc.TaskID})

	unlock := s.locks.lock(rc.TaskID)
	defer unlock()

	t, err := s.store.Get(ctx, rc.TaskID)
	if err != nil {
		// Purged while running.
		return
	}
	state := t.Status.State
	if state.Terminal() {
		s.observeOutcome(ctx, state, started)
		return
	}
	if state.Interrupted() && execErr == nil {
		return
	}

	// The executor returned while the task still looks in-flight. An
	// error becomes a failure; a silent return is an agent bug surfaced
	// the same way.
	var msg *a2a.Message
	if execErr != nil {
		slog.Error("executor failed", "task_id", rc.TaskID, "error", execErr)
		m := a2a.NewTextMessage(a2a.RoleAgent, execErr.Error())
		msg = &m
	} else {
		slog.Error("executor returned without settling task", "task_id", rc.TaskID, "state", state)
		m := a2a.NewTextMessage(a2a.RoleAgent, domain.ErrInvalidAgentResponse.Message)
		msg = &m
	}
	if err := s.transitionLocked(ctx, t, a2a.TaskStateFailed, msg); err != nil {
		slog.Error("failed to settle task", "task_id", rc.TaskID, "error", err)
		return
	}
	s.observeOutcome(ctx, a2a.TaskStateFailed, started)
}

func (s *TaskService) observeOutcome(ctx context.Context, state a2a.TaskState, started time.Time) {
	if s.metrics == nil {
		return
	}
	switch state {
	case a2a.TaskStateCompleted:
		s.metrics.TasksCompleted.Add(ctx, 1)
	case a2a.TaskStateFailed, a2a.TaskStateRejected:
		s.metrics.TasksFailed.Add(ctx, 1)
	}
	s.metrics.TaskDuration.Record(ctx, time.Since(started).Seconds())
}

// awaitOutcome consumes the subscriber until the task pauses or finishes,
// then returns a fresh shaped snapshot.
func (s *TaskService) awaitOutcome(ctx context.Context, taskID string, sub *broadcast.Subscriber, p SendParams) (a2a.Event, error) {
	defer s.bc.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return a2a.Event{}, ctx.Err()
		case ev, ok := <-sub.Events():
			if !ok {
				return s.snapshotEvent(ctx, taskID, p)
			}
			if ev.Final() {
				return s.snapshotEvent(ctx, taskID, p)
			}
			if ev.StatusUpdate != nil && ev.StatusUpdate.Status.State.Interrupted() {
				return s.snapshotEvent(ctx, taskID, p)
			}
		}
	}
}

func (s *TaskService) snapshotEvent(ctx context.Context, taskID string, p SendParams) (a2a.Event, error) {
	t, err := s.Get(ctx, taskID, historyLength(p), false)
	if err != nil {
		return a2a.Event{}, err
	}
	return a2a.SnapshotEvent(t), nil
}

// checkExtensions enforces the agent's required extensions: a caller that
// does not declare every required URI cannot send messages.
func (s *TaskService) checkExtensions(declared []string) error {
	for _, uri := range s.required {
		if !slices.Contains(declared, uri) {
			return domain.ErrExtensionSupportRequired.
				WithMessage("extension %s is required", uri).
				WithDetail("uri", uri)
		}
	}
	return nil
}

func historyLength(p SendParams) *int {
	if p.Configuration == nil {
		return nil
	}
	return p.Configuration.HistoryLength
}

// taskUpdater is the executor's progress handle. Each call is one atomic
// transition under the task's lock.
type taskUpdater struct {
	svc    *TaskService
	taskID string
}

func (u *taskUpdater) Working(ctx context.Context, msg *a2a.Message) error {
	return u.transition(ctx, a2a.TaskStateWorking, msg)
}

func (u *taskUpdater) InputRequired(ctx context.Context, msg *a2a.Message) error {
	return u.transition(ctx, a2a.TaskStateInputRequired, msg)
}

func (u *taskUpdater) AuthRequired(ctx context.Context, msg *a2a.Message) error {
	return u.transition(ctx, a2a.TaskStateAuthRequired, msg)
}

func (u *taskUpdater) Complete(ctx context.Context, msg *a2a.Message) error {
	return u.transition(ctx, a2a.TaskStateCompleted, msg)
}

func (u *taskUpdater) Fail(ctx context.Context, msg *a2a.Message) error {
	return u.transition(ctx, a2a.TaskStateFailed, msg)
}

func (u *taskUpdater) Reject(ctx context.Context, msg *a2a.Message) error {
	return u.transition(ctx, a2a.TaskStateRejected, msg)
}

func (u *taskUpdater) transition(ctx context.Context, to a2a.TaskState, msg *a2a.Message) error {
	unlock := u.svc.locks.lock(u.taskID)
	defer unlock()

	t, err := u.svc.store.Get(ctx, u.taskID)
	if err != nil {
		return err
	}
	return u.svc.transitionLocked(ctx, t, to, msg)
}

// AddArtifact appends an output artifact. Parts sent for an artifact ID
// the task already has extend that artifact rather than starting a new
// one.
func (u *taskUpdater) AddArtifact(ctx context.Context, artifact a2a.Artifact, lastChunk bool) error {
	unlock := u.svc.locks.lock(u.taskID)
	defer unlock()

	t, err := u.svc.store.Get(ctx, u.taskID)
	if err != nil {
		return err
	}
	if t.Status.State.Terminal() {
		return domain.ErrInvalidAgentResponse.
			WithMessage("cannot add artifact to %s task", t.Status.State)
	}

	appended := false
	for i := range t.Artifacts {
		if t.Artifacts[i].ArtifactID == artifact.ArtifactID {
			t.Artifacts[i].Parts = append(t.Artifacts[i].Parts, artifact.Parts...)
			appended = true
			break
		}
	}
	if !appended {
		if artifact.ArtifactID == "" {
			artifact.ArtifactID = a2a.NewArtifactID()
		}
		t.Artifacts = append(t.Artifacts, artifact)
	}
	t.Touch()

	if err := u.svc.store.Save(ctx, t); err != nil {
		return err
	}

	ev := a2a.ArtifactEvent(t, artifact, lastChunk)
	ev.ArtifactUpdate.Append = appended
	u.svc.publishLocked(ctx, t.ID, ev)
	return nil
}

var _ agent.Updater = (*taskUpdater)(nil)
