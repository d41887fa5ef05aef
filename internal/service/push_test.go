package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/agentrelay/agentrelay/internal/adapter/memory"
	"github.com/agentrelay/agentrelay/internal/domain"
	"github.com/agentrelay/agentrelay/internal/domain/a2a"
	"github.com/agentrelay/agentrelay/internal/port/eventbus"
)

type recordingDeliverer struct {
	mu        sync.Mutex
	delivered []a2a.PushNotificationConfig
	fail      error
}

func (d *recordingDeliverer) Deliver(_ context.Context, _ string, cfg a2a.PushNotificationConfig, _ a2a.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return d.fail
	}
	d.delivered = append(d.delivered, cfg)
	return nil
}

type pushEnv struct {
	svc       *PushService
	tasks     *memory.TaskStore
	configs   *memory.PushStore
	deliverer *recordingDeliverer
}

// newPushEnv builds a PushService over in-memory stores. Private
// destinations are allowed so tests can use hostnames without resolving
// them; SSRF checks are exercised separately with address literals.
func newPushEnv(enabled bool) *pushEnv {
	tasks := memory.NewTaskStore()
	configs := memory.NewPushStore()
	deliverer := &recordingDeliverer{}
	return &pushEnv{
		svc:       NewPushService(configs, tasks, nil, deliverer, enabled, true, nil),
		tasks:     tasks,
		configs:   configs,
		deliverer: deliverer,
	}
}

func seedPushTask(t *testing.T, env *pushEnv, ctx context.Context, id string) {
	t.Helper()
	task := &a2a.Task{
		ID:        id,
		ContextID: a2a.NewContextID(),
		Status:    a2a.TaskStatus{State: a2a.TaskStateWorking, Timestamp: time.Now().UTC()},
	}
	if err := env.tasks.Save(ctx, task); err != nil {
		t.Fatalf("seed task: %v", err)
	}
}

func TestPushDisabled(t *testing.T) {
	env := newPushEnv(false)
	ctx := testCtx()

	_, err := env.svc.Set(ctx, "t1", a2a.PushNotificationConfig{URL: "https://hooks.example.com"})
	if !errors.Is(err, domain.ErrPushNotificationNotSupported) {
		t.Fatalf("set: expected ErrPushNotificationNotSupported, got %v", err)
	}
	if _, err := env.svc.List(ctx, "t1"); !errors.Is(err, domain.ErrPushNotificationNotSupported) {
		t.Fatalf("list: expected ErrPushNotificationNotSupported, got %v", err)
	}
	if err := env.svc.Delete(ctx, "t1", "c1"); !errors.Is(err, domain.ErrPushNotificationNotSupported) {
		t.Fatalf("delete: expected ErrPushNotificationNotSupported, got %v", err)
	}

	cancel, err := env.svc.Start(context.Background())
	if err != nil {
		t.Fatalf("start while disabled: %v", err)
	}
	cancel()
}

func TestPushSet(t *testing.T) {
	env := newPushEnv(true)
	ctx := testCtx()
	seedPushTask(t, env, ctx, "t1")

	stored, err := env.svc.Set(ctx, "t1", a2a.PushNotificationConfig{URL: "https://hooks.example.com/a2a"})
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if stored.ID == "" {
		t.Fatal("expected a generated config ID")
	}

	got, err := env.svc.Get(ctx, "t1", stored.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.URL != "https://hooks.example.com/a2a" {
		t.Fatalf("url = %q", got.URL)
	}
}

func TestPushSetMissingTask(t *testing.T) {
	env := newPushEnv(true)

	_, err := env.svc.Set(testCtx(), "no-such-task", a2a.PushNotificationConfig{URL: "https://hooks.example.com"})
	if !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestPushSetRejectsPrivateURL(t *testing.T) {
	env := newPushEnv(true)
	ctx := testCtx()
	seedPushTask(t, env, ctx, "t1")
	// A separate service with the production SSRF posture.
	strict := NewPushService(env.configs, env.tasks, nil, env.deliverer, true, false, nil)

	for _, url := range []string{
		"ftp://hooks.example.com/a2a",
		"https://127.0.0.1/hook",
		"https://10.0.0.8/hook",
		"https://169.254.169.254/latest/meta-data",
		"https://[::1]/hook",
	} {
		if _, err := strict.Set(ctx, "t1", a2a.PushNotificationConfig{URL: url}); !errors.Is(err, domain.ErrInvalidRequest) {
			t.Fatalf("url %s: expected ErrInvalidRequest, got %v", url, err)
		}
	}
}

func TestPushGetMissingConfig(t *testing.T) {
	env := newPushEnv(true)
	ctx := testCtx()
	seedPushTask(t, env, ctx, "t1")

	_, err := env.svc.Get(ctx, "t1", "no-such-config")
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestPushDeleteIdempotent(t *testing.T) {
	env := newPushEnv(true)
	ctx := testCtx()
	seedPushTask(t, env, ctx, "t1")

	if err := env.svc.Delete(ctx, "t1", "no-such-config"); err != nil {
		t.Fatalf("delete absent config: %v", err)
	}
}

func TestPushHandleDelivers(t *testing.T) {
	env := newPushEnv(true)
	ctx := testCtx()
	seedPushTask(t, env, ctx, "t1")

	for _, url := range []string{"https://a.example.com/h", "https://b.example.com/h"} {
		if _, err := env.svc.Set(ctx, "t1", a2a.PushNotificationConfig{URL: url}); err != nil {
			t.Fatalf("set %s: %v", url, err)
		}
	}

	ev := a2a.Event{StatusUpdate: &a2a.TaskStatusUpdateEvent{
		TaskID: "t1",
		Status: a2a.TaskStatus{State: a2a.TaskStateCompleted},
		Final:  true,
	}}
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}

	if err := env.svc.handle(ctx, eventbus.EventSubject("t1"), data); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(env.deliverer.delivered) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(env.deliverer.delivered))
	}
}

func TestPushHandleDeliveryFailure(t *testing.T) {
	env := newPushEnv(true)
	ctx := testCtx()
	seedPushTask(t, env, ctx, "t1")
	if _, err := env.svc.Set(ctx, "t1", a2a.PushNotificationConfig{URL: "https://a.example.com/h"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	env.deliverer.fail = errors.New("endpoint down")

	data, _ := json.Marshal(a2a.Event{StatusUpdate: &a2a.TaskStatusUpdateEvent{TaskID: "t1", Final: true}})
	if err := env.svc.handle(ctx, eventbus.EventSubject("t1"), data); err == nil {
		t.Fatal("handle must surface the delivery failure for redelivery")
	}
}

func TestPushHandleMalformedPayload(t *testing.T) {
	env := newPushEnv(true)

	// A payload that will never parse is dropped, not redelivered.
	if err := env.svc.handle(testCtx(), eventbus.EventSubject("t1"), []byte("{not json")); err != nil {
		t.Fatalf("malformed payload should not be redelivered, got %v", err)
	}
}

func TestPushHandleUnexpectedSubject(t *testing.T) {
	env := newPushEnv(true)

	if err := env.svc.handle(testCtx(), "tasks.other", []byte("{}")); err != nil {
		t.Fatalf("unexpected subject should be ignored, got %v", err)
	}
}
