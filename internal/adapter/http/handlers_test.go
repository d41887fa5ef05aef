package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/agentrelay/agentrelay/internal/adapter/memory"
	"github.com/agentrelay/agentrelay/internal/broadcast"
	"github.com/agentrelay/agentrelay/internal/config"
	"github.com/agentrelay/agentrelay/internal/domain/a2a"
	"github.com/agentrelay/agentrelay/internal/port/agent"
	"github.com/agentrelay/agentrelay/internal/service"
)

// completingExecutor finishes every turn with one artifact.
type completingExecutor struct{}

func (completingExecutor) Execute(ctx context.Context, rc agent.RequestContext, u agent.Updater) error {
	if err := u.Working(ctx, nil); err != nil {
		return err
	}
	if err := u.AddArtifact(ctx, a2a.NewTextArtifact("result", "done: "+rc.Message.Text()), true); err != nil {
		return err
	}
	return u.Complete(ctx, nil)
}

func newTestRouter(t *testing.T) chi.Router {
	t.Helper()

	cfg := config.Defaults()
	cfg.Agent.Name = "relay-test"

	bc := broadcast.New(32)
	tasks := memory.NewTaskStore()
	pushConfigs := memory.NewPushStore()

	taskSvc := service.NewTaskService(service.TaskServiceConfig{
		Store:            tasks,
		PushConfigs:      pushConfigs,
		Executor:         completingExecutor{},
		Broadcaster:      bc,
		PushEnabled:      true,
		PushAllowPrivate: true,
	})
	pushSvc := service.NewPushService(pushConfigs, tasks, nil, nil, true, true, nil)
	cardSvc := service.NewCardService(cfg, nil, nil)

	r := chi.NewRouter()
	MountRoutes(r, NewHandlers(taskSvc, pushSvc, cardSvc, bc, 0))
	return r
}

func doJSON(t *testing.T, r chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func sendBlocking(t *testing.T, r chi.Router, text string) *a2a.Task {
	t.Helper()
	rec := doJSON(t, r, http.MethodPost, "/v1/message:send", service.SendParams{
		Message:       a2a.NewTextMessage(a2a.RoleUser, text),
		Configuration: &service.SendConfiguration{Blocking: true},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("send: status = %d body = %s", rec.Code, rec.Body)
	}
	var ev a2a.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.Task == nil {
		t.Fatalf("expected task event, got %s", rec.Body)
	}
	return ev.Task
}

func TestAgentCardEndpoint(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodGet, "/.well-known/agent-card.json", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var card a2a.AgentCard
	if err := json.Unmarshal(rec.Body.Bytes(), &card); err != nil {
		t.Fatalf("decode card: %v", err)
	}
	if card.Name != "relay-test" || card.ProtocolVersion != a2a.ProtocolVersion {
		t.Fatalf("card = %+v", card)
	}
}

func TestSendAndGetTask(t *testing.T) {
	r := newTestRouter(t)

	task := sendBlocking(t, r, "hello")
	if task.Status.State != a2a.TaskStateCompleted {
		t.Fatalf("state = %s, want completed", task.Status.State)
	}

	rec := doJSON(t, r, http.MethodGet, "/v1/tasks/"+task.ID+"?includeArtifacts=true", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status = %d body = %s", rec.Code, rec.Body)
	}
	var got a2a.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode task: %v", err)
	}
	if len(got.Artifacts) != 1 || got.Artifacts[0].Parts[0].Text != "done: hello" {
		t.Fatalf("artifacts = %+v", got.Artifacts)
	}
}

func TestGetTaskNotFoundBody(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodGet, "/v1/tasks/no-such-task", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var body struct {
		Code   int    `json:"code"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Code != -32001 || body.Reason != "task_not_found" {
		t.Fatalf("error body = %+v", body)
	}
}

func TestCancelCompletedTaskBody(t *testing.T) {
	r := newTestRouter(t)
	task := sendBlocking(t, r, "finish fast")

	rec := doJSON(t, r, http.MethodPost, "/v1/tasks/"+task.ID+":cancel", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "task_not_cancelable") {
		t.Fatalf("body = %s", rec.Body)
	}
}

func TestSendToCompletedTaskBody(t *testing.T) {
	r := newTestRouter(t)
	task := sendBlocking(t, r, "finish fast")

	followup := a2a.NewTextMessage(a2a.RoleUser, "more")
	followup.TaskID = task.ID
	rec := doJSON(t, r, http.MethodPost, "/v1/message:send", service.SendParams{Message: followup})
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "unsupported_operation") {
		t.Fatalf("body = %s", rec.Body)
	}
	if !strings.Contains(rec.Body.String(), "-32004") {
		t.Fatalf("body = %s", rec.Body)
	}
}

func TestSubscribeCompletedTaskBody(t *testing.T) {
	r := newTestRouter(t)
	task := sendBlocking(t, r, "finish fast")

	rec := doJSON(t, r, http.MethodGet, "/v1/tasks/"+task.ID+":subscribe", nil)
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "unsupported_operation") {
		t.Fatalf("body = %s", rec.Body)
	}
}

func TestListTasksEndpoint(t *testing.T) {
	r := newTestRouter(t)
	for i := 0; i < 3; i++ {
		sendBlocking(t, r, fmt.Sprintf("job %d", i))
	}

	rec := doJSON(t, r, http.MethodGet, "/v1/tasks?pageSize=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	var page struct {
		Tasks         []a2a.Task `json:"tasks"`
		TotalSize     int        `json:"totalSize"`
		NextPageToken string     `json:"nextPageToken"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if page.TotalSize != 3 || len(page.Tasks) != 2 || page.NextPageToken == "" {
		t.Fatalf("page = %+v", page)
	}
}

func TestDeleteTaskEndpoint(t *testing.T) {
	r := newTestRouter(t)
	task := sendBlocking(t, r, "ephemeral")

	rec := doJSON(t, r, http.MethodDelete, "/v1/tasks/"+task.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status = %d", rec.Code)
	}
	rec = doJSON(t, r, http.MethodGet, "/v1/tasks/"+task.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: status = %d", rec.Code)
	}
}

func TestPushConfigEndpoints(t *testing.T) {
	r := newTestRouter(t)
	task := sendBlocking(t, r, "notify me")

	base := "/v1/tasks/" + task.ID + "/pushNotificationConfigs"
	rec := doJSON(t, r, http.MethodPost, base, a2a.PushNotificationConfig{URL: "https://hooks.example.com/a2a"})
	if rec.Code != http.StatusOK {
		t.Fatalf("set: status = %d body = %s", rec.Code, rec.Body)
	}
	var set a2a.TaskPushNotificationConfig
	if err := json.Unmarshal(rec.Body.Bytes(), &set); err != nil {
		t.Fatalf("decode set response: %v", err)
	}
	if set.TaskID != task.ID || set.Config.ID == "" {
		t.Fatalf("set response = %+v", set)
	}

	rec = doJSON(t, r, http.MethodGet, base+"/"+set.Config.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status = %d", rec.Code)
	}

	rec = doJSON(t, r, http.MethodDelete, base+"/"+set.Config.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status = %d", rec.Code)
	}
}

func TestStreamMessageSSE(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/v1/message:stream", service.SendParams{
		Message: a2a.NewTextMessage(a2a.RoleUser, "stream it"),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	var events []a2a.Event
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev a2a.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		events = append(events, ev)
	}
	if len(events) < 3 {
		t.Fatalf("expected snapshot, artifact, and status events, got %d", len(events))
	}
	if events[0].Kind() != a2a.KindTask {
		t.Fatalf("first event kind = %s", events[0].Kind())
	}
	if !events[len(events)-1].Final() {
		t.Fatal("stream must end with the final event")
	}
}
