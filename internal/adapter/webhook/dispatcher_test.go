package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentrelay/agentrelay/internal/domain/a2a"
	"github.com/agentrelay/agentrelay/internal/resilience"
)

func testDispatcher(opts Options) *Dispatcher {
	opts.AllowPrivate = true // httptest servers listen on loopback
	if opts.AttemptTimeout == 0 {
		opts.AttemptTimeout = 2 * time.Second
	}
	if opts.MaxElapsed == 0 {
		opts.MaxElapsed = 5 * time.Second
	}
	return NewDispatcher(opts, resilience.NewBreakerSet(100, time.Minute))
}

func completedEvent(taskID string) a2a.Event {
	return a2a.Event{StatusUpdate: &a2a.TaskStatusUpdateEvent{
		TaskID: taskID,
		Status: a2a.TaskStatus{State: a2a.TaskStateCompleted},
		Final:  true,
	}}
}

func TestDeliverPostsEvent(t *testing.T) {
	var gotToken, gotAuth, gotType atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken.Store(r.Header.Get("X-A2A-Notification-Token"))
		gotAuth.Store(r.Header.Get("Authorization"))
		gotType.Store(r.Header.Get("Content-Type"))

		var ev a2a.Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if ev.StatusUpdate == nil || ev.StatusUpdate.TaskID != "t1" {
			t.Errorf("unexpected event %+v", ev)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := testDispatcher(Options{Credential: "server-secret"})
	cfg := a2a.PushNotificationConfig{ID: "c1", URL: srv.URL, Token: "corr-42"}

	if err := d.Deliver(context.Background(), "t1", cfg, completedEvent("t1")); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if gotToken.Load() != "corr-42" {
		t.Fatalf("notification token = %v", gotToken.Load())
	}
	if gotAuth.Load() != "Bearer server-secret" {
		t.Fatalf("authorization = %v", gotAuth.Load())
	}
	if gotType.Load() != "application/json" {
		t.Fatalf("content type = %v", gotType.Load())
	}
}

func TestDeliverPrefersConfigCredentials(t *testing.T) {
	var gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
	}))
	defer srv.Close()

	d := testDispatcher(Options{Credential: "server-secret"})
	cfg := a2a.PushNotificationConfig{
		URL: srv.URL,
		Authentication: &a2a.PushNotificationAuthenticationInfo{
			Schemes:     []string{"bearer"},
			Credentials: "client-secret",
		},
	}

	if err := d.Deliver(context.Background(), "t1", cfg, completedEvent("t1")); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if gotAuth.Load() != "Bearer client-secret" {
		t.Fatalf("authorization = %v", gotAuth.Load())
	}
}

func TestDeliverRetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := testDispatcher(Options{MaxAttempts: 5})
	cfg := a2a.PushNotificationConfig{URL: srv.URL}

	if err := d.Deliver(context.Background(), "t1", cfg, completedEvent("t1")); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestDeliverClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	d := testDispatcher(Options{MaxAttempts: 5})
	cfg := a2a.PushNotificationConfig{URL: srv.URL}

	err := d.Deliver(context.Background(), "t1", cfg, completedEvent("t1"))
	if err == nil {
		t.Fatal("expected an error for 404")
	}
	if calls.Load() != 1 {
		t.Fatalf("client errors must not be retried, got %d attempts", calls.Load())
	}
}

func TestDeliverRetriesTooManyRequests(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := testDispatcher(Options{MaxAttempts: 3})
	cfg := a2a.PushNotificationConfig{URL: srv.URL}

	if err := d.Deliver(context.Background(), "t1", cfg, completedEvent("t1")); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 429 to be retried, got %d attempts", calls.Load())
	}
}

func TestDeliverRejectsPrivateURLWhenStrict(t *testing.T) {
	d := NewDispatcher(Options{AttemptTimeout: time.Second}, resilience.NewBreakerSet(3, time.Minute))
	cfg := a2a.PushNotificationConfig{URL: "https://127.0.0.1/hook"}

	err := d.Deliver(context.Background(), "t1", cfg, completedEvent("t1"))
	if err == nil || !strings.Contains(err.Error(), "rejected") {
		t.Fatalf("expected url rejection, got %v", err)
	}
}
