package memory

import (
	"context"
	"testing"

	"github.com/agentrelay/agentrelay/internal/domain/a2a"
)

func TestPushStoreSaveAssignsID(t *testing.T) {
	s := NewPushStore()
	ctx := context.Background()

	stored, err := s.Save(ctx, "t1", a2a.PushNotificationConfig{URL: "https://hooks.example.com/a2a"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if stored.ID == "" {
		t.Fatal("expected a generated config ID")
	}

	got, ok, err := s.Get(ctx, "t1", stored.ID)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.URL != "https://hooks.example.com/a2a" {
		t.Fatalf("unexpected URL %q", got.URL)
	}
}

func TestPushStoreUpsertKeepsID(t *testing.T) {
	s := NewPushStore()
	ctx := context.Background()

	if _, err := s.Save(ctx, "t1", a2a.PushNotificationConfig{ID: "cfg", URL: "https://old.example.com"}); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if _, err := s.Save(ctx, "t1", a2a.PushNotificationConfig{ID: "cfg", URL: "https://new.example.com"}); err != nil {
		t.Fatalf("second save: %v", err)
	}

	configs, err := s.List(ctx, "t1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(configs) != 1 {
		t.Fatalf("expected 1 config after upsert, got %d", len(configs))
	}
	if configs[0].URL != "https://new.example.com" {
		t.Fatalf("upsert did not replace URL, got %q", configs[0].URL)
	}
}

func TestPushStoreDeleteIdempotent(t *testing.T) {
	s := NewPushStore()
	ctx := context.Background()

	if err := s.Delete(ctx, "t1", "missing"); err != nil {
		t.Fatalf("deleting an absent config should be a no-op, got %v", err)
	}

	stored, err := s.Save(ctx, "t1", a2a.PushNotificationConfig{URL: "https://hooks.example.com"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Delete(ctx, "t1", stored.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "t1", stored.ID); ok {
		t.Fatal("config should be gone after delete")
	}
}

func TestPushStoreDeleteByTask(t *testing.T) {
	s := NewPushStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.Save(ctx, "t1", a2a.PushNotificationConfig{URL: "https://hooks.example.com"}); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	if err := s.DeleteByTask(ctx, "t1"); err != nil {
		t.Fatalf("delete by task: %v", err)
	}
	configs, err := s.List(ctx, "t1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(configs) != 0 {
		t.Fatalf("expected no configs after purge, got %d", len(configs))
	}
}
