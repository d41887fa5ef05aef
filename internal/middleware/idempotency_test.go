package middleware_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/agentrelay/agentrelay/internal/middleware"
)

// mockKV is an in-memory mock of jetstream.KeyValue for testing.
type mockKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMockKV() *mockKV {
	return &mockKV{data: make(map[string][]byte)}
}

func (m *mockKV) Get(_ context.Context, key string) (jetstream.KeyValueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, jetstream.ErrKeyNotFound
	}
	return &mockEntry{key: key, value: v}, nil
}

func (m *mockKV) Put(_ context.Context, key string, value []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return 1, nil
}

// Implement remaining jetstream.KeyValue interface methods as no-ops.
func (m *mockKV) Bucket() string { return "test" }
func (m *mockKV) Create(_ context.Context, _ string, _ []byte, _ ...jetstream.KVCreateOpt) (uint64, error) {
	return 0, nil
}
func (m *mockKV) Update(_ context.Context, _ string, _ []byte, _ uint64) (uint64, error) {
	return 0, nil
}
func (m *mockKV) PutString(_ context.Context, _, _ string) (uint64, error)             { return 0, nil }
func (m *mockKV) Delete(_ context.Context, _ string, _ ...jetstream.KVDeleteOpt) error { return nil }
func (m *mockKV) Purge(_ context.Context, _ string, _ ...jetstream.KVDeleteOpt) error  { return nil }
func (m *mockKV) GetRevision(_ context.Context, _ string, _ uint64) (jetstream.KeyValueEntry, error) {
	return nil, nil
}
func (m *mockKV) Keys(_ context.Context, _ ...jetstream.WatchOpt) ([]string, error) { return nil, nil }
func (m *mockKV) ListKeys(_ context.Context, _ ...jetstream.WatchOpt) (jetstream.KeyLister, error) {
	return nil, nil
}
func (m *mockKV) ListKeysFiltered(_ context.Context, _ ...string) (jetstream.KeyLister, error) {
	return nil, nil
}
func (m *mockKV) History(_ context.Context, _ string, _ ...jetstream.WatchOpt) ([]jetstream.KeyValueEntry, error) {
	return nil, nil
}
func (m *mockKV) Watch(_ context.Context, _ string, _ ...jetstream.WatchOpt) (jetstream.KeyWatcher, error) {
	return nil, nil
}
func (m *mockKV) WatchAll(_ context.Context, _ ...jetstream.WatchOpt) (jetstream.KeyWatcher, error) {
	return nil, nil
}
func (m *mockKV) WatchFiltered(_ context.Context, _ []string, _ ...jetstream.WatchOpt) (jetstream.KeyWatcher, error) {
	return nil, nil
}
func (m *mockKV) Status(_ context.Context) (jetstream.KeyValueStatus, error)      { return nil, nil }
func (m *mockKV) PurgeDeletes(_ context.Context, _ ...jetstream.KVPurgeOpt) error { return nil }

// mockEntry implements jetstream.KeyValueEntry.
type mockEntry struct {
	key   string
	value []byte
}

func (e *mockEntry) Bucket() string                  { return "test" }
func (e *mockEntry) Key() string                     { return e.key }
func (e *mockEntry) Value() []byte                   { return e.value }
func (e *mockEntry) Revision() uint64                { return 1 }
func (e *mockEntry) Created() time.Time              { return time.Time{} }
func (e *mockEntry) Delta() uint64                   { return 0 }
func (e *mockEntry) Operation() jetstream.KeyValueOp { return jetstream.KeyValuePut }

func makeCountingHandler(counter *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		*counter++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprintf(w, `{"call":%d}`, *counter)
	})
}

func postWithKey(handler http.Handler, key, caller string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/test", http.NoBody)
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	if caller != "" {
		req = req.WithContext(middleware.WithCallerID(req.Context(), caller))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestIdempotencyNoHeader(t *testing.T) {
	counter := 0
	handler := middleware.Idempotency(newMockKV())(makeCountingHandler(&counter))

	rec := postWithKey(handler, "", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if counter != 1 {
		t.Fatalf("expected 1 call, got %d", counter)
	}
}

func TestIdempotencyStoresNamespacedKey(t *testing.T) {
	counter := 0
	kv := newMockKV()
	handler := middleware.Idempotency(kv)(makeCountingHandler(&counter))

	rec := postWithKey(handler, "key-1", "caller-a")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	kv.mu.Lock()
	_, ok := kv.data["caller-a.key-1"]
	kv.mu.Unlock()
	if !ok {
		t.Fatal("expected a caller-scoped entry in the KV store")
	}
}

func TestIdempotencySecondRequestReplays(t *testing.T) {
	counter := 0
	handler := middleware.Idempotency(newMockKV())(makeCountingHandler(&counter))

	rec1 := postWithKey(handler, "key-2", "caller-a")
	rec2 := postWithKey(handler, "key-2", "caller-a")

	if counter != 1 {
		t.Fatalf("expected handler called once, got %d", counter)
	}
	if rec2.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201, got %d", rec2.Code)
	}
	if rec1.Body.String() != rec2.Body.String() {
		t.Fatalf("replayed body differs: %q vs %q", rec1.Body, rec2.Body)
	}
}

func TestIdempotencyReplayMarked(t *testing.T) {
	counter := 0
	handler := middleware.Idempotency(newMockKV())(makeCountingHandler(&counter))

	rec1 := postWithKey(handler, "key-3", "caller-a")
	rec2 := postWithKey(handler, "key-3", "caller-a")

	if got := rec1.Header().Get("Idempotent-Replay"); got != "" {
		t.Fatalf("first response must not be marked as replay, got %q", got)
	}
	if got := rec2.Header().Get("Idempotent-Replay"); got != "true" {
		t.Fatalf("expected Idempotent-Replay: true, got %q", got)
	}
}

func TestIdempotencyServerErrorNotCached(t *testing.T) {
	counter := 0
	handler := middleware.Idempotency(newMockKV())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		counter++
		w.WriteHeader(http.StatusBadGateway)
	}))

	postWithKey(handler, "key-err", "caller-a")
	postWithKey(handler, "key-err", "caller-a")

	if counter != 2 {
		t.Fatalf("server errors must be retried, got %d calls", counter)
	}
}

func TestIdempotencyCallerIsolation(t *testing.T) {
	counter := 0
	handler := middleware.Idempotency(newMockKV())(makeCountingHandler(&counter))

	postWithKey(handler, "shared-key", "caller-a")
	postWithKey(handler, "shared-key", "caller-b")

	if counter != 2 {
		t.Fatalf("callers must not share cached responses, got %d calls", counter)
	}
}

func TestIdempotencyGETIgnored(t *testing.T) {
	counter := 0
	handler := middleware.Idempotency(newMockKV())(makeCountingHandler(&counter))

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("Idempotency-Key", "key-get")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if counter != 1 {
		t.Fatalf("expected handler called, got %d", counter)
	}
}

func TestIdempotencyDifferentKeys(t *testing.T) {
	counter := 0
	handler := middleware.Idempotency(newMockKV())(makeCountingHandler(&counter))

	postWithKey(handler, "key-a", "caller-a")
	postWithKey(handler, "key-b", "caller-a")

	if counter != 2 {
		t.Fatalf("expected 2 calls, got %d", counter)
	}
}
