package broadcast

import (
	"errors"
	"testing"
	"time"

	"github.com/agentrelay/agentrelay/internal/domain/a2a"
)

func snapshot(taskID string) a2a.Event {
	return a2a.Event{Task: &a2a.Task{ID: taskID}}
}

func statusEvent(taskID string, state a2a.TaskState, final bool) a2a.Event {
	return a2a.Event{StatusUpdate: &a2a.TaskStatusUpdateEvent{
		TaskID: taskID,
		Status: a2a.TaskStatus{State: state},
		Final:  final,
	}}
}

// collect drains the subscriber until its channel closes.
func collect(t *testing.T, sub *Subscriber) []a2a.Event {
	t.Helper()
	var out []a2a.Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out waiting for stream close")
		}
	}
}

func TestSubscriberReceivesSnapshotFirst(t *testing.T) {
	b := New(8)
	sub := b.Register("t1", snapshot("t1"))
	b.Publish("t1", statusEvent("t1", a2a.TaskStateWorking, false))
	b.Publish("t1", statusEvent("t1", a2a.TaskStateCompleted, true))

	events := collect(t, sub)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Kind() != a2a.KindTask {
		t.Fatalf("first event should be the snapshot, got %s", events[0].Kind())
	}
	if !events[2].Final() {
		t.Fatal("last event should be final")
	}
	if sub.Err() != nil {
		t.Fatalf("unexpected subscriber error: %v", sub.Err())
	}
}

func TestAllSubscribersSeeSameOrder(t *testing.T) {
	b := New(8)
	s1 := b.Register("t1", snapshot("t1"))
	s2 := b.Register("t1", snapshot("t1"))

	states := []a2a.TaskState{a2a.TaskStateWorking, a2a.TaskStateInputRequired, a2a.TaskStateWorking}
	for _, st := range states {
		b.Publish("t1", statusEvent("t1", st, false))
	}
	b.Publish("t1", statusEvent("t1", a2a.TaskStateCompleted, true))

	e1 := collect(t, s1)
	e2 := collect(t, s2)
	if len(e1) != len(e2) {
		t.Fatalf("subscriber event counts differ: %d vs %d", len(e1), len(e2))
	}
	for i := range e1 {
		if e1[i].Kind() != e2[i].Kind() {
			t.Fatalf("event %d kind differs: %s vs %s", i, e1[i].Kind(), e2[i].Kind())
		}
		if e1[i].StatusUpdate != nil && e1[i].StatusUpdate.Status.State != e2[i].StatusUpdate.Status.State {
			t.Fatalf("event %d state differs", i)
		}
	}
}

func TestSlowSubscriberDropped(t *testing.T) {
	b := New(1)
	slow := b.Register("t1", snapshot("t1")) // queue is now full
	fast := b.Register("t1", snapshot("t1"))
	<-fast.Events() // drain the snapshot so fast has room

	b.Publish("t1", statusEvent("t1", a2a.TaskStateWorking, false))

	// slow's queue overflowed; its channel closes with ErrSlowSubscriber.
	collect(t, slow)
	if !errors.Is(slow.Err(), ErrSlowSubscriber) {
		t.Fatalf("expected ErrSlowSubscriber, got %v", slow.Err())
	}

	// fast is unaffected and still receives events.
	b.Publish("t1", statusEvent("t1", a2a.TaskStateCompleted, true))
	events := collect(t, fast)
	if len(events) != 2 {
		t.Fatalf("fast subscriber expected 2 more events, got %d", len(events))
	}
	if fast.Err() != nil {
		t.Fatalf("unexpected error on fast subscriber: %v", fast.Err())
	}
}

func TestTaskIsolation(t *testing.T) {
	b := New(8)
	s1 := b.Register("t1", snapshot("t1"))
	b.Register("t2", snapshot("t2"))

	b.Publish("t2", statusEvent("t2", a2a.TaskStateWorking, false))
	b.Publish("t1", statusEvent("t1", a2a.TaskStateCompleted, true))

	for _, ev := range collect(t, s1) {
		if ev.TaskID() != "t1" {
			t.Fatalf("subscriber of t1 received event for %q", ev.TaskID())
		}
	}
}

func TestFinalEventClosesStream(t *testing.T) {
	b := New(8)
	sub := b.Register("t1", snapshot("t1"))
	b.Publish("t1", statusEvent("t1", a2a.TaskStateCanceled, true))

	collect(t, sub)
	if b.Subscribers("t1") != 0 {
		t.Fatal("final event should remove all subscribers")
	}

	// Publishing after the final event reaches nobody and does not panic.
	b.Publish("t1", statusEvent("t1", a2a.TaskStateWorking, false))
}

func TestUnsubscribe(t *testing.T) {
	b := New(8)
	s1 := b.Register("t1", snapshot("t1"))
	s2 := b.Register("t1", snapshot("t1"))

	b.Unsubscribe(s1)
	if got := collect(t, s1); len(got) != 1 {
		t.Fatalf("unsubscribed stream should still yield the buffered snapshot, got %d events", len(got))
	}
	if s1.Err() != nil {
		t.Fatalf("unsubscribe is not an error close, got %v", s1.Err())
	}

	b.Publish("t1", statusEvent("t1", a2a.TaskStateCompleted, true))
	if got := collect(t, s2); len(got) != 2 {
		t.Fatalf("remaining subscriber expected 2 events, got %d", len(got))
	}
}

func TestCloseTask(t *testing.T) {
	b := New(8)
	sub := b.Register("t1", snapshot("t1"))
	b.CloseTask("t1")

	collect(t, sub)
	if sub.Err() != nil {
		t.Fatalf("CloseTask is a normal close, got %v", sub.Err())
	}
	if b.Subscribers("t1") != 0 {
		t.Fatal("expected no subscribers after CloseTask")
	}
}
