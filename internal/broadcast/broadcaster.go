// Package broadcast fans task events out to any number of concurrent
// stream subscribers, preserving one total order per task.
package broadcast

import (
	"errors"
	"sync"

	"github.com/agentrelay/agentrelay/internal/domain/a2a"
)

// ErrSlowSubscriber is reported by a subscriber that was dropped because
// its queue filled up. The consumer should resubscribe; the fresh snapshot
// resynchronizes it.
var ErrSlowSubscriber = errors.New("subscriber dropped: queue full")

// Broadcaster maintains a set of subscriber queues per task. Publishing is
// non-blocking: a subscriber that cannot keep up is dropped so it can never
// stall the task's own progress or its sibling subscribers.
//
// Ordering: callers serialize Publish per task (the service holds the
// per-task lock across transition, store write, and publish), so all
// subscribers observe the same total order.
type Broadcaster struct {
	mu     sync.Mutex
	hubs   map[string]*hub
	buffer int
}

type hub struct {
	subs map[*Subscriber]struct{}
}

// Subscriber is one consumer's view of a task's event stream.
type Subscriber struct {
	taskID string
	ch     chan a2a.Event

	mu     sync.Mutex
	closed bool
	err    error
}

// New creates a Broadcaster with the given per-subscriber queue depth.
func New(buffer int) *Broadcaster {
	if buffer < 1 {
		buffer = 1
	}
	return &Broadcaster{
		hubs:   make(map[string]*hub),
		buffer: buffer,
	}
}

// Register attaches a new subscriber to the task and primes its queue with
// the given snapshot event. The caller must hold the task's lock so no
// event can slip between snapshot and registration.
func (b *Broadcaster) Register(taskID string, snapshot a2a.Event) *Subscriber {
	sub := &Subscriber{
		taskID: taskID,
		ch:     make(chan a2a.Event, b.buffer),
	}
	sub.ch <- snapshot

	b.mu.Lock()
	h, ok := b.hubs[taskID]
	if !ok {
		h = &hub{subs: make(map[*Subscriber]struct{})}
		b.hubs[taskID] = h
	}
	h.subs[sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

// Publish delivers ev to every subscriber of the task. A subscriber whose
// queue is full is dropped with ErrSlowSubscriber. When ev is final, the
// task's stream is closed after delivery.
func (b *Broadcaster) Publish(taskID string, ev a2a.Event) {
	b.mu.Lock()
	h, ok := b.hubs[taskID]
	if !ok {
		b.mu.Unlock()
		return
	}
	var slow []*Subscriber
	for sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			slow = append(slow, sub)
		}
	}
	for _, sub := range slow {
		delete(h.subs, sub)
	}
	if ev.Final() {
		for sub := range h.subs {
			sub.finish(nil)
		}
		delete(b.hubs, taskID)
	}
	b.mu.Unlock()

	for _, sub := range slow {
		sub.finish(ErrSlowSubscriber)
	}
}

// CloseTask closes every subscriber of the task without an error. Used
// when the task is purged.
func (b *Broadcaster) CloseTask(taskID string) {
	b.mu.Lock()
	h, ok := b.hubs[taskID]
	if ok {
		delete(b.hubs, taskID)
	}
	b.mu.Unlock()
	if !ok {
		return
	}
	for sub := range h.subs {
		sub.finish(nil)
	}
}

// Unsubscribe detaches one subscriber. Other subscribers of the same task
// are unaffected.
func (b *Broadcaster) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	if h, ok := b.hubs[sub.taskID]; ok {
		delete(h.subs, sub)
		if len(h.subs) == 0 {
			delete(b.hubs, sub.taskID)
		}
	}
	b.mu.Unlock()
	sub.finish(nil)
}

// Subscribers reports the number of active subscribers for the task.
func (b *Broadcaster) Subscribers(taskID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.hubs[taskID]
	if !ok {
		return 0
	}
	return len(h.subs)
}

// Events returns the subscriber's ordered event queue. The channel is
// closed when the task reaches a terminal state, the subscriber is dropped
// for falling behind, or Unsubscribe is called; consult Err afterwards.
func (s *Subscriber) Events() <-chan a2a.Event {
	return s.ch
}

// Err reports why the event channel closed: nil for a normal close,
// ErrSlowSubscriber if the subscriber was dropped.
func (s *Subscriber) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// TaskID returns the task this subscriber is attached to.
func (s *Subscriber) TaskID() string {
	return s.taskID
}

func (s *Subscriber) finish(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.err = err
	s.mu.Unlock()
	close(s.ch)
}
