// Package a2a defines the protocol data model for agent-to-agent task
// delegation: tasks, messages, artifacts, streaming events, push
// notification configs, and the agent card.
package a2a

import (
	"time"

	"github.com/google/uuid"
)

// TaskState represents the lifecycle state of a task.
type TaskState string

const (
	// TaskStateSubmitted is the state when the task is received but not yet processed.
	TaskStateSubmitted TaskState = "submitted"
	// TaskStateWorking is the state when the task is actively being processed.
	TaskStateWorking TaskState = "working"
	// TaskStateInputRequired is the state when the task is paused awaiting caller input.
	TaskStateInputRequired TaskState = "input-required"
	// TaskStateAuthRequired is the state when the task is paused awaiting caller authentication.
	TaskStateAuthRequired TaskState = "auth-required"
	// TaskStateCompleted is the state when the task finished successfully.
	TaskStateCompleted TaskState = "completed"
	// TaskStateFailed is the state when the task failed during processing.
	TaskStateFailed TaskState = "failed"
	// TaskStateCanceled is the state when the task was canceled before completion.
	TaskStateCanceled TaskState = "canceled"
	// TaskStateRejected is the state when the agent declined the task.
	TaskStateRejected TaskState = "rejected"
)

// Terminal reports whether no further transition is possible from s.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCanceled, TaskStateRejected:
		return true
	}
	return false
}

// Interrupted reports whether s is a non-terminal pause awaiting external input.
func (s TaskState) Interrupted() bool {
	return s == TaskStateInputRequired || s == TaskStateAuthRequired
}

// TaskStatus is the current state of a task plus an optional status message.
type TaskStatus struct {
	State TaskState `json:"state"`
	// Message carries an agent explanation of the state, such as a
	// clarifying question for input-required.
	Message   *Message  `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Task is the server-tracked stateful unit of delegated work. The server
// that created a task owns it exclusively; callers hold only references.
type Task struct {
	ID        string     `json:"id"`
	ContextID string     `json:"contextId"`
	Status    TaskStatus `json:"status"`
	// Artifacts are the ordered outputs of the task, append-only once
	// produced. Nil means not requested and drops the field; a response
	// that requested artifacts carries at least an empty list.
	Artifacts []Artifact `json:"artifacts,omitzero"`
	// History is the retained subset of exchanged messages, oldest first.
	History  []Message      `json:"history,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewTaskID returns a fresh server-generated task identifier.
func NewTaskID() string { return uuid.NewString() }

// NewContextID returns a fresh server-generated context identifier.
func NewContextID() string { return uuid.NewString() }

// NewTask creates a task in the submitted state for the given initiating
// message. The message's context ID is reused when present.
func NewTask(msg Message) *Task {
	contextID := msg.ContextID
	if contextID == "" {
		contextID = NewContextID()
	}
	t := &Task{
		ID:        NewTaskID(),
		ContextID: contextID,
		Status: TaskStatus{
			State:     TaskStateSubmitted,
			Timestamp: time.Now().UTC(),
		},
	}
	msg.TaskID = t.ID
	msg.ContextID = contextID
	t.History = []Message{msg}
	return t
}

// Clone returns a deep copy of the task so readers never share slices or
// maps with stored state.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.Status.Message != nil {
		m := t.Status.Message.Clone()
		c.Status.Message = &m
	}
	if t.Artifacts != nil {
		c.Artifacts = make([]Artifact, len(t.Artifacts))
		for i := range t.Artifacts {
			c.Artifacts[i] = t.Artifacts[i].Clone()
		}
	}
	if t.History != nil {
		c.History = make([]Message, len(t.History))
		for i := range t.History {
			c.History[i] = t.History[i].Clone()
		}
	}
	c.Metadata = cloneMap(t.Metadata)
	return &c
}

// TrimHistory applies historyLength semantics in place: nil keeps up to
// serverDefault entries, zero omits the history field entirely, and N>0
// keeps the most recent N messages.
func (t *Task) TrimHistory(historyLength *int, serverDefault int) {
	n := serverDefault
	if historyLength != nil {
		n = *historyLength
	}
	switch {
	case n <= 0:
		t.History = nil
	case len(t.History) > n:
		t.History = t.History[len(t.History)-n:]
	}
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	c := make(map[string]any, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
