package a2a

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind discriminates the streaming event union. On the wire the kind
// is carried as a "kind" field inside the event object itself.
type EventKind string

const (
	KindMessage        EventKind = "message"
	KindTask           EventKind = "task"
	KindStatusUpdate   EventKind = "status-update"
	KindArtifactUpdate EventKind = "artifact-update"
)

// TaskStatusUpdateEvent signals a change in a task's lifecycle state.
type TaskStatusUpdateEvent struct {
	TaskID    string     `json:"taskId"`
	ContextID string     `json:"contextId"`
	Status    TaskStatus `json:"status"`
	// Final marks the last event of the stream; set when the task reached
	// a terminal state.
	Final    bool           `json:"final"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TaskArtifactUpdateEvent signals a new or extended artifact on a task.
type TaskArtifactUpdateEvent struct {
	TaskID    string         `json:"taskId"`
	ContextID string         `json:"contextId"`
	Artifact  Artifact       `json:"artifact"`
	Append    bool           `json:"append,omitempty"`
	LastChunk bool           `json:"lastChunk,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Event is the tagged variant carried by streams and push notifications.
// Exactly one arm is populated.
type Event struct {
	Message        *Message
	Task           *Task
	StatusUpdate   *TaskStatusUpdateEvent
	ArtifactUpdate *TaskArtifactUpdateEvent
}

// Kind returns the discriminator of the populated arm.
func (e Event) Kind() EventKind {
	switch {
	case e.Message != nil:
		return KindMessage
	case e.Task != nil:
		return KindTask
	case e.StatusUpdate != nil:
		return KindStatusUpdate
	case e.ArtifactUpdate != nil:
		return KindArtifactUpdate
	}
	return ""
}

// TaskID returns the task the event belongs to, or "" for a bare message.
func (e Event) TaskID() string {
	switch {
	case e.Task != nil:
		return e.Task.ID
	case e.StatusUpdate != nil:
		return e.StatusUpdate.TaskID
	case e.ArtifactUpdate != nil:
		return e.ArtifactUpdate.TaskID
	case e.Message != nil:
		return e.Message.TaskID
	}
	return ""
}

// Final reports whether this event terminates its stream.
func (e Event) Final() bool {
	return e.StatusUpdate != nil && e.StatusUpdate.Final
}

// MarshalJSON flattens the populated arm and injects the kind field, per
// the wire requirement that the discriminator is a field of the event
// object, not a separate envelope.
func (e Event) MarshalJSON() ([]byte, error) {
	var arm any
	switch kind := e.Kind(); kind {
	case KindMessage:
		arm = e.Message
	case KindTask:
		arm = e.Task
	case KindStatusUpdate:
		arm = e.StatusUpdate
	case KindArtifactUpdate:
		arm = e.ArtifactUpdate
	default:
		return nil, fmt.Errorf("event has no populated arm")
	}

	raw, err := json.Marshal(arm)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	kindRaw, err := json.Marshal(e.Kind())
	if err != nil {
		return nil, err
	}
	fields["kind"] = kindRaw
	return json.Marshal(fields)
}

// UnmarshalJSON routes on the kind field to the matching arm.
func (e *Event) UnmarshalJSON(data []byte) error {
	var probe struct {
		Kind EventKind `json:"kind"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("event kind: %w", err)
	}

	*e = Event{}
	switch probe.Kind {
	case KindMessage:
		e.Message = &Message{}
		return json.Unmarshal(data, e.Message)
	case KindTask:
		e.Task = &Task{}
		return json.Unmarshal(data, e.Task)
	case KindStatusUpdate:
		e.StatusUpdate = &TaskStatusUpdateEvent{}
		return json.Unmarshal(data, e.StatusUpdate)
	case KindArtifactUpdate:
		e.ArtifactUpdate = &TaskArtifactUpdateEvent{}
		return json.Unmarshal(data, e.ArtifactUpdate)
	default:
		return fmt.Errorf("unknown event kind %q", probe.Kind)
	}
}

// StatusEvent builds a status-update event for the task's current status.
func StatusEvent(t *Task, final bool) Event {
	return Event{StatusUpdate: &TaskStatusUpdateEvent{
		TaskID:    t.ID,
		ContextID: t.ContextID,
		Status:    t.Status,
		Final:     final,
	}}
}

// ArtifactEvent builds an artifact-update event.
func ArtifactEvent(t *Task, artifact Artifact, lastChunk bool) Event {
	return Event{ArtifactUpdate: &TaskArtifactUpdateEvent{
		TaskID:    t.ID,
		ContextID: t.ContextID,
		Artifact:  artifact,
		LastChunk: lastChunk,
	}}
}

// SnapshotEvent builds a task-snapshot event, the first emission of every
// subscription.
func SnapshotEvent(t *Task) Event {
	return Event{Task: t}
}

// Touch updates the task's status timestamp; used when a mutation other
// than a state change (such as history append) must reorder listings.
func (t *Task) Touch() {
	t.Status.Timestamp = time.Now().UTC()
}
