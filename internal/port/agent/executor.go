// Package agent defines the executor port: the pluggable agent the message
// router drives.
package agent

import (
	"context"

	"github.com/agentrelay/agentrelay/internal/domain/a2a"
)

// RequestContext carries one validated inbound turn to the executor.
type RequestContext struct {
	TaskID    string
	ContextID string
	// Message is the user turn that triggered this execution.
	Message a2a.Message
	// Task is a snapshot of the task at routing time.
	Task *a2a.Task
}

// Updater is the executor's handle for reporting progress. Every call is a
// state machine transition recorded atomically with its event emission;
// illegal transitions return an error.
type Updater interface {
	// Working moves the task to the working state.
	Working(ctx context.Context, msg *a2a.Message) error

	// InputRequired pauses the task awaiting caller input. msg should
	// carry the clarifying question.
	InputRequired(ctx context.Context, msg *a2a.Message) error

	// AuthRequired pauses the task awaiting caller authentication.
	AuthRequired(ctx context.Context, msg *a2a.Message) error

	// AddArtifact appends an output artifact to the task.
	AddArtifact(ctx context.Context, artifact a2a.Artifact, lastChunk bool) error

	// Complete, Fail, and Reject finish the task. msg optionally explains
	// the outcome and becomes the final status message.
	Complete(ctx context.Context, msg *a2a.Message) error
	Fail(ctx context.Context, msg *a2a.Message) error
	Reject(ctx context.Context, msg *a2a.Message) error
}

// Executor processes task turns. Execute runs on a background goroutine;
// ctx is canceled when the task is canceled. Cancellation of the recorded
// task state is immediate either way; stopping compute is best effort.
type Executor interface {
	Execute(ctx context.Context, rc RequestContext, u Updater) error
}

// Responder is an optional interface. An executor that also implements
// Responder may short-circuit a turn with a direct message, in which case
// no task is created. This is agent policy, never caller-controlled.
type Responder interface {
	Respond(ctx context.Context, msg a2a.Message) (*a2a.Message, bool, error)
}
