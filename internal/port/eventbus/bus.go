// Package eventbus defines the event bus port (interface) that decouples
// push notification delivery from the request path.
package eventbus

import "context"

// Handler processes a message received from the bus. Returning an error
// triggers redelivery.
type Handler func(ctx context.Context, subject string, data []byte) error

// Bus is the port interface for publishing and consuming task events.
type Bus interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a durable handler for messages on the given
	// subject pattern. The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains subscriptions before closing.
	Drain() error

	// Close shuts down the bus connection immediately.
	Close() error

	// IsConnected reports whether the bus is currently connected.
	IsConnected() bool
}

// SubjectTaskEvents is the subject prefix for the task event stream.
// Individual tasks publish to tasks.events.{taskID}.
const SubjectTaskEvents = "tasks.events"

// SubjectTaskEventsAll matches the event subjects of all tasks.
const SubjectTaskEventsAll = SubjectTaskEvents + ".>"

// EventSubject returns the bus subject for one task's events.
func EventSubject(taskID string) string {
	return SubjectTaskEvents + "." + taskID
}

// TaskIDFromSubject extracts the task ID from an event subject, or "".
func TaskIDFromSubject(subject string) string {
	const prefix = SubjectTaskEvents + "."
	if len(subject) <= len(prefix) || subject[:len(prefix)] != prefix {
		return ""
	}
	return subject[len(prefix):]
}
