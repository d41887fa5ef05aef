package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "agentrelay"

// Metrics holds all AgentRelay metric instruments.
type Metrics struct {
	TasksCreated      metric.Int64Counter
	TasksCompleted    metric.Int64Counter
	TasksFailed       metric.Int64Counter
	TasksCanceled     metric.Int64Counter
	EventsPublished   metric.Int64Counter
	SubscribersLost   metric.Int64Counter
	PushDeliveries    metric.Int64Counter
	PushFailures      metric.Int64Counter
	PushDuration      metric.Float64Histogram
	TaskDuration      metric.Float64Histogram
}

// NewMetrics creates all metric instruments. With no meter provider
// installed the instruments are no-ops, so this is always safe to call.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.TasksCreated, err = meter.Int64Counter("agentrelay.tasks.created",
		metric.WithDescription("Number of tasks created"))
	if err != nil {
		return nil, err
	}

	m.TasksCompleted, err = meter.Int64Counter("agentrelay.tasks.completed",
		metric.WithDescription("Number of tasks that reached completed"))
	if err != nil {
		return nil, err
	}

	m.TasksFailed, err = meter.Int64Counter("agentrelay.tasks.failed",
		metric.WithDescription("Number of tasks that reached failed or rejected"))
	if err != nil {
		return nil, err
	}

	m.TasksCanceled, err = meter.Int64Counter("agentrelay.tasks.canceled",
		metric.WithDescription("Number of tasks canceled"))
	if err != nil {
		return nil, err
	}

	m.EventsPublished, err = meter.Int64Counter("agentrelay.events.published",
		metric.WithDescription("Number of task events broadcast to subscribers"))
	if err != nil {
		return nil, err
	}

	m.SubscribersLost, err = meter.Int64Counter("agentrelay.subscribers.dropped",
		metric.WithDescription("Number of stream subscribers dropped for falling behind"))
	if err != nil {
		return nil, err
	}

	m.PushDeliveries, err = meter.Int64Counter("agentrelay.push.deliveries",
		metric.WithDescription("Number of webhook deliveries attempted"))
	if err != nil {
		return nil, err
	}

	m.PushFailures, err = meter.Int64Counter("agentrelay.push.failures",
		metric.WithDescription("Number of webhook deliveries that exhausted retries"))
	if err != nil {
		return nil, err
	}

	m.PushDuration, err = meter.Float64Histogram("agentrelay.push.duration_seconds",
		metric.WithDescription("Webhook delivery duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.TaskDuration, err = meter.Float64Histogram("agentrelay.task.duration_seconds",
		metric.WithDescription("Time from task creation to terminal state in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
