package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "agentrelay"

// StartExecutionSpan starts a span for one agent execution turn.
func StartExecutionSpan(ctx context.Context, taskID, contextID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "execution",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("context.id", contextID),
		),
	)
}

// StartDeliverySpan starts a span for one webhook delivery.
func StartDeliverySpan(ctx context.Context, taskID, configID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "push_delivery",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("push_config.id", configID),
		),
	)
}
