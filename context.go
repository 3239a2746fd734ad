package formrelay

import (
	"context"
	"time"
)

type contextKey string

const (
	// TraceIDKey is the context key for the trace ID (string) of the submission being handled
	TraceIDKey contextKey = "TraceID"
	// ReceivedAtKey is the context key for the time (time.Time) the ingress request arrived
	ReceivedAtKey contextKey = "ReceivedAt"
)

// ContextWithTraceID returns a new context carrying the trace ID
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// TraceIDFromContext returns the trace ID from the context if it exists
func TraceIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(TraceIDKey).(string)
	return id, ok && id != ""
}

// ContextWithReceivedAt returns a new context carrying the arrival time of the request
func ContextWithReceivedAt(ctx context.Context, receivedAt time.Time) context.Context {
	return context.WithValue(ctx, ReceivedAtKey, receivedAt)
}

// ReceivedAtFromContext returns the arrival time from the context if it exists
func ReceivedAtFromContext(ctx context.Context) (time.Time, bool) {
	receivedAt, ok := ctx.Value(ReceivedAtKey).(time.Time)
	return receivedAt, ok
}
