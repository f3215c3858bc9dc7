// Package telemetry traces replays. Spans go to a jaeger collector when
// one is configured and are dropped otherwise.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/codes"
)

type Code codes.Code

const (
	Unset Code = Code(codes.Unset)
	Error Code = Code(codes.Error)
	Ok    Code = Code(codes.Ok)
)

type Span interface {
	// SetAttributes attaches attributes. Values that are neither numbers
	// nor booleans are recorded in their string form.
	SetAttributes(attributes map[string]interface{})

	SetStatus(code Code, info string)

	// RecordError records err as an exception event. It does not change the
	// span status.
	RecordError(err error)

	// Fail records err and marks the span failed
	Fail(err error)

	End()

	// Context returns a context carrying this span, for child spans
	Context() context.Context
}

type Tracer interface {
	// Start starts a root span
	Start(name string) Span

	// StartWithContext starts a span under the one carried by ctx
	StartWithContext(ctx context.Context, name string) Span
}

type TracerProvider interface {
	NewTracer(namespace string) Tracer

	// Shutdown flushes pending spans
	Shutdown(context.Context) error
}
