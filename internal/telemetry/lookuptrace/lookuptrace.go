// Package lookuptrace marks the subset of spans belonging to one
// find_successor lookup started on this node, so its hops read as a
// single logical operation instead of unrelated spans. The flag is a
// context value local to the process: it is not carried in
// FIND_SUCCESSOR_REQ, so hops that other nodes run on the lookup's
// behalf are not marked.
package lookuptrace

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

type lookupKey struct{}

const tracerName = "chordring/lookuptrace"

var tracer = otel.Tracer(tracerName)

// WithLookup marks ctx as belonging to a find_successor lookup.
func WithLookup(ctx context.Context) context.Context {
	return context.WithValue(ctx, lookupKey{}, true)
}

// IsLookup reports whether ctx was marked by WithLookup.
func IsLookup(ctx context.Context) bool {
	v, _ := ctx.Value(lookupKey{}).(bool)
	return v
}

// StartHop opens a span for one local step of a lookup (a
// find_predecessor call, or a remote FIND_SUCCESSOR_REQ round trip),
// only when ctx is part of a tracked lookup; otherwise it is a no-op
// span so callers never need to branch on tracing being enabled.
func StartHop(ctx context.Context, name string) (context.Context, trace.Span) {
	if !IsLookup(ctx) {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal))
}
