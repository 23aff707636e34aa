// Package wrpc implements spec.md §4.7: the NATS-subject request/reply
// transport carrying a wRPC invocation, trace context, invocation id,
// and secret references between components, providers and the host.
package wrpc

import (
	"context"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/trace"
)

// Header names carried on every invocation, matching the
// traceparent/tracestate convention so a lattice-wide trace survives
// the hop through NATS (grounded on SPEC_FULL.md §5's wRPC tracing
// helper, supplementing crates/control-interface/src/otel.rs).
const (
	HeaderTraceParent  = "traceparent"
	HeaderTraceState   = "tracestate"
	HeaderInvocationID = "wasmcloud-invocation-id"
	HeaderSecretRefs   = "wasmcloud-secret-refs"
)

// NewInvocationID generates a 128-bit invocation id, hex-encoded, per
// spec.md §3's InvocationEnvelope.InvocationID.
func NewInvocationID() string {
	return uuid.NewString()
}

// InjectTraceHeaders writes the current span context from ctx into a
// NATS message header in W3C traceparent/tracestate form.
func InjectTraceHeaders(ctx context.Context, header nats.Header) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return
	}
	header.Set(HeaderTraceParent, formatTraceParent(sc))
	if ts := sc.TraceState().String(); ts != "" {
		header.Set(HeaderTraceState, ts)
	}
}

// ExtractTraceContext parses traceparent/tracestate headers (if
// present) into a trace.SpanContext a caller can attach to a new ctx
// via trace.ContextWithSpanContext.
func ExtractTraceContext(header nats.Header) (trace.SpanContext, bool) {
	tp := header.Get(HeaderTraceParent)
	if tp == "" {
		return trace.SpanContext{}, false
	}
	sc, ok := parseTraceParent(tp, header.Get(HeaderTraceState))
	return sc, ok
}

func formatTraceParent(sc trace.SpanContext) string {
	flags := "00"
	if sc.IsSampled() {
		flags = "01"
	}
	return "00-" + sc.TraceID().String() + "-" + sc.SpanID().String() + "-" + flags
}

func parseTraceParent(tp, ts string) (trace.SpanContext, bool) {
	if len(tp) != 55 {
		return trace.SpanContext{}, false
	}
	traceIDHex := tp[3:35]
	spanIDHex := tp[36:52]
	flagsHex := tp[53:55]

	traceID, err := trace.TraceIDFromHex(traceIDHex)
	if err != nil {
		return trace.SpanContext{}, false
	}
	spanID, err := trace.SpanIDFromHex(spanIDHex)
	if err != nil {
		return trace.SpanContext{}, false
	}
	flags := trace.TraceFlags(0)
	if flagsHex == "01" {
		flags = trace.FlagsSampled
	}

	state, _ := trace.ParseTraceState(ts)
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: flags,
		TraceState: state,
		Remote:     true,
	}), true
}
