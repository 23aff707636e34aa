package wrpc

import (
	"context"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestInjectExtractTraceHeadersRoundTrip(t *testing.T) {
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	header := nats.Header{}
	InjectTraceHeaders(ctx, header)
	assert.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", header.Get(HeaderTraceParent))

	extracted, ok := ExtractTraceContext(header)
	require.True(t, ok)
	assert.Equal(t, traceID, extracted.TraceID())
	assert.Equal(t, spanID, extracted.SpanID())
	assert.True(t, extracted.IsSampled())
}

func TestExtractTraceContextMissingHeader(t *testing.T) {
	_, ok := ExtractTraceContext(nats.Header{})
	assert.False(t, ok)
}

func TestInjectTraceHeadersNoopWithoutSpan(t *testing.T) {
	header := nats.Header{}
	InjectTraceHeaders(context.Background(), header)
	assert.Empty(t, header.Get(HeaderTraceParent))
}

func TestNewInvocationIDUnique(t *testing.T) {
	a := NewInvocationID()
	b := NewInvocationID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestSubjectFormat(t *testing.T) {
	assert.Equal(t, "wasmbus.rpc.default.comp-a.default.wasi:http/incoming-handler.handle",
		Subject("default", "comp-a", "default.wasi:http/incoming-handler", "handle"))
}
