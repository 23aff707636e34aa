package wrpc

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/trace"

	"github.com/wasmcloud/wasmcloud-host/internal/errkind"
	"github.com/wasmcloud/wasmcloud-host/internal/types"
)

func withRemoteSpanContext(ctx context.Context, sc trace.SpanContext) context.Context {
	return trace.ContextWithRemoteSpanContext(ctx, sc)
}

// Subject returns the NATS subject an invocation targeting destID's
// instance and operation is dispatched on, per spec.md §4.7:
// "wasmbus.rpc.<lattice>.<dest>.<instance>.<name>".
func Subject(lattice, destID, instance, operation string) string {
	return fmt.Sprintf("wasmbus.rpc.%s.%s.%s.%s", lattice, destID, instance, operation)
}

// Handler processes one invocation's payload and returns a response
// payload or an error. Errors are classified via errkind before being
// surfaced to the caller.
type Handler func(ctx context.Context, env types.InvocationEnvelope, payload []byte) ([]byte, error)

// Dispatcher serves and issues wRPC invocations over NATS core
// request/reply subjects, scoped to one lattice.
type Dispatcher struct {
	nc      *nats.Conn
	lattice string
}

// New builds a Dispatcher bound to nc for the given lattice name.
func New(nc *nats.Conn, lattice string) *Dispatcher {
	return &Dispatcher{nc: nc, lattice: lattice}
}

// Serve subscribes destID's instance.operation subject and invokes fn
// for each request, replying with fn's result or a classified error.
// The returned subscription must be Drain()ed by the caller on
// component/provider stop.
func (d *Dispatcher) Serve(destID, instance, operation string, fn Handler) (*nats.Subscription, error) {
	subject := Subject(d.lattice, destID, instance, operation)
	sub, err := d.nc.QueueSubscribe(subject, destID, func(msg *nats.Msg) {
		d.handle(msg, destID, instance, operation, fn)
	})
	if err != nil {
		return nil, errkind.Wrap(errkind.Transient, fmt.Sprintf("subscribe %s", subject), err)
	}
	return sub, nil
}

func (d *Dispatcher) handle(msg *nats.Msg, destID, instance, operation string, fn Handler) {
	ctx := context.Background()
	if sc, ok := ExtractTraceContext(msg.Header); ok {
		ctx = withRemoteSpanContext(ctx, sc)
	}

	env := types.InvocationEnvelope{
		DestID:       destID,
		Instance:     instance,
		Operation:    operation,
		InvocationID: msg.Header.Get(HeaderInvocationID),
		TraceParent:  msg.Header.Get(HeaderTraceParent),
		TraceState:   msg.Header.Get(HeaderTraceState),
	}
	if refs := msg.Header.Get(HeaderSecretRefs); refs != "" {
		env.SecretRefs = append(env.SecretRefs, refs)
	}

	resp, err := fn(ctx, env, msg.Data)
	if err != nil {
		replyHeader := nats.Header{}
		replyHeader.Set("wasmcloud-error-kind", string(errkind.KindOf(err)))
		_ = msg.RespondMsg(&nats.Msg{Subject: msg.Reply, Header: replyHeader, Data: []byte(err.Error())})
		return
	}
	_ = msg.Respond(resp)
}

// Invoke sends a wRPC request to destID's instance.operation subject
// and waits up to timeout for a reply.
// DefaultRPCTimeout is used when Invoke is called with timeout <= 0,
// matching spec.md §5's rpc_timeout.
const DefaultRPCTimeout = 2 * time.Second

func (d *Dispatcher) Invoke(ctx context.Context, destID, instance, operation string, payload []byte, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = DefaultRPCTimeout
	}
	subject := Subject(d.lattice, destID, instance, operation)

	header := nats.Header{}
	InjectTraceHeaders(ctx, header)
	header.Set(HeaderInvocationID, NewInvocationID())

	req := &nats.Msg{Subject: subject, Header: header, Data: payload}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := d.nc.RequestMsgWithContext(ctx, req)
	if err != nil {
		return nil, errkind.Wrap(errkind.Transient, fmt.Sprintf("invoke %s", subject), err)
	}
	if kind := resp.Header.Get("wasmcloud-error-kind"); kind != "" {
		return nil, errkind.Wrap(errkind.Kind(kind), "remote invocation failed", fmt.Errorf("%s", string(resp.Data)))
	}
	return resp.Data, nil
}
