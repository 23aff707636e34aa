package wasmrt

import (
	"context"
	"fmt"

	"github.com/wasmcloud/wasmcloud-host/internal/errkind"
	"github.com/wasmcloud/wasmcloud-host/internal/linkindex"
)

// Builtin is a host-implemented capability that needs no provider
// process at all (wasi:keyvalue in-memory, wasi:filesystem local,
// wasi:random, wasi:clocks, wasi:logging, wasi:config: spec.md §4.5's
// builtin list). It is keyed by WIT namespace:package.
type Builtin interface {
	Invoke(ctx context.Context, ic *InvocationContext, operation string, payload []byte) ([]byte, error)
}

// LinkInvoker forwards a capability call to a linked provider or
// component over wRPC. Implemented by internal/host wiring
// internal/wrpc.Dispatcher.Invoke.
type LinkInvoker interface {
	InvokeLinked(ctx context.Context, targetID, instance, operation string, payload []byte) ([]byte, error)
}

// CapabilityRouter resolves a component's capability import to either
// a Builtin or a linked target, per spec.md §4.5: "dispatch each
// instance's capability imports to either a host builtin or a linked
// provider."
type CapabilityRouter struct {
	links    *linkindex.Index
	builtins map[string]Builtin // keyed by "namespace:package"
	invoker  LinkInvoker
}

// NewCapabilityRouter builds a router for one component's invocations.
func NewCapabilityRouter(links *linkindex.Index, invoker LinkInvoker) *CapabilityRouter {
	return &CapabilityRouter{links: links, builtins: make(map[string]Builtin), invoker: invoker}
}

// RegisterBuiltin wires a host builtin under "namespace:package", e.g. "wasi:keyvalue".
func (r *CapabilityRouter) RegisterBuiltin(namespacePackage string, b Builtin) {
	r.builtins[namespacePackage] = b
}

// Dispatch routes one capability call from sourceID, importing
// namespace:package, to its resolved target: a target override wins,
// then a link, then a builtin, in that order (set-target-override lets
// a test or a debug tool bypass linking entirely per SPEC_FULL.md §5).
func (r *CapabilityRouter) Dispatch(ctx context.Context, sourceID, namespace, pkg, operation string, payload []byte) ([]byte, error) {
	ic := InvocationContextFrom(ctx)
	namespacePackage := namespace + ":" + pkg

	if ic != nil && ic.TargetOverride != "" {
		return r.invokeLinked(ctx, ic.TargetOverride, namespacePackage, operation, payload)
	}

	if link, ok := r.links.Resolve(sourceID, defaultLinkName(ic), namespace, pkg); ok {
		return r.invokeLinked(ctx, link.TargetID, namespacePackage, operation, payload)
	}

	if b, ok := r.builtins[namespacePackage]; ok {
		return b.Invoke(ctx, ic, operation, payload)
	}

	return nil, errkind.New(errkind.Guest, fmt.Sprintf("%s imports %s with no link or builtin configured", sourceID, namespacePackage))
}

func (r *CapabilityRouter) invokeLinked(ctx context.Context, targetID, instance, operation string, payload []byte) ([]byte, error) {
	if r.invoker == nil {
		return nil, errkind.New(errkind.Fatal, "capability router has no link invoker configured")
	}
	return r.invoker.InvokeLinked(ctx, targetID, instance, operation, payload)
}
