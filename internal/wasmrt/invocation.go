package wasmrt

import (
	"context"

	"github.com/wasmcloud/wasmcloud-host/internal/types"
)

// InvocationContext carries everything the wasmcloud:bus capability
// and the linked-capability dispatcher need for one guest call: the
// caller identity, trace propagation, and the two per-invocation
// scoping overrides wasmCloud's bus interface exposes to guests.
//
// set-link-name and set-target-override are both scoped to the single
// invocation that calls them, never to the component as a whole: the
// decision recorded for spec.md's Open Question on link-name scope
// (SPEC_FULL.md §7); a concurrent invocation on another instance must
// not observe a sibling's override.
type InvocationContext struct {
	Envelope types.InvocationEnvelope

	// LinkName is consulted by the bus builtin's default target
	// resolution; set-link-name rebinds it for the rest of this call.
	LinkName string

	// TargetOverride, when non-empty, pins this invocation to a
	// specific provider or component id, bypassing the link index
	// entirely (SPEC_FULL.md §5's set-target-override supplement).
	TargetOverride string
}

type invocationContextKey struct{}

// WithInvocationContext attaches ic to ctx for the bus builtin and
// capability dispatcher to retrieve mid-call.
func WithInvocationContext(ctx context.Context, ic *InvocationContext) context.Context {
	return context.WithValue(ctx, invocationContextKey{}, ic)
}

// InvocationContextFrom retrieves the InvocationContext attached by
// WithInvocationContext, or nil if none is present.
func InvocationContextFrom(ctx context.Context) *InvocationContext {
	ic, _ := ctx.Value(invocationContextKey{}).(*InvocationContext)
	return ic
}

// SetLinkName implements the wasmcloud:bus set-link-name guest import,
// scoped to this invocation only.
func (ic *InvocationContext) SetLinkName(name string) {
	ic.LinkName = name
}

// SetTargetOverride implements the wasmcloud:bus set-target-override
// guest import, scoped to this invocation only.
func (ic *InvocationContext) SetTargetOverride(targetID string) {
	ic.TargetOverride = targetID
}

func defaultLinkName(ic *InvocationContext) string {
	if ic == nil || ic.LinkName == "" {
		return types.DefaultLinkName
	}
	return ic.LinkName
}
