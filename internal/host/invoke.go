package host

import (
	"context"
	"fmt"

	"github.com/wasmcloud/wasmcloud-host/internal/errkind"
	"github.com/wasmcloud/wasmcloud-host/internal/events"
	"github.com/wasmcloud/wasmcloud-host/internal/wasmrt"
)

// InvokeComponent drives one call into a scaled component's pool,
// publishing component_invoked regardless of outcome so lattice
// observers see every attempt (spec.md §4.9). Builtins that front an
// external entrypoint (internal/httpserver's incoming-handler bridge
// is the first one) call this instead of reaching into the pool
// bookkeeping directly, since that bookkeeping is private to Supervisor.
func (s *Supervisor) InvokeComponent(ctx context.Context, componentID, operation string, payload []byte) ([]byte, error) {
	s.mu.RLock()
	entry, ok := s.components[componentID]
	s.mu.RUnlock()
	if !ok {
		return nil, errkind.New(errkind.Validation, fmt.Sprintf("component %s is not present", componentID))
	}

	ic := &wasmrt.InvocationContext{}
	out, err := entry.pool.Invoke(wasmrt.WithInvocationContext(ctx, ic), operation, payload)

	_ = s.publisher.Publish(ctx, events.KindComponentInvoked, events.ComponentInvokedData{
		HostID: s.identity.HostPublicKey, ComponentID: componentID, Operation: operation, Success: err == nil,
	})
	return out, err
}
