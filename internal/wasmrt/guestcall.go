package wasmrt

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"github.com/wasmcloud/wasmcloud-host/internal/errkind"
)

// Invoke drives one call into a pooled component instance: acquire an
// instance, hand payload to the guest's exported operation, return its
// result, release the instance. The calling convention mirrors the
// common wasm-plugin ABI also used by
// other_examples/44c22408_Polqt-golang-journey's runtime sketch: the
// guest exports an allocator (wasmcloud_alloc) the host uses to place
// payload bytes in guest memory, the operation export takes
// (ptr, len) and returns a single packed i64 of (resultPtr<<32 |
// resultLen), and the guest exports wasmcloud_free to release it.
func (p *Pool) Invoke(ctx context.Context, operation string, payload []byte) ([]byte, error) {
	mod, release, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release(ctx)

	ctx, cancel := p.engine.DeadlineContext(ctx)
	defer cancel()

	fn := mod.ExportedFunction(operation)
	if fn == nil {
		return nil, errkind.New(errkind.Guest, fmt.Sprintf("component %s exports no %q", p.componentID, operation))
	}

	mem := mod.Memory()
	if mem == nil {
		return nil, errkind.New(errkind.Guest, fmt.Sprintf("component %s has no linear memory", p.componentID))
	}

	ptr, err := p.writeGuestBytes(ctx, mod, payload)
	if err != nil {
		return nil, err
	}

	results, err := fn.Call(ctx, uint64(ptr), uint64(len(payload)))
	if err != nil {
		return nil, errkind.Wrap(errkind.Guest, fmt.Sprintf("invoke %s on component %s", operation, p.componentID), err)
	}
	if len(results) != 1 {
		return nil, errkind.New(errkind.Guest, fmt.Sprintf("%s on component %s returned %d results, want 1 packed (ptr,len)", operation, p.componentID, len(results)))
	}

	resultPtr := uint32(results[0] >> 32)
	resultLen := uint32(results[0])
	out, ok := mem.Read(resultPtr, resultLen)
	if !ok {
		return nil, errkind.New(errkind.Guest, fmt.Sprintf("%s on component %s returned an out-of-bounds result", operation, p.componentID))
	}
	result := make([]byte, len(out))
	copy(result, out)

	p.freeGuestBytes(ctx, mod, resultPtr, resultLen)
	return result, nil
}

func (p *Pool) writeGuestBytes(ctx context.Context, mod api.Module, data []byte) (uint32, error) {
	alloc := mod.ExportedFunction("wasmcloud_alloc")
	if alloc == nil {
		return 0, errkind.New(errkind.Guest, fmt.Sprintf("component %s exports no wasmcloud_alloc", p.componentID))
	}
	results, err := alloc.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, errkind.Wrap(errkind.Guest, fmt.Sprintf("allocate guest buffer on component %s", p.componentID), err)
	}
	ptr := uint32(results[0])
	if len(data) > 0 && !mod.Memory().Write(ptr, data) {
		return 0, errkind.New(errkind.Guest, fmt.Sprintf("write payload into component %s memory", p.componentID))
	}
	return ptr, nil
}

func (p *Pool) freeGuestBytes(ctx context.Context, mod api.Module, ptr, length uint32) {
	free := mod.ExportedFunction("wasmcloud_free")
	if free == nil {
		return
	}
	_, _ = free.Call(ctx, uint64(ptr), uint64(length))
}
