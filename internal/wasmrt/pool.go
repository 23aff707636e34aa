package wasmrt

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wasmcloud/wasmcloud-host/internal/errkind"
)

// generation pins one compiled revision and counts the instances still
// running against it, so Swap can tell whether it is safe to release
// the outgoing revision immediately or must wait for its last caller.
type generation struct {
	compiled wazero.CompiledModule
	refs     int
}

// Pool runs up to MaxInstances concurrent invocations of one compiled
// component, instantiating a fresh module per call (wazero modules are
// not safe for concurrent reuse without coordination: see
// other_examples/wippyai-wasm-runtime's "Instance is NOT thread-safe"
// note) and bounding concurrency with a permit semaphore.
type Pool struct {
	engine *Engine

	componentID  string
	maxInstances uint32

	permits chan struct{}

	mu     sync.Mutex
	gen    *generation
	live   int
	closed bool
}

// NewPool builds a pool for one component revision. Instances are
// instantiated from compiled against the engine's shared runtime; a
// maxInstances of 0 is treated as 1.
func NewPool(engine *Engine, componentID string, compiled wazero.CompiledModule, maxInstances uint32) *Pool {
	if maxInstances == 0 {
		maxInstances = 1
	}
	return &Pool{
		engine:       engine,
		gen:          &generation{compiled: compiled},
		componentID:  componentID,
		maxInstances: maxInstances,
		permits:      make(chan struct{}, maxInstances),
	}
}

// Swap atomically points future Acquire calls at a new compiled
// revision (spec.md §4.5 "update... atomically swaps the compiled
// object"). Instances already acquired against the outgoing revision
// keep running; the outgoing CompiledModule is closed here if nothing
// still holds it, or by the last release of that revision otherwise.
func (p *Pool) Swap(closeCtx context.Context, compiled wazero.CompiledModule) {
	p.mu.Lock()
	outgoing := p.gen
	p.gen = &generation{compiled: compiled}
	refs := outgoing.refs
	p.mu.Unlock()

	if refs == 0 {
		_ = outgoing.compiled.Close(closeCtx)
	}
}

// Acquire blocks until a permit is free (or ctx is canceled),
// instantiates a fresh module against the current revision, and
// returns it with a release func the caller must call exactly once
// when done.
func (p *Pool) Acquire(ctx context.Context) (api.Module, func(context.Context), error) {
	select {
	case p.permits <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, errkind.Wrap(errkind.Transient, "acquire instance permit", ctx.Err())
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.permits
		return nil, nil, errkind.New(errkind.Fatal, fmt.Sprintf("component %s pool is closed", p.componentID))
	}
	p.live++
	g := p.gen
	g.refs++
	p.mu.Unlock()

	cfg := NewModuleConfig(fmt.Sprintf("%s-%d", p.componentID, p.live))
	mod, err := p.engine.runtime.InstantiateModule(ctx, g.compiled, cfg)
	if err != nil {
		p.release(g)
		return nil, nil, errkind.Wrap(errkind.Guest, fmt.Sprintf("instantiate component %s", p.componentID), err)
	}

	release := func(closeCtx context.Context) {
		_ = mod.Close(closeCtx)
		p.release(g)
	}
	return mod, release, nil
}

// release drops one reference against g, closing its compiled module
// if g has since been superseded by Swap and this was its last caller.
func (p *Pool) release(g *generation) {
	p.mu.Lock()
	p.live--
	g.refs--
	stale := g != p.gen
	refs := g.refs
	p.mu.Unlock()
	<-p.permits

	if stale && refs == 0 {
		_ = g.compiled.Close(context.Background())
	}
}

// InFlight returns the number of instances currently acquired.
func (p *Pool) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}

// Close marks the pool closed; in-flight instances finish but no new
// Acquire succeeds afterward. The compiled module itself is released
// by the caller once every pool sharing it has drained, since a
// revision's CompiledModule may back more than one pool generation
// during a rolling scale.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}
