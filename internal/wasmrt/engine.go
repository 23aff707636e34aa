// Package wasmrt implements spec.md §4.5: compiling component artifacts
// once, running permit-bounded pools of instances per component, and
// dispatching each instance's capability imports to either a host
// builtin or a linked provider over wRPC.
//
// Grounded on other_examples/8e730de0_wippyai-wasm-runtime's
// runtime/doc.go API shape (Runtime.LoadComponent → Module.Instantiate
// → Instance.Call, Runtime/Module safe for concurrent use, Instance
// is not), built directly against github.com/tetratelabs/wazero since
// that is the Go Wasm Component Model runtime the example pack
// demonstrates, instead of re-deriving a wrapper API of our own.
package wasmrt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/wasmcloud/wasmcloud-host/internal/errkind"
)

// Config tunes the shared wazero runtime.
type Config struct {
	// MaxExecutionTime bounds one invocation's wall-clock time via a
	// context deadline that wazero's close-on-context-done mode enforces
	// (spec.md §4.5).
	MaxExecutionTime time.Duration
	// MaxMemoryPages caps a module's linear memory growth, 0 = wazero default.
	MaxMemoryPages uint32
}

// Engine owns the process-wide wazero runtime. Deadline enforcement
// relies on wazero's WithCloseOnContextDone: every invocation runs
// under a context built from DeadlineContext, and wazero tears down
// the calling module the instant that context is canceled rather than
// letting a runaway guest spin forever.
type Engine struct {
	cfg     Config
	runtime wazero.Runtime

	closeOnce sync.Once
}

// NewEngine constructs the shared compilation/execution runtime. One
// Engine serves every component pool in the host process.
func NewEngine(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.MaxExecutionTime <= 0 {
		cfg.MaxExecutionTime = 10 * time.Second
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cfg.MaxMemoryPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.MaxMemoryPages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		return nil, errkind.Wrap(errkind.Fatal, "instantiate WASI preview1 host module", err)
	}

	return &Engine{cfg: cfg, runtime: rt}, nil
}

// Compile parses and validates a component's bytes into a reusable
// wazero.CompiledModule, the expensive step done once per artifact
// revision and then reused by every pooled instance.
func (e *Engine) Compile(ctx context.Context, wasmBytes []byte) (wazero.CompiledModule, error) {
	mod, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errkind.Wrap(errkind.Validation, "compile Wasm module", err)
	}
	return mod, nil
}

// NewModuleConfig builds a per-instance wazero.ModuleConfig named for
// the instance it will back, so wazero's own panics/traces identify it.
func NewModuleConfig(name string) wazero.ModuleConfig {
	return wazero.NewModuleConfig().WithName(name)
}

// Runtime exposes the underlying wazero.Runtime for capability hosts
// that need to instantiate host modules against it.
func (e *Engine) Runtime() wazero.Runtime { return e.runtime }

// DeadlineContext returns a ctx that expires after
// Config.MaxExecutionTime, in addition to any caller-supplied
// cancellation; wazero closes a module called under it once it expires.
func (e *Engine) DeadlineContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, e.cfg.MaxExecutionTime)
}

// Close releases the shared runtime.
func (e *Engine) Close(ctx context.Context) error {
	var err error
	e.closeOnce.Do(func() {
		err = e.runtime.Close(ctx)
	})
	if err != nil {
		return fmt.Errorf("close wazero runtime: %w", err)
	}
	return nil
}
