package wasmrt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimalWasmModule is the smallest valid module: just the magic bytes
// and version, no sections, no exports. Enough to exercise pool
// instantiate/release bookkeeping without a real component.
var minimalWasmModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	ctx := context.Background()
	e, err := NewEngine(ctx, Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close(context.Background()) })
	return e
}

func TestPoolAcquireReleaseRespectsMaxInstances(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	compiled, err := engine.Compile(ctx, minimalWasmModule)
	require.NoError(t, err)

	pool := NewPool(engine, "comp-a", compiled, 2)

	_, release1, err := pool.Acquire(ctx)
	require.NoError(t, err)
	_, release2, err := pool.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pool.InFlight())

	acquired := make(chan struct{})
	go func() {
		_, release3, err := pool.Acquire(ctx)
		require.NoError(t, err)
		close(acquired)
		release3(ctx)
	}()

	select {
	case <-acquired:
		t.Fatal("third acquire should block until a permit frees up")
	default:
	}

	release1(ctx)
	<-acquired
	release2(ctx)
	assert.Equal(t, 0, pool.InFlight())
}

func TestPoolAcquireFailsAfterClose(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	compiled, err := engine.Compile(ctx, minimalWasmModule)
	require.NoError(t, err)

	pool := NewPool(engine, "comp-a", compiled, 1)
	pool.Close()

	_, _, err = pool.Acquire(ctx)
	require.Error(t, err)
}

func TestPoolSwapKeepsInFlightInstanceOnOutgoingRevision(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	compiledV1, err := engine.Compile(ctx, minimalWasmModule)
	require.NoError(t, err)
	compiledV2, err := engine.Compile(ctx, minimalWasmModule)
	require.NoError(t, err)

	pool := NewPool(engine, "comp-a", compiledV1, 2)

	_, releaseOld, err := pool.Acquire(ctx)
	require.NoError(t, err)

	pool.Swap(ctx, compiledV2)

	_, releaseNew, err := pool.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pool.InFlight())

	releaseOld(ctx)
	releaseNew(ctx)
	assert.Equal(t, 0, pool.InFlight())
}

func TestPoolAcquireCanceledContext(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	compiled, err := engine.Compile(ctx, minimalWasmModule)
	require.NoError(t, err)

	pool := NewPool(engine, "comp-a", compiled, 1)
	_, release, err := pool.Acquire(ctx)
	require.NoError(t, err)
	defer release(ctx)

	canceledCtx, cancel := context.WithCancel(ctx)
	cancel()
	_, _, err = pool.Acquire(canceledCtx)
	require.Error(t, err)
}
