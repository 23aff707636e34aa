package wasmrt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvokeErrorsWhenOperationNotExported(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	compiled, err := engine.Compile(ctx, minimalWasmModule)
	require.NoError(t, err)

	pool := NewPool(engine, "comp-a", compiled, 1)
	_, err = pool.Invoke(ctx, "handle", []byte("payload"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exports no")
}
