package wasmrt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmcloud/wasmcloud-host/internal/linkindex"
	"github.com/wasmcloud/wasmcloud-host/internal/store"
	"github.com/wasmcloud/wasmcloud-host/internal/types"
)

type fakeBuiltin struct {
	calls []string
}

func (f *fakeBuiltin) Invoke(_ context.Context, _ *InvocationContext, operation string, payload []byte) ([]byte, error) {
	f.calls = append(f.calls, operation)
	return payload, nil
}

type fakeInvoker struct {
	lastTarget, lastInstance, lastOp string
}

func (f *fakeInvoker) InvokeLinked(_ context.Context, targetID, instance, operation string, payload []byte) ([]byte, error) {
	f.lastTarget, f.lastInstance, f.lastOp = targetID, instance, operation
	return payload, nil
}

func newTestIndex(t *testing.T) *linkindex.Index {
	t.Helper()
	st := store.NewMemoryStore()
	idx := linkindex.New(st)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	started := make(chan struct{})
	go func() {
		close(started)
		_ = idx.Start(ctx)
	}()
	<-started
	time.Sleep(10 * time.Millisecond)
	return idx
}

func TestDispatchFallsBackToBuiltinWhenUnlinked(t *testing.T) {
	idx := newTestIndex(t)
	invoker := &fakeInvoker{}
	router := NewCapabilityRouter(idx, invoker)
	builtin := &fakeBuiltin{}
	router.RegisterBuiltin("wasi:keyvalue", builtin)

	out, err := router.Dispatch(context.Background(), "comp-a", "wasi", "keyvalue", "get", []byte("key"))
	require.NoError(t, err)
	assert.Equal(t, []byte("key"), out)
	assert.Equal(t, []string{"get"}, builtin.calls)
	assert.Empty(t, invoker.lastTarget)
}

func TestDispatchPrefersLinkOverBuiltin(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.Put(context.Background(), types.Link{
		LinkKey:  types.LinkKey{SourceID: "comp-a", Name: types.DefaultLinkName, WITNamespace: "wasi", WITPackage: "keyvalue"},
		TargetID: "provider-redis",
	}))
	require.Eventually(t, func() bool {
		_, ok := idx.Resolve("comp-a", types.DefaultLinkName, "wasi", "keyvalue")
		return ok
	}, time.Second, 10*time.Millisecond)

	invoker := &fakeInvoker{}
	router := NewCapabilityRouter(idx, invoker)
	router.RegisterBuiltin("wasi:keyvalue", &fakeBuiltin{})

	_, err := router.Dispatch(context.Background(), "comp-a", "wasi", "keyvalue", "get", []byte("key"))
	require.NoError(t, err)
	assert.Equal(t, "provider-redis", invoker.lastTarget)
	assert.Equal(t, "wasi:keyvalue", invoker.lastInstance)
	assert.Equal(t, "get", invoker.lastOp)
}

func TestDispatchTargetOverrideBypassesLinks(t *testing.T) {
	idx := newTestIndex(t)
	invoker := &fakeInvoker{}
	router := NewCapabilityRouter(idx, invoker)

	ic := &InvocationContext{TargetOverride: "debug-target"}
	ctx := WithInvocationContext(context.Background(), ic)

	_, err := router.Dispatch(ctx, "comp-a", "wasi", "http", "handle", nil)
	require.NoError(t, err)
	assert.Equal(t, "debug-target", invoker.lastTarget)
}

func TestDispatchErrorsWithNoLinkOrBuiltin(t *testing.T) {
	idx := newTestIndex(t)
	router := NewCapabilityRouter(idx, &fakeInvoker{})

	_, err := router.Dispatch(context.Background(), "comp-a", "wasi", "http", "handle", nil)
	require.Error(t, err)
}
