package fsbuiltin

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmcloud/wasmcloud-host/internal/wasmrt"
)

func invoke(t *testing.T, b *Builtin, ic *wasmrt.InvocationContext, operation string, req Request) Response {
	t.Helper()
	payload, err := json.Marshal(req)
	require.NoError(t, err)
	out, err := b.Invoke(context.Background(), ic, operation, payload)
	require.NoError(t, err)
	var resp Response
	require.NoError(t, json.Unmarshal(out, &resp))
	return resp
}

func newTestBuiltin(t *testing.T) *Builtin {
	t.Helper()
	b, err := New(t.TempDir())
	require.NoError(t, err)
	return b
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	b := newTestBuiltin(t)
	ic := &wasmrt.InvocationContext{}

	invoke(t, b, ic, "write", Request{Path: "notes/a.txt", Data: []byte("hello")})
	resp := invoke(t, b, ic, "read", Request{Path: "notes/a.txt"})

	assert.True(t, resp.Exists)
	assert.Equal(t, []byte("hello"), resp.Data)
}

func TestReadMissingFileIsNotAnError(t *testing.T) {
	b := newTestBuiltin(t)
	resp := invoke(t, b, nil, "read", Request{Path: "missing.txt"})
	assert.False(t, resp.Exists)
}

func TestDeleteRemovesFile(t *testing.T) {
	b := newTestBuiltin(t)
	ic := &wasmrt.InvocationContext{}
	invoke(t, b, ic, "write", Request{Path: "f.txt", Data: []byte("x")})
	invoke(t, b, ic, "delete", Request{Path: "f.txt"})
	resp := invoke(t, b, ic, "exists", Request{Path: "f.txt"})
	assert.False(t, resp.Exists)
}

func TestListReturnsEntryNames(t *testing.T) {
	b := newTestBuiltin(t)
	ic := &wasmrt.InvocationContext{}
	invoke(t, b, ic, "write", Request{Path: "dir/a.txt", Data: []byte("1")})
	invoke(t, b, ic, "write", Request{Path: "dir/b.txt", Data: []byte("2")})

	resp := invoke(t, b, ic, "list", Request{Path: "dir"})
	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, resp.Entries)
}

func TestPathTraversalIsContainedWithinComponentRoot(t *testing.T) {
	b := newTestBuiltin(t)
	ic := &wasmrt.InvocationContext{}
	ic.Envelope.CallerID = "comp-a"

	invoke(t, b, ic, "write", Request{Path: "../../../etc/passwd", Data: []byte("not really")})
	resp := invoke(t, b, ic, "read", Request{Path: "../../../etc/passwd"})

	assert.True(t, resp.Exists)
	assert.Equal(t, []byte("not really"), resp.Data)
}

func TestNamespaceIsolatesCallers(t *testing.T) {
	b := newTestBuiltin(t)
	icA := &wasmrt.InvocationContext{}
	icA.Envelope.CallerID = "comp-a"
	icB := &wasmrt.InvocationContext{}
	icB.Envelope.CallerID = "comp-b"

	invoke(t, b, icA, "write", Request{Path: "secret.txt", Data: []byte("a-data")})
	resp := invoke(t, b, icB, "read", Request{Path: "secret.txt"})
	assert.False(t, resp.Exists)
}
