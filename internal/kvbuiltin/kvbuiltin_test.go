package kvbuiltin

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

func TestSetThenGetRoundTrips(t *testing.T) {
	b := New(nil)
	ic := &wasmrt.InvocationContext{}

	invoke(t, b, ic, "set", Request{Bucket: "default", Key: "color", Value: []byte("blue")})
	resp := invoke(t, b, ic, "get", Request{Bucket: "default", Key: "color"})

	assert.True(t, resp.Exists)
	assert.Equal(t, []byte("blue"), resp.Value)
}

func TestGetMissingKeyIsNotAnError(t *testing.T) {
	b := New(nil)
	resp := invoke(t, b, nil, "get", Request{Bucket: "default", Key: "missing"})
	assert.False(t, resp.Exists)
	assert.Empty(t, resp.Value)
}

func TestDeleteRemovesKey(t *testing.T) {
	b := New(nil)
	ic := &wasmrt.InvocationContext{}
	invoke(t, b, ic, "set", Request{Bucket: "default", Key: "k", Value: []byte("v")})
	invoke(t, b, ic, "delete", Request{Bucket: "default", Key: "k"})
	resp := invoke(t, b, ic, "exists", Request{Bucket: "default", Key: "k"})
	assert.False(t, resp.Exists)
}

func TestListKeysReturnsBareKeys(t *testing.T) {
	b := New(nil)
	ic := &wasmrt.InvocationContext{}
	invoke(t, b, ic, "set", Request{Bucket: "b1", Key: "a", Value: []byte("1")})
	invoke(t, b, ic, "set", Request{Bucket: "b1", Key: "b", Value: []byte("2")})

	resp := invoke(t, b, ic, "list-keys", Request{Bucket: "b1"})
	assert.ElementsMatch(t, []string{"a", "b"}, resp.Keys)
}

func TestNamespaceIsolatesCallers(t *testing.T) {
	b := New(nil)
	icA := &wasmrt.InvocationContext{}
	icA.Envelope.CallerID = "comp-a"
	icB := &wasmrt.InvocationContext{}
	icB.Envelope.CallerID = "comp-b"

	invoke(t, b, icA, "set", Request{Bucket: "default", Key: "shared", Value: []byte("from-a")})
	resp := invoke(t, b, icB, "get", Request{Bucket: "default", Key: "shared"})
	assert.False(t, resp.Exists)
}

func TestUnknownOperationErrors(t *testing.T) {
	b := New(nil)
	payload, _ := json.Marshal(Request{Bucket: "default", Key: "k"})
	_, err := b.Invoke(context.Background(), nil, "frobnicate", payload)
	require.Error(t, err)
}
