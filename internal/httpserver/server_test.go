package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInvoker struct {
	lastComponent string
	lastOperation string
	lastPayload   []byte
	response      ResponseEnvelope
	err           error
}

func (f *fakeInvoker) InvokeComponent(_ context.Context, componentID, operation string, payload []byte) ([]byte, error) {
	f.lastComponent = componentID
	f.lastOperation = operation
	f.lastPayload = payload
	if f.err != nil {
		return nil, f.err
	}
	return json.Marshal(f.response)
}

func TestHandleRoutesToComponentAndReturnsResponse(t *testing.T) {
	router := NewRouter([]Route{{Host: "api.example.com", ComponentID: "comp-1"}})
	invoker := &fakeInvoker{response: ResponseEnvelope{Status: http.StatusCreated, Body: []byte("ok")}}
	s := NewServer(":0", router, invoker)

	req := httptest.NewRequest(http.MethodPost, "http://api.example.com/widgets", nil)
	rec := httptest.NewRecorder()
	s.handle(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.Equal(t, "comp-1", invoker.lastComponent)
	assert.Equal(t, incomingHandlerOperation, invoker.lastOperation)

	var decoded RequestEnvelope
	require.NoError(t, json.Unmarshal(invoker.lastPayload, &decoded))
	assert.Equal(t, http.MethodPost, decoded.Method)
	assert.Equal(t, "/widgets", decoded.Path)
}

func TestHandleNoRouteReturns404(t *testing.T) {
	router := NewRouter(nil)
	s := NewServer(":0", router, &fakeInvoker{})

	req := httptest.NewRequest(http.MethodGet, "http://unknown.example.com/", nil)
	rec := httptest.NewRecorder()
	s.handle(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleInvocationErrorReturns502(t *testing.T) {
	router := NewRouter([]Route{{Host: "api.example.com", ComponentID: "comp-1"}})
	invoker := &fakeInvoker{err: assertError{"boom"}}
	s := NewServer(":0", router, invoker)

	req := httptest.NewRequest(http.MethodGet, "http://api.example.com/", nil)
	rec := httptest.NewRecorder()
	s.handle(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
