package ctlplane

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmcloud/wasmcloud-host/internal/types"
)

type fakeHost struct {
	scaleErr       error
	constraintsOK  bool
	providerBusy   bool
	configRecord   types.ConfigRecord
	configFound    bool
	links          []types.Link
	claims         []types.Claims
	lastScale      ScaleRequest
}

func (f *fakeHost) Scale(ctx context.Context, req ScaleRequest) error {
	f.lastScale = req
	return f.scaleErr
}
func (f *fakeHost) Update(ctx context.Context, req ScaleRequest) error { return f.scaleErr }
func (f *fakeHost) StartProvider(ctx context.Context, req StartProviderRequest) error { return nil }
func (f *fakeHost) StopProvider(ctx context.Context, req StopProviderRequest) error   { return nil }
func (f *fakeHost) StopHost(ctx context.Context) error                               { return nil }
func (f *fakeHost) PutLink(ctx context.Context, link types.Link) error                { return nil }
func (f *fakeHost) DeleteLink(ctx context.Context, key types.LinkKey) error           { return nil }
func (f *fakeHost) GetConfig(ctx context.Context, name string) (types.ConfigRecord, bool, error) {
	return f.configRecord, f.configFound, nil
}
func (f *fakeHost) PutConfig(ctx context.Context, cfg types.ConfigRecord) error { return nil }
func (f *fakeHost) DeleteConfig(ctx context.Context, name string) error        { return nil }
func (f *fakeHost) PutLabel(ctx context.Context, key, value string) error      { return nil }
func (f *fakeHost) DeleteLabel(ctx context.Context, key string) error          { return nil }
func (f *fakeHost) Inventory() Inventory                                       { return Inventory{HostID: "host-1"} }
func (f *fakeHost) Summary() HostSummary                                       { return HostSummary{HostID: "host-1"} }
func (f *fakeHost) Links() ([]types.Link, error)                               { return f.links, nil }
func (f *fakeHost) Claims() ([]types.Claims, error)                            { return f.claims, nil }
func (f *fakeHost) SatisfiesConstraints(constraints map[string]string) bool    { return f.constraintsOK }
func (f *fakeHost) ProviderRunning(providerID string) bool                     { return f.providerBusy }

func newTestServer(h Host) *Server {
	return NewServer(nil, h, "default", "host-1", "", 0)
}

func msgWith(t *testing.T, v interface{}) *nats.Msg {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return &nats.Msg{Data: data}
}

func TestHandleScaleSuccess(t *testing.T) {
	h := &fakeHost{}
	s := newTestServer(h)
	req := ScaleRequest{ComponentID: "comp-1", MaxInstances: 3}

	resp := s.handleScale(context.Background(), msgWith(t, req))
	assert.True(t, resp.Success)
	assert.Equal(t, "comp-1", h.lastScale.ComponentID)
}

func TestHandleScaleFailurePropagatesMessage(t *testing.T) {
	h := &fakeHost{scaleErr: errors.New("no capacity")}
	s := newTestServer(h)

	resp := s.handleScale(context.Background(), msgWith(t, ScaleRequest{ComponentID: "comp-1"}))
	assert.False(t, resp.Success)
	assert.Equal(t, "no capacity", resp.Message)
}

func TestHandleScaleMalformedPayload(t *testing.T) {
	s := newTestServer(&fakeHost{})
	resp := s.handleScale(context.Background(), &nats.Msg{Data: []byte("not json")})
	assert.False(t, resp.Success)
}

func TestHandleConfigGetNotFound(t *testing.T) {
	s := newTestServer(&fakeHost{configFound: false})
	resp := s.handleConfigGet(context.Background(), msgWith(t, "missing-config"))
	assert.False(t, resp.Success)
}

func TestHandleConfigGetFound(t *testing.T) {
	s := newTestServer(&fakeHost{configFound: true, configRecord: types.ConfigRecord{Name: "cfg-1", Values: map[string]string{"k": "v"}}})
	resp := s.handleConfigGet(context.Background(), msgWith(t, "cfg-1"))
	require.True(t, resp.Success)

	var cfg types.ConfigRecord
	require.NoError(t, json.Unmarshal(resp.Data, &cfg))
	assert.Equal(t, "v", cfg.Values["k"])
}

func TestHandleAuctionComponentAck(t *testing.T) {
	s := newTestServer(&fakeHost{constraintsOK: true})
	resp := s.handleAuctionComponent(context.Background(), msgWith(t, AuctionRequest{Constraints: map[string]string{"os": "linux"}}))
	assert.True(t, resp.Success)
}

func TestHandleAuctionComponentNoAckWhenUnsatisfied(t *testing.T) {
	s := newTestServer(&fakeHost{constraintsOK: false})
	resp := s.handleAuctionComponent(context.Background(), msgWith(t, AuctionRequest{}))
	assert.False(t, resp.Success)
}

func TestHandleAuctionProviderRejectsAlreadyRunning(t *testing.T) {
	s := newTestServer(&fakeHost{constraintsOK: true, providerBusy: true})
	resp := s.handleAuctionProvider(context.Background(), msgWith(t, AuctionRequest{ProviderID: "provider-1"}))
	assert.False(t, resp.Success)
}

func TestHostSubjectFormat(t *testing.T) {
	s := newTestServer(&fakeHost{})
	assert.Equal(t, "wasmbus.ctl.v1.default.host.host-1.scale", s.hostSubject("scale"))
}
