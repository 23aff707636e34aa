package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjectFormat(t *testing.T) {
	pub := NewPublisher(nil, "default", "Nhost")
	assert.Equal(t, "wasmbus.evt.default.component_scaled", pub.Subject(KindComponentScaled))
}

func TestHeartbeatStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := make(chan struct{}, 10)

	pub := NewPublisher(nil, "default", "Nhost")
	go Heartbeat(ctx, pub, 5*time.Millisecond, func() HeartbeatData {
		select {
		case calls <- struct{}{}:
		default:
		}
		return HeartbeatData{HostID: "host-1"}
	})

	select {
	case <-calls:
	case <-time.After(time.Second):
		t.Fatal("heartbeat never ticked")
	}
	cancel()
}

func TestCloudEventTypeFormat(t *testing.T) {
	assert.Equal(t, "com.wasmcloud.lattice.host_started", cloudEventTypePrefix+string(KindHostStarted))
}

func TestComponentScaledDataRoundTrip(t *testing.T) {
	data := ComponentScaledData{HostID: "host-1", ComponentID: "comp-1", ImageRef: "file:///a.wasm", MaxInstances: 3}
	raw, err := json.Marshal(data)
	require.NoError(t, err)

	var decoded ComponentScaledData
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, data, decoded)
}
