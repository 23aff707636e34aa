// Package e2e exercises spec.md §8's concrete scenarios against a real
// host.Supervisor and a real NATS connection (see test/framework),
// grounded on cuemby-warren's test/e2e suite: each test dials real
// infrastructure and skips outright when it isn't available, rather
// than mocking the dependency away.
package e2e

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmcloud/wasmcloud-host/internal/events"
	"github.com/wasmcloud/wasmcloud-host/internal/host"
	"github.com/wasmcloud/wasmcloud-host/test/framework"
)

// TestHeartbeatShape covers scenario S6: subscribing to
// host_heartbeat should yield one envelope within H+ε whose data names
// this host and its current component/provider counts.
func TestHeartbeatShape(t *testing.T) {
	h := framework.NewHarness(t, "e2e-heartbeat", host.Flags{})

	ch, unsubscribe := h.SubscribeEvents(string(events.KindHostHeartbeat))
	defer unsubscribe()

	raw := framework.WaitForEvent(t, ch, 35*time.Second)

	var envelope struct {
		Type string               `json:"type"`
		Data events.HeartbeatData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &envelope))

	assert.Equal(t, "com.wasmcloud.lattice.host_heartbeat", envelope.Type)
	assert.Equal(t, h.Identity.HostPublicKey, envelope.Data.HostID)
	assert.Empty(t, envelope.Data.Components)
}
