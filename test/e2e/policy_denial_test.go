package e2e

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmcloud/wasmcloud-host/internal/ctlplane"
	"github.com/wasmcloud/wasmcloud-host/internal/events"
	"github.com/wasmcloud/wasmcloud-host/internal/host"
	"github.com/wasmcloud/wasmcloud-host/test/framework"
)

// TestScalePolicyDenial covers scenario S2: a policy service that
// denies permit_load fails the scale request with the
// policy's own message and emits policy_denied instead of
// component_scaled.
func TestScalePolicyDenial(t *testing.T) {
	const policyTopic = "e2e.policy.denial"

	h := framework.NewHarnessWithConfig(t, "e2e-policy-denial", host.Flags{}, func(cfg *host.Config) {
		cfg.PolicyTopic = policyTopic
	})

	sub, err := h.Conn().Subscribe(policyTopic, func(msg *nats.Msg) {
		var req struct {
			RequestID string `json:"request_id"`
		}
		_ = json.Unmarshal(msg.Data, &req)
		resp, _ := json.Marshal(map[string]interface{}{
			"request_id": req.RequestID,
			"permitted":  false,
			"message":    "not in this lattice",
		})
		_ = msg.Respond(resp)
	})
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	scaledCh, unsubscribeScaled := h.SubscribeEvents(string(events.KindComponentScaled))
	defer unsubscribeScaled()
	deniedCh, unsubscribeDenied := h.SubscribeEvents(string(events.KindPolicyDenied))
	defer unsubscribeDenied()

	artifact := framework.SignedComponentArtifact(t, "hello", "component", []string{"wasi:http/incoming-handler"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = h.Ctl.Scale(ctx, h.Identity.HostPublicKey, ctlplane.ScaleRequest{
		ComponentID:  "hello",
		Artifact:     artifact,
		MaxInstances: 1,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in this lattice")

	raw := framework.WaitForEvent(t, deniedCh, 5*time.Second)
	var envelope struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(raw, &envelope))
	assert.Equal(t, "com.wasmcloud.lattice.policy_denied", envelope.Type)

	select {
	case <-scaledCh:
		t.Fatal("component_scaled must not fire when policy denies")
	case <-time.After(200 * time.Millisecond):
	}
}
