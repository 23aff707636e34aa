package claims

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/wasmcloud/wasmcloud-host/internal/errkind"
	"github.com/wasmcloud/wasmcloud-host/internal/log"
	"github.com/wasmcloud/wasmcloud-host/internal/types"
)

// PolicyAction names the decision a PolicyGate is asked to make.
type PolicyAction string

const (
	ActionPermitLoad    PolicyAction = "permit_load"
	ActionPermitInvoke  PolicyAction = "permit_invoke"
	ActionPermitStart   PolicyAction = "permit_start_provider"
)

// policyRequest is the wire shape sent to the external policy topic.
type policyRequest struct {
	RequestID string            `json:"request_id"`
	Action    PolicyAction      `json:"action"`
	Claims    *types.Claims     `json:"claims,omitempty"`
	HostID    string            `json:"host_id"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// policyResponse is the wire shape the policy service is expected to reply with.
type policyResponse struct {
	RequestID string `json:"request_id"`
	Permitted bool   `json:"permitted"`
	Message   string `json:"message,omitempty"`
}

// Decision is the outcome of a policy check, plus the reason to surface
// in a CtlResponse or a policy_denied event when it denies.
type Decision struct {
	Permitted bool
	Message   string
}

// PolicyGate asks an optional external policy decision service, reached
// over a configurable NATS subject, whether an action is permitted.
// When no topic is configured every action is permitted (spec.md §4.1:
// "absent configuration, every action is permitted"); when a topic is
// configured but the request times out or nothing answers, the action
// is denied: the fail-closed default the spec requires.
type PolicyGate struct {
	nc      *nats.Conn
	topic   string
	timeout time.Duration
}

// NewPolicyGate builds a gate. An empty topic disables policy checks
// entirely (always-permit).
func NewPolicyGate(nc *nats.Conn, topic string, timeout time.Duration) *PolicyGate {
	if timeout <= 0 {
		timeout = 1 * time.Second
	}
	return &PolicyGate{nc: nc, topic: topic, timeout: timeout}
}

// Enabled reports whether a policy topic is configured.
func (g *PolicyGate) Enabled() bool {
	return g.topic != ""
}

// Check sends a policy request and returns its decision. A missing
// reply or a request error both deny; only an explicit permitted=true
// reply allows the action through.
func (g *PolicyGate) Check(ctx context.Context, action PolicyAction, requestID string, claims *types.Claims, hostID string, labels map[string]string) Decision {
	if !g.Enabled() {
		return Decision{Permitted: true}
	}

	req := policyRequest{
		RequestID: requestID,
		Action:    action,
		Claims:    claims,
		HostID:    hostID,
		Labels:    labels,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		log.Errorf("marshal policy request", err)
		return Decision{Permitted: false, Message: "internal error building policy request"}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	msg, err := g.nc.RequestWithContext(ctx, g.topic, payload)
	if err != nil {
		log.Warn(fmt.Sprintf("policy decision request for action %s denied by default: %v", action, err))
		return Decision{Permitted: false, Message: fmt.Sprintf("policy service unreachable: %v", err)}
	}

	var resp policyResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return Decision{Permitted: false, Message: "policy service returned a malformed response"}
	}
	if !resp.Permitted {
		return Decision{Permitted: false, Message: resp.Message}
	}
	return Decision{Permitted: true, Message: resp.Message}
}

// ToError converts a denied Decision to a classified error for a
// CtlResponse, and is a no-op (nil) when the decision permits.
func (d Decision) ToError() error {
	if d.Permitted {
		return nil
	}
	msg := d.Message
	if msg == "" {
		msg = "denied by policy"
	}
	return errkind.New(errkind.Policy, msg)
}
