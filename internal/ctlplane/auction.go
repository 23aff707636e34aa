package ctlplane

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
)

// AuctionRequest asks whether this host can accept a placement, per
// spec.md §4.8. A host that cannot serves no reply at all, so the
// caller's reply collection (every reply within a window) only sees
// hosts that can.
type AuctionRequest struct {
	Constraints map[string]string `json:"constraints"`
	ProviderID  string            `json:"provider_id,omitempty"`
}

// AuctionResponse acks a host's willingness to host the workload.
type AuctionResponse struct {
	HostID string `json:"host_id"`
}

// handleAuctionComponent grounds on pkg/scheduler.Scheduler's node
// filtering (selectNodeForService: filter schedulable nodes, then
// match volume affinity), generalized here from node/volume matching
// to host-label constraint matching since wasmCloud auctions ask "can
// you host this," not "pick the best node."
func (s *Server) handleAuctionComponent(_ context.Context, msg *nats.Msg) Response {
	var req AuctionRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		return Fail("malformed auction request: " + err.Error())
	}
	if !s.host.SatisfiesConstraints(req.Constraints) {
		return Fail("constraints not satisfied")
	}
	return Ok(AuctionResponse{HostID: s.hostID})
}

func (s *Server) handleAuctionProvider(_ context.Context, msg *nats.Msg) Response {
	var req AuctionRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		return Fail("malformed auction request: " + err.Error())
	}
	if !s.host.SatisfiesConstraints(req.Constraints) {
		return Fail("constraints not satisfied")
	}
	if s.host.ProviderRunning(req.ProviderID) {
		return Fail("provider already running on this host")
	}
	return Ok(AuctionResponse{HostID: s.hostID})
}
