package events

import (
	"context"
	"time"

	"github.com/wasmcloud/wasmcloud-host/internal/types"
)

// HeartbeatData is the payload carried on each KindHostHeartbeat event,
// summarizing the host's current inventory per spec.md §4.9: lattice,
// uptime, labels, a component summary (id, max_instances, artifact
// ref, revision) per non-absent component, a provider summary, and
// version.
type HeartbeatData struct {
	HostID     string                  `json:"host_id"`
	Lattice    string                  `json:"lattice"`
	Labels     map[string]string       `json:"labels"`
	Components []types.ComponentRecord `json:"components"`
	Providers  []types.ProviderRecord  `json:"providers"`
	Version    string                  `json:"version"`
	UptimeSecs int64                   `json:"uptime_seconds"`
}

// InventorySnapshot is called on each heartbeat tick to produce the
// current HeartbeatData; the host package supplies the closure.
type InventorySnapshot func() HeartbeatData

// Heartbeat periodically publishes KindHostHeartbeat events until ctx
// is canceled, defaulting to a 30s interval per spec.md §4.9.
//
// Grounded on the teacher's pkg/events.Broker.run loop (a select over a
// ticker and a stop channel), generalized here from distributing
// already-built Events to instead building each Event from a fresh
// inventory snapshot on every tick.
func Heartbeat(ctx context.Context, pub *Publisher, interval time.Duration, snapshot InventorySnapshot) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			data := snapshot()
			_ = pub.Publish(ctx, KindHostHeartbeat, data)
		}
	}
}
