package ctlplane

import (
	"context"

	"github.com/wasmcloud/wasmcloud-host/internal/types"
)

// ScaleRequest drives a component toward MaxInstances, per spec.md §4.5.
type ScaleRequest struct {
	ComponentID  string            `json:"component_id"`
	Artifact     types.ArtifactRef `json:"artifact"`
	MaxInstances uint32            `json:"max_instances"`
	Config       map[string]string `json:"config,omitempty"`
	Annotations  map[string]string `json:"annotations,omitempty"`
}

// StartProviderRequest drives internal/provider.Supervisor.Start.
type StartProviderRequest struct {
	ProviderID string            `json:"provider_id"`
	Artifact   types.ArtifactRef `json:"artifact"`
	LinkName   string            `json:"link_name"`
	Config     map[string]string `json:"config,omitempty"`
}

// StopProviderRequest drives internal/provider.Supervisor.Stop.
type StopProviderRequest struct {
	ProviderID string `json:"provider_id"`
}

// Inventory is the reply shape for get.inventory, per spec.md §4.8.
type Inventory struct {
	HostID     string                   `json:"host_id"`
	Labels     map[string]string        `json:"labels"`
	Components []types.ComponentRecord  `json:"components"`
	Providers  []types.ProviderRecord   `json:"providers"`
}

// HostSummary is the reply shape for get.hosts / auction replies.
type HostSummary struct {
	HostID  string            `json:"host_id"`
	Lattice string            `json:"lattice"`
	Labels  map[string]string `json:"labels"`
	Version string            `json:"version"`
}

// Host is the set of host operations the control-plane server drives.
// internal/host.Supervisor implements this; the interface lives here,
// not there, so this package never imports internal/host (it is
// imported BY it).
type Host interface {
	Scale(ctx context.Context, req ScaleRequest) error
	Update(ctx context.Context, req ScaleRequest) error
	StartProvider(ctx context.Context, req StartProviderRequest) error
	StopProvider(ctx context.Context, req StopProviderRequest) error
	StopHost(ctx context.Context) error

	PutLink(ctx context.Context, link types.Link) error
	DeleteLink(ctx context.Context, key types.LinkKey) error
	GetConfig(ctx context.Context, name string) (types.ConfigRecord, bool, error)
	PutConfig(ctx context.Context, cfg types.ConfigRecord) error
	DeleteConfig(ctx context.Context, name string) error
	PutLabel(ctx context.Context, key, value string) error
	DeleteLabel(ctx context.Context, key string) error

	Inventory() Inventory
	Summary() HostSummary
	Links() ([]types.Link, error)
	Claims() ([]types.Claims, error)

	// SatisfiesConstraints reports whether this host's labels satisfy
	// every constraint in labels, for auction.component/auction.provider.
	SatisfiesConstraints(constraints map[string]string) bool
	// ProviderRunning reports whether providerID already has a live
	// process on this host, for auction.provider's extra check.
	ProviderRunning(providerID string) bool
}
