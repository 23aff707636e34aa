// Package types holds the shared data model for the wasmCloud host:
// identity, artifacts, claims, components, providers, links, config and
// secrets, and the invocation envelope that carries a wRPC call.
package types

import (
	"time"
)

// HostIdentity is the process-wide identity of a running host. It is
// owned by the supervisor for the life of the process; the host public
// key is the subject of every event the host produces.
type HostIdentity struct {
	HostPublicKey    string // Ed25519 public key, nkeys "N" prefix
	ClusterPublicKey string // separate key pair used to sign outgoing invocations
	Lattice          string
	FriendlyName     string
	Labels           map[string]string
	StartedAt        time.Time
	Version          string
}

// ArtifactRefKind distinguishes the three ways an artifact may be named.
type ArtifactRefKind string

const (
	ArtifactRefOCI     ArtifactRefKind = "oci"
	ArtifactRefFile    ArtifactRefKind = "file"
	ArtifactRefBuiltin ArtifactRefKind = "builtin"
)

// ArtifactRef is an immutable reference to component or provider bytes.
type ArtifactRef struct {
	Kind  ArtifactRefKind
	Value string // OCI image reference, absolute file path, or builtin name
}

// ClaimsKind distinguishes a component artifact's claims from a provider's.
type ClaimsKind string

const (
	ClaimsKindComponent ClaimsKind = "component"
	ClaimsKindProvider  ClaimsKind = "provider"
)

// Claims is the validated content of the JWT embedded in an artifact.
type Claims struct {
	Subject      string // artifact public key
	Issuer       string
	Name         string
	Revision     int
	IssuedAt     time.Time
	Expires      *time.Time
	NotBefore    *time.Time
	Kind         ClaimsKind
	Capabilities []string // declared capability/interface names
	Tags         []string
}

// ComponentState is the lifecycle of a component record.
type ComponentState string

const (
	ComponentAbsent   ComponentState = "absent"
	ComponentScaling  ComponentState = "scaling"
	ComponentPresent  ComponentState = "present"
	ComponentDraining ComponentState = "draining"
)

// ComponentRecord is the runtime's view of one scaled component.
type ComponentRecord struct {
	ID           string
	Artifact     ArtifactRef
	Claims       *Claims
	MaxInstances uint32
	Annotations  map[string]string
	ConfigNames  []string
	SecretNames  []string
	Revision     uint64
	State        ComponentState
}

// ProviderState is the lifecycle of a provider record.
type ProviderState string

const (
	ProviderAbsent   ProviderState = "absent"
	ProviderStarting ProviderState = "starting"
	ProviderReady    ProviderState = "ready"
	ProviderStopping ProviderState = "stopping"
)

// ProviderRecord is the supervisor's view of one provider child process.
type ProviderRecord struct {
	ID         string
	Artifact   ArtifactRef
	Claims     *Claims
	LinkConfig map[string]string
	Interfaces []string
	State      ProviderState
	PID        int
}

// LinkKey uniquely identifies a link tuple.
type LinkKey struct {
	SourceID     string
	Name         string
	WITNamespace string
	WITPackage   string
}

// DefaultLinkName is used when a caller does not specify a link name.
const DefaultLinkName = "default"

// Link is the authoritative declaration that a component's import of a
// WIT interface is served by a named target.
type Link struct {
	LinkKey
	TargetID      string
	Interfaces    []string
	SourceConfig  []string
	TargetConfig  []string
}

// SecretKind distinguishes string from binary secret payloads.
type SecretKind string

const (
	SecretKindString SecretKind = "string"
	SecretKindBytes  SecretKind = "bytes"
)

// ConfigRecord is a named immutable JSON-like map.
type ConfigRecord struct {
	Name   string
	Values map[string]string
}

// SecretRecord names a secret; its value is fetched from the external
// secrets backend at the moment of use and is never persisted in
// plaintext here.
type SecretRecord struct {
	Name             string
	Kind             SecretKind
	PolicyProperties map[string]string
	Backend          string
}

// InvocationEnvelope carries one wRPC call's routing and security context.
type InvocationEnvelope struct {
	DestID        string
	Instance      string
	Operation     string
	CallerID      string
	InvocationID  string // 128-bit, hex encoded
	TraceParent   string
	TraceState    string
	SecretRefs    []string
	Signature     []byte // signed with the host's cluster key
}

// ReservedSecretPrefix marks a wasi:config key as a secret reference
// rather than a plain configuration value.
const ReservedSecretPrefix = "secret::"
