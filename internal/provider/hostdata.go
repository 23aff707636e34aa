// Package provider implements spec.md §4.6: spawning a capability
// provider as a child process, handing it its HostData blob on stdin,
// waiting for it to report ready on a health subject, forwarding link
// updates, and escalating shutdown from a delay through SIGTERM to
// SIGKILL. Config and secret updates are not forwarded to a running
// provider.
package provider

import (
	"encoding/json"

	"github.com/wasmcloud/wasmcloud-host/internal/errkind"
	"github.com/wasmcloud/wasmcloud-host/internal/types"
)

// HostData is the JSON blob delivered to a provider process on stdin
// at startup, matching spec.md §6's bootstrap contract.
type HostData struct {
	HostID         string            `json:"host_id"`
	LatticeRPCURL  string            `json:"lattice_rpc_url"`
	LatticeRPCTLS  bool              `json:"lattice_rpc_tls"`
	ProviderID     string            `json:"provider_key"`
	LinkName       string            `json:"link_name"`
	Config         map[string]string `json:"config,omitempty"`
	SecretsXKey    string            `json:"secrets_xkey,omitempty"` // this provider's public xkey
	EncryptedSecrets []byte          `json:"encrypted_secrets,omitempty"`
	HostXKey       string            `json:"host_xkey"` // host's public xkey, for the provider to reply-seal if needed
	InstanceID     string            `json:"instance_id"`
	StructuredLogging bool           `json:"structured_logging"`
	LogLevel       string            `json:"log_level"`
}

// Marshal serializes HostData for delivery on the provider's stdin.
func (h HostData) Marshal() ([]byte, error) {
	data, err := json.Marshal(h)
	if err != nil {
		return nil, errkind.Wrap(errkind.Fatal, "marshal HostData", err)
	}
	return data, nil
}

// BuildHostData assembles the HostData blob for one provider start. It
// seals no secrets: SecretsXKey and EncryptedSecrets are left empty,
// and HostXKey is whatever hostXKeyPublic the caller passes.
func BuildHostData(hostID, rpcURL string, tlsEnabled bool, record types.ProviderRecord, linkName string, config map[string]string, hostXKeyPublic string) HostData {
	return HostData{
		HostID:            hostID,
		LatticeRPCURL:     rpcURL,
		LatticeRPCTLS:     tlsEnabled,
		ProviderID:        record.ID,
		LinkName:          linkName,
		Config:            config,
		HostXKey:          hostXKeyPublic,
		InstanceID:        record.ID,
	}
}
