package events

// Payload types for the CloudEvents data attribute of each Kind,
// matching the fields spec.md §4.9 requires observers to be able to
// act on (scheduling decisions, dashboards, audit logs).

type ComponentScaledData struct {
	HostID       string            `json:"host_id"`
	ComponentID  string            `json:"component_id"`
	ImageRef     string            `json:"image_ref"`
	MaxInstances uint32            `json:"max_instances"`
	Annotations  map[string]string `json:"annotations,omitempty"`
}

type ComponentScaleFailedData struct {
	HostID      string `json:"host_id"`
	ComponentID string `json:"component_id"`
	ImageRef    string `json:"image_ref"`
	Error       string `json:"error"`
}

type ComponentInvokedData struct {
	HostID      string `json:"host_id"`
	ComponentID string `json:"component_id"`
	Operation   string `json:"operation"`
	Success     bool   `json:"success"`
}

type HealthCheckData struct {
	HostID   string `json:"host_id"`
	EntityID string `json:"entity_id"`
	Message  string `json:"message,omitempty"`
}

type ProviderStartedData struct {
	HostID     string `json:"host_id"`
	ProviderID string `json:"provider_id"`
	ImageRef   string `json:"image_ref"`
	LinkName   string `json:"link_name"`
}

type ProviderStartFailedData struct {
	HostID     string `json:"host_id"`
	ProviderID string `json:"provider_id"`
	Error      string `json:"error"`
}

type ProviderStoppedData struct {
	HostID     string `json:"host_id"`
	ProviderID string `json:"provider_id"`
	Reason     string `json:"reason,omitempty"`
}

type LinkdefSetData struct {
	SourceID     string `json:"source_id"`
	Target       string `json:"target"`
	Name         string `json:"name"`
	WITNamespace string `json:"wit_namespace"`
	WITPackage   string `json:"wit_package"`
}

type LinkdefDeletedData struct {
	SourceID     string `json:"source_id"`
	Name         string `json:"name"`
	WITNamespace string `json:"wit_namespace"`
	WITPackage   string `json:"wit_package"`
}

type ConfigSetData struct {
	ConfigName string `json:"config_name"`
}

type ConfigDeletedData struct {
	ConfigName string `json:"config_name"`
}

type LabelsChangedData struct {
	HostID string            `json:"host_id"`
	Labels map[string]string `json:"labels"`
}

type PolicyDeniedData struct {
	HostID  string `json:"host_id"`
	Action  string `json:"action"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

type HostStartedData struct {
	HostID  string            `json:"host_id"`
	Lattice string            `json:"lattice"`
	Labels  map[string]string `json:"labels"`
	Version string            `json:"version"`
}

type HostStoppedData struct {
	HostID string `json:"host_id"`
	Reason string `json:"reason,omitempty"`
}
