package host

import (
	"context"
	"fmt"

	"github.com/wasmcloud/wasmcloud-host/internal/ctlplane"
	"github.com/wasmcloud/wasmcloud-host/internal/errkind"
	"github.com/wasmcloud/wasmcloud-host/internal/events"
	"github.com/wasmcloud/wasmcloud-host/internal/provider"
	"github.com/wasmcloud/wasmcloud-host/internal/types"
)

func makeHostData(s *Supervisor, record types.ProviderRecord, linkName string, config map[string]string) provider.HostData {
	return provider.BuildHostData(s.identity.HostPublicKey, s.cfg.RPCURL(), s.cfg.RPCTLS, record, linkName, config, "")
}

const linkStorePrefix = "links/"
const configStorePrefix = "config/"

func linkKey(k types.LinkKey) string {
	return fmt.Sprintf("%s%s/%s/%s/%s", linkStorePrefix, k.SourceID, k.Name, k.WITNamespace, k.WITPackage)
}

func configKey(name string) string {
	return configStorePrefix + name
}

// PutLink writes link into the links bucket; internal/linkindex's
// watch loop updates the in-memory index once the write commits
// (spec.md §3/§4.4).
func (s *Supervisor) PutLink(ctx context.Context, link types.Link) error {
	data, err := marshalJSON(link)
	if err != nil {
		return err
	}
	if err := s.writeThrough(ctx, s.linkStore, linkKey(link.LinkKey), data); err != nil {
		return err
	}
	_ = s.publisher.Publish(ctx, events.KindLinkdefSet, events.LinkdefSetData{
		SourceID: link.SourceID, Target: link.TargetID, Name: link.Name,
		WITNamespace: link.WITNamespace, WITPackage: link.WITPackage,
	})
	return nil
}

func (s *Supervisor) DeleteLink(ctx context.Context, key types.LinkKey) error {
	if err := s.linkStore.Delete(ctx, linkKey(key)); err != nil {
		return errkind.Wrap(errkind.Transient, "delete link", err)
	}
	_ = s.publisher.Publish(ctx, events.KindLinkdefDeleted, events.LinkdefDeletedData{
		SourceID: key.SourceID, Name: key.Name, WITNamespace: key.WITNamespace, WITPackage: key.WITPackage,
	})
	return nil
}

func (s *Supervisor) GetConfig(ctx context.Context, name string) (types.ConfigRecord, bool, error) {
	entry, err := s.configStore.Get(ctx, configKey(name))
	if err != nil {
		return types.ConfigRecord{}, false, nil
	}
	var cfg types.ConfigRecord
	if err := unmarshalJSON(entry.Value, &cfg); err != nil {
		return types.ConfigRecord{}, false, err
	}
	return cfg, true, nil
}

func (s *Supervisor) PutConfig(ctx context.Context, cfg types.ConfigRecord) error {
	data, err := marshalJSON(cfg)
	if err != nil {
		return err
	}
	if err := s.writeThrough(ctx, s.configStore, configKey(cfg.Name), data); err != nil {
		return err
	}
	_ = s.publisher.Publish(ctx, events.KindConfigSet, events.ConfigSetData{ConfigName: cfg.Name})
	return nil
}

func (s *Supervisor) DeleteConfig(ctx context.Context, name string) error {
	if err := s.configStore.Delete(ctx, configKey(name)); err != nil {
		return errkind.Wrap(errkind.Transient, "delete config", err)
	}
	_ = s.publisher.Publish(ctx, events.KindConfigDeleted, events.ConfigDeletedData{ConfigName: name})
	return nil
}

func (s *Supervisor) PutLabel(ctx context.Context, key, value string) error {
	s.mu.Lock()
	if s.identity.Labels == nil {
		s.identity.Labels = map[string]string{}
	}
	s.identity.Labels[key] = value
	labels := cloneLabels(s.identity.Labels)
	s.mu.Unlock()
	_ = s.publisher.Publish(ctx, events.KindLabelsChanged, events.LabelsChangedData{HostID: s.identity.HostPublicKey, Labels: labels})
	return nil
}

func (s *Supervisor) DeleteLabel(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.identity.Labels, key)
	labels := cloneLabels(s.identity.Labels)
	s.mu.Unlock()
	_ = s.publisher.Publish(ctx, events.KindLabelsChanged, events.LabelsChangedData{HostID: s.identity.HostPublicKey, Labels: labels})
	return nil
}

func (s *Supervisor) Inventory() ctlplane.Inventory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv := ctlplane.Inventory{HostID: s.identity.HostPublicKey, Labels: cloneLabels(s.identity.Labels)}
	for _, entry := range s.components {
		inv.Components = append(inv.Components, entry.record)
	}
	if s.providers != nil {
		for _, id := range s.providers.Running() {
			inv.Providers = append(inv.Providers, types.ProviderRecord{ID: id, State: types.ProviderReady})
		}
	}
	return inv
}

func (s *Supervisor) Summary() ctlplane.HostSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ctlplane.HostSummary{HostID: s.identity.HostPublicKey, Lattice: s.cfg.Lattice, Labels: cloneLabels(s.identity.Labels), Version: s.identity.Version}
}

func (s *Supervisor) Links() ([]types.Link, error) {
	entries, err := s.linkStore.List(context.Background(), linkStorePrefix)
	if err != nil {
		return nil, errkind.Wrap(errkind.Transient, "list links", err)
	}
	links := make([]types.Link, 0, len(entries))
	for _, e := range entries {
		var link types.Link
		if err := unmarshalJSON(e.Value, &link); err != nil {
			continue
		}
		links = append(links, link)
	}
	return links, nil
}

func (s *Supervisor) Claims() ([]types.Claims, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	claimsList := make([]types.Claims, 0, len(s.components))
	for _, entry := range s.components {
		if entry.record.Claims != nil {
			claimsList = append(claimsList, *entry.record.Claims)
		}
	}
	return claimsList, nil
}

// SatisfiesConstraints reports whether every key=value pair in
// constraints matches this host's labels, grounded on
// pkg/scheduler.scheduler.go's node-filtering predicate generalized
// from node labels to host labels.
func (s *Supervisor) SatisfiesConstraints(constraints map[string]string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, v := range constraints {
		if s.identity.Labels[k] != v {
			return false
		}
	}
	return true
}

func (s *Supervisor) ProviderRunning(providerID string) bool {
	if s.providers == nil {
		return false
	}
	return s.providers.IsRunning(providerID)
}

func cloneLabels(labels map[string]string) map[string]string {
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}
