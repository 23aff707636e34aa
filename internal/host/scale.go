package host

import (
	"context"
	"fmt"

	"github.com/wasmcloud/wasmcloud-host/internal/claims"
	"github.com/wasmcloud/wasmcloud-host/internal/ctlplane"
	"github.com/wasmcloud/wasmcloud-host/internal/errkind"
	"github.com/wasmcloud/wasmcloud-host/internal/events"
	"github.com/wasmcloud/wasmcloud-host/internal/types"
	"github.com/wasmcloud/wasmcloud-host/internal/wasmrt"
)

// Scale implements ctlplane.Host, driving spec.md §4.5: scale(c, N)
// compiles the artifact once on the way up from zero and rebuilds the
// permit-bounded pool to the new MaxInstances; scale to zero tears the
// component down entirely.
func (s *Supervisor) Scale(ctx context.Context, req ctlplane.ScaleRequest) error {
	artifactBytes, err := s.fetcher.Fetch(ctx, req.Artifact)
	if err != nil {
		s.emitScaleFailed(ctx, req, err)
		return err
	}

	validated, err := claims.Validate(artifactBytes)
	if err != nil {
		s.emitScaleFailed(ctx, req, err)
		return err
	}

	decision := s.policy.Check(ctx, claims.ActionPermitLoad, req.ComponentID, validated, s.identity.HostPublicKey, s.identity.Labels)
	if policyErr := decision.ToError(); policyErr != nil {
		_ = s.publisher.Publish(ctx, events.KindPolicyDenied, events.PolicyDeniedData{
			HostID: s.identity.HostPublicKey, Action: string(claims.ActionPermitLoad),
			Subject: req.ComponentID, Message: decision.Message,
		})
		return policyErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if req.MaxInstances == 0 {
		if entry, ok := s.components[req.ComponentID]; ok {
			entry.pool.Close()
			_ = entry.compiled.Close(ctx)
			delete(s.components, req.ComponentID)
		}
		_ = s.publisher.Publish(ctx, events.KindComponentScaled, events.ComponentScaledData{
			HostID: s.identity.HostPublicKey, ComponentID: req.ComponentID, MaxInstances: 0,
		})
		return nil
	}

	entry, exists := s.components[req.ComponentID]
	if !exists {
		compiled, err := s.engine.Compile(ctx, artifactBytes)
		if err != nil {
			s.emitScaleFailed(ctx, req, err)
			return err
		}
		entry = &componentEntry{
			record: types.ComponentRecord{
				ID: req.ComponentID, Artifact: req.Artifact, Claims: validated,
				Annotations: req.Annotations, State: types.ComponentPresent,
			},
			compiled: compiled,
		}
		s.components[req.ComponentID] = entry
	}

	entry.record.MaxInstances = req.MaxInstances
	entry.record.State = types.ComponentPresent
	if entry.pool != nil {
		entry.pool.Close()
	}
	entry.pool = wasmrt.NewPool(s.engine, req.ComponentID, entry.compiled, req.MaxInstances)

	_ = s.publisher.Publish(ctx, events.KindComponentScaled, events.ComponentScaledData{
		HostID: s.identity.HostPublicKey, ComponentID: req.ComponentID,
		ImageRef: req.Artifact.Value, MaxInstances: req.MaxInstances, Annotations: req.Annotations,
	})
	return nil
}

func (s *Supervisor) emitScaleFailed(ctx context.Context, req ctlplane.ScaleRequest, err error) {
	_ = s.publisher.Publish(ctx, events.KindComponentScaleFailed, events.ComponentScaleFailedData{
		HostID: s.identity.HostPublicKey, ComponentID: req.ComponentID, ImageRef: req.Artifact.Value, Error: err.Error(),
	})
}

// Update compiles the new artifact and atomically swaps it into the
// component's existing pool, per spec.md §4.5: new invocations use the
// new artifact, in-flight invocations finish on the old one, and the
// permit count is unchanged. When StrictUpdate is on and the new
// artifact's signing subject differs from the running one, it fails
// with a SubjectMismatch validation error instead of swapping.
// Repeating the same update is idempotent (spec.md §8 property 6): the
// resulting component_scaled event carries the same image ref as the
// one before it.
func (s *Supervisor) Update(ctx context.Context, req ctlplane.ScaleRequest) error {
	s.mu.RLock()
	entry, exists := s.components[req.ComponentID]
	s.mu.RUnlock()
	if !exists {
		return errkind.New(errkind.Validation, fmt.Sprintf("component %s is not present", req.ComponentID))
	}
	if req.MaxInstances == 0 {
		req.MaxInstances = entry.record.MaxInstances
	}

	artifactBytes, err := s.fetcher.Fetch(ctx, req.Artifact)
	if err != nil {
		s.emitScaleFailed(ctx, req, err)
		return err
	}

	validated, err := claims.Validate(artifactBytes)
	if err != nil {
		s.emitScaleFailed(ctx, req, err)
		return err
	}

	if s.cfg.StrictUpdate && entry.record.Claims != nil && validated.Subject != entry.record.Claims.Subject {
		err := errkind.New(errkind.Validation, fmt.Sprintf(
			"SubjectMismatch: update for component %s is signed by %s, running artifact is signed by %s",
			req.ComponentID, validated.Subject, entry.record.Claims.Subject))
		s.emitScaleFailed(ctx, req, err)
		return err
	}

	decision := s.policy.Check(ctx, claims.ActionPermitLoad, req.ComponentID, validated, s.identity.HostPublicKey, s.identity.Labels)
	if policyErr := decision.ToError(); policyErr != nil {
		_ = s.publisher.Publish(ctx, events.KindPolicyDenied, events.PolicyDeniedData{
			HostID: s.identity.HostPublicKey, Action: string(claims.ActionPermitLoad),
			Subject: req.ComponentID, Message: decision.Message,
		})
		return policyErr
	}

	compiled, err := s.engine.Compile(ctx, artifactBytes)
	if err != nil {
		s.emitScaleFailed(ctx, req, err)
		return err
	}

	s.mu.Lock()
	entry.compiled = compiled
	entry.record.Artifact = req.Artifact
	entry.record.Claims = validated
	entry.record.MaxInstances = req.MaxInstances
	entry.pool.Swap(ctx, compiled)
	s.mu.Unlock()

	_ = s.publisher.Publish(ctx, events.KindComponentScaled, events.ComponentScaledData{
		HostID: s.identity.HostPublicKey, ComponentID: req.ComponentID,
		ImageRef: req.Artifact.Value, MaxInstances: req.MaxInstances, Annotations: req.Annotations,
	})
	return nil
}

func (s *Supervisor) StartProvider(ctx context.Context, req ctlplane.StartProviderRequest) error {
	artifactBytes, err := s.fetcher.Fetch(ctx, req.Artifact)
	if err != nil {
		_ = s.publisher.Publish(ctx, events.KindProviderStartFailed, events.ProviderStartFailedData{
			HostID: s.identity.HostPublicKey, ProviderID: req.ProviderID, Error: err.Error(),
		})
		return err
	}
	validated, err := claims.Validate(artifactBytes)
	if err != nil {
		return err
	}

	decision := s.policy.Check(ctx, claims.ActionPermitStart, req.ProviderID, validated, s.identity.HostPublicKey, s.identity.Labels)
	if policyErr := decision.ToError(); policyErr != nil {
		_ = s.publisher.Publish(ctx, events.KindPolicyDenied, events.PolicyDeniedData{
			HostID: s.identity.HostPublicKey, Action: string(claims.ActionPermitStart),
			Subject: req.ProviderID, Message: decision.Message,
		})
		return policyErr
	}

	path, err := s.fetcher.CacheExecutablePath(req.Artifact, artifactBytes)
	if err != nil {
		return err
	}

	record := types.ProviderRecord{ID: req.ProviderID, Artifact: req.Artifact, Claims: validated, LinkConfig: req.Config, State: types.ProviderStarting}
	hd := makeHostData(s, record, req.LinkName, req.Config)
	if err := s.providers.Start(ctx, record, path, hd); err != nil {
		_ = s.publisher.Publish(ctx, events.KindProviderStartFailed, events.ProviderStartFailedData{
			HostID: s.identity.HostPublicKey, ProviderID: req.ProviderID, Error: err.Error(),
		})
		return err
	}

	_ = s.publisher.Publish(ctx, events.KindProviderStarted, events.ProviderStartedData{
		HostID: s.identity.HostPublicKey, ProviderID: req.ProviderID, ImageRef: req.Artifact.Value, LinkName: req.LinkName,
	})
	return nil
}

func (s *Supervisor) StopProvider(ctx context.Context, req ctlplane.StopProviderRequest) error {
	if err := s.providers.Stop(ctx, req.ProviderID); err != nil {
		return err
	}
	_ = s.publisher.Publish(ctx, events.KindProviderStopped, events.ProviderStoppedData{
		HostID: s.identity.HostPublicKey, ProviderID: req.ProviderID,
	})
	return nil
}

// StopHost triggers graceful shutdown asynchronously so the control
// reply is sent before the connection that carried it closes.
func (s *Supervisor) StopHost(ctx context.Context) error {
	go func() {
		_ = s.Stop(context.Background())
	}()
	return nil
}
