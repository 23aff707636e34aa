package provider

import (
	"context"
	"time"

	"github.com/wasmcloud/wasmcloud-host/internal/events"
)

// HealthCheckConfig tunes periodic provider health monitoring.
// Grounded on pkg/health.Config's interval/timeout/retries shape,
// adapted from exec/http/tcp container probes to a single NATS
// health-subject request per provider.
type HealthCheckConfig struct {
	Interval time.Duration
	Timeout  time.Duration
	Retries  int
}

func (c HealthCheckConfig) withDefaults() HealthCheckConfig {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Second
	}
	if c.Retries <= 0 {
		c.Retries = 3
	}
	return c
}

// healthStatus tracks consecutive probe results for one provider,
// mirroring pkg/health.Status's pass/fail hysteresis: a provider stays
// healthy until Retries consecutive probes fail, and recovers on the
// next single success.
type healthStatus struct {
	consecutiveFailures int
	healthy             bool
}

// update folds in one probe result and reports whether the healthy
// state flipped.
func (s *healthStatus) update(ok bool, retries int) bool {
	if ok {
		wasUnhealthy := !s.healthy
		s.consecutiveFailures = 0
		s.healthy = true
		return wasUnhealthy
	}
	s.consecutiveFailures++
	if s.healthy && s.consecutiveFailures >= retries {
		s.healthy = false
		return true
	}
	return false
}

// monitorHealth polls providerID's health subject on Options.HealthCheck.Interval
// until done closes, publishing health_check_passed/health_check_failed
// on every healthy/unhealthy transition.
func (s *Supervisor) monitorHealth(providerID string, done <-chan struct{}) {
	cfg := s.opts.HealthCheck
	status := &healthStatus{healthy: true}
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	subject := HealthSubject(providerID)

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
			_, err := s.nc.RequestWithContext(ctx, subject, nil)
			cancel()

			if !status.update(err == nil, cfg.Retries) {
				continue
			}
			kind := events.KindHealthCheckPassed
			message := ""
			if !status.healthy {
				kind = events.KindHealthCheckFailed
				if err != nil {
					message = err.Error()
				}
			}
			_ = s.events.Publish(context.Background(), kind, events.HealthCheckData{
				HostID: s.hostID, EntityID: providerID, Message: message,
			})
		}
	}
}
