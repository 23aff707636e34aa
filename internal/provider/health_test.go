package provider

import "testing"

func TestHealthCheckConfigDefaults(t *testing.T) {
	cfg := HealthCheckConfig{}.withDefaults()
	if cfg.Interval <= 0 || cfg.Timeout <= 0 || cfg.Retries <= 0 {
		t.Fatalf("expected positive defaults, got %+v", cfg)
	}
}

func TestHealthStatusStaysHealthyUntilRetriesExhausted(t *testing.T) {
	s := &healthStatus{healthy: true}

	if changed := s.update(false, 3); changed {
		t.Fatal("one failure must not flip status with retries=3")
	}
	if changed := s.update(false, 3); changed {
		t.Fatal("two failures must not flip status with retries=3")
	}
	if changed := s.update(false, 3); !changed {
		t.Fatal("third consecutive failure must flip status unhealthy")
	}
	if s.healthy {
		t.Fatal("expected unhealthy after reaching retry threshold")
	}
}

func TestHealthStatusRecoversOnFirstSuccess(t *testing.T) {
	s := &healthStatus{healthy: false, consecutiveFailures: 5}

	if changed := s.update(true, 3); !changed {
		t.Fatal("a single success after unhealthy must flip status healthy")
	}
	if !s.healthy {
		t.Fatal("expected healthy after success")
	}
	if s.consecutiveFailures != 0 {
		t.Fatalf("expected failure count reset, got %d", s.consecutiveFailures)
	}
}

func TestHealthStatusRepeatedSuccessesDoNotReflip(t *testing.T) {
	s := &healthStatus{healthy: true}
	if changed := s.update(true, 3); changed {
		t.Fatal("a success while already healthy must not report a transition")
	}
}
