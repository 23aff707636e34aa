// Package metrics exposes the host's Prometheus instrumentation: gauges
// and counters for components, providers, links and control-plane
// traffic, plus a histogram helper mirroring the teacher's Timer
// pattern for latency observations.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ComponentsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wasmcloud_components_total",
			Help: "Number of component records by state",
		},
		[]string{"state"},
	)

	ComponentInstancesInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wasmcloud_component_instances_in_flight",
			Help: "Current in-flight invocations per component",
		},
		[]string{"component_id"},
	)

	ProvidersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wasmcloud_providers_total",
			Help: "Number of provider records by state",
		},
		[]string{"state"},
	)

	LinksTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "wasmcloud_links_total",
			Help: "Total number of links in the link index",
		},
	)

	InvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wasmcloud_invocations_total",
			Help: "Total wRPC invocations by destination kind and outcome",
		},
		[]string{"dest_kind", "outcome"},
	)

	InvocationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wasmcloud_invocation_duration_seconds",
			Help:    "Invocation duration from accept to reply",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"dest_kind"},
	)

	CtlRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wasmcloud_ctl_requests_total",
			Help: "Control-plane requests by verb and outcome",
		},
		[]string{"verb", "outcome"},
	)

	PolicyDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wasmcloud_policy_denied_total",
			Help: "Total number of policy denials",
		},
	)

	ArtifactFetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wasmcloud_artifact_fetch_duration_seconds",
			Help:    "Artifact fetch duration",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		ComponentsTotal,
		ComponentInstancesInFlight,
		ProvidersTotal,
		LinksTotal,
		InvocationsTotal,
		InvocationDuration,
		CtlRequestsTotal,
		PolicyDeniedTotal,
		ArtifactFetchDuration,
	)
}

// Handler returns the Prometheus scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures an elapsed duration for a histogram observation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time on the given observer.
func (t *Timer) ObserveDuration(o prometheus.Observer) time.Duration {
	d := time.Since(t.start)
	o.Observe(d.Seconds())
	return d
}
