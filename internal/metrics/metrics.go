// Package metrics exposes the Prometheus collectors the orchestrator
// updates on the discovery hot path, grounded on the teacher's
// prometheus/client_golang usage in internal/pkg/voip/monitoring.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors bundles the orchestrator's metrics. It is safe for
// concurrent use across worker threads: prometheus collectors are
// internally synchronized. InvalidClientHits is registered and exposed,
// but nothing in the orchestrator increments it.
type Collectors struct {
	Verdicts          *prometheus.CounterVec
	CandidateDepth    prometheus.Histogram
	LiveHostEntries   prometheus.Gauge
	InvalidClientHits *prometheus.CounterVec
}

// New registers a fresh set of collectors against registry. Passing a
// dedicated registry (rather than prometheus.DefaultRegisterer) lets a test
// or a second Subsystem instance avoid duplicate-registration panics.
func New(registry prometheus.Registerer) *Collectors {
	f := promauto.With(registry)
	return &Collectors{
		Verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "svcid",
			Name:      "verdicts_total",
			Help:      "Detector verdicts returned by discover(), by protocol and verdict.",
		}, []string{"protocol", "verdict"}),
		CandidateDepth: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "svcid",
			Name:      "candidate_list_depth",
			Help:      "Number of candidates in a flow's list at the moment a detector commits.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),
		LiveHostEntries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "svcid",
			Name:      "host_entries",
			Help:      "Number of HostEntry records currently tracked.",
		}),
		InvalidClientHits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "svcid",
			Name:      "invalid_client_hits_total",
			Help:      "Invalid-client hysteresis events, by resulting state transition.",
		}, []string{"transition"}),
	}
}

// Handler returns an http.Handler serving the registry's metrics in
// Prometheus exposition format, for wiring into a diagnostics server.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
