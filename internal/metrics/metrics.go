// Package metrics holds the Prometheus instrumentation for the ledger.
// Collectors hang off an explicitly constructed registry so tests can
// create isolated instances instead of sharing process-global state.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the service's collectors around one registry.
type Metrics struct {
	registry *prometheus.Registry

	EntriesApplied     *prometheus.CounterVec
	DuplicatesReplayed *prometheus.CounterVec
	WebhookRejections  *prometheus.CounterVec
	TransitionErrors   *prometheus.CounterVec
	FindingsDetected   *prometheus.CounterVec
	ApplyDuration      prometheus.Histogram
	ReconRunDuration   prometheus.Histogram
}

// New builds a Metrics with a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		EntriesApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_entries_applied_total",
			Help: "Ledger entries committed, by entry type and direction.",
		}, []string{"type", "direction"}),
		DuplicatesReplayed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_duplicates_replayed_total",
			Help: "Apply requests short-circuited as already applied, by dedup source.",
		}, []string{"source"}),
		WebhookRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_rejections_total",
			Help: "Provider callbacks rejected before dispatch, by provider and reason.",
		}, []string{"provider", "reason"}),
		TransitionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "transaction_transition_errors_total",
			Help: "Illegal lifecycle transition attempts, by transaction type.",
		}, []string{"type"}),
		FindingsDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recon_findings_detected_total",
			Help: "Reconciliation findings recorded, by provider and finding type.",
		}, []string{"provider", "finding_type"}),
		ApplyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_apply_duration_seconds",
			Help:    "End-to-end latency of balance applies.",
			Buckets: prometheus.DefBuckets,
		}),
		ReconRunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "recon_run_duration_seconds",
			Help:    "Wall time of reconciliation runs.",
			Buckets: []float64{.1, .5, 1, 5, 15, 60, 300},
		}),
	}
}

// Handler exposes the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
