// Package metrics holds the node-wide Prometheus registry and the
// counters/histograms shared across packages that don't already own a
// metrics type of their own (internal/quorum's SloMetrics is the model
// this package follows: an injected prometheus.Registerer rather than the
// global default registry, so tests can build an isolated instance per
// scenario).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// NewRegistry returns a fresh, empty registry for one node's process —
// never the package-level default registry, so multiple nodes can run
// in a single test binary without metric name collisions.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// Metrics bundles the counters and histograms not already owned by a
// component-local metrics type (quorum.SloMetrics covers the read-path
// SLO counters; this type covers write-quorum outcomes, anti-entropy
// round outcomes, repair selection volume, and the HTTP surface).
type Metrics struct {
	WriteQuorumSuccess prometheus.Counter
	WriteQuorumFailure prometheus.Counter

	AntiEntropyRoundsInSync    prometheus.Counter
	AntiEntropyRoundsDivergent prometheus.Counter
	AntiEntropyRoundErrors     prometheus.Counter

	RepairTokensSelected prometheus.Counter
	RepairTokensSkipped  prometheus.Counter

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers and returns a Metrics bound to reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		WriteQuorumSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvstore_write_quorum_success_total",
			Help: "Writes that met write quorum.",
		}),
		WriteQuorumFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvstore_write_quorum_failure_total",
			Help: "Writes that failed to meet write quorum.",
		}),
		AntiEntropyRoundsInSync: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvstore_antientropy_rounds_in_sync_total",
			Help: "Anti-entropy rounds whose Merkle roots matched immediately.",
		}),
		AntiEntropyRoundsDivergent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvstore_antientropy_rounds_divergent_total",
			Help: "Anti-entropy rounds that found at least one differing leaf.",
		}),
		AntiEntropyRoundErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvstore_antientropy_round_errors_total",
			Help: "Anti-entropy rounds that failed before completing.",
		}),
		RepairTokensSelected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvstore_repair_tokens_selected_total",
			Help: "Tokens selected for repair by the scheduler.",
		}),
		RepairTokensSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvstore_repair_tokens_skipped_total",
			Help: "Differing tokens the repair scheduler left unselected this round.",
		}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kvstore_http_requests_total",
			Help: "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kvstore_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	reg.MustRegister(
		m.WriteQuorumSuccess, m.WriteQuorumFailure,
		m.AntiEntropyRoundsInSync, m.AntiEntropyRoundsDivergent, m.AntiEntropyRoundErrors,
		m.RepairTokensSelected, m.RepairTokensSkipped,
		m.HTTPRequestsTotal, m.HTTPRequestDuration,
	)
	return m
}

// RecordWriteQuorum tallies a write's quorum outcome.
func (m *Metrics) RecordWriteQuorum(met bool) {
	if met {
		m.WriteQuorumSuccess.Inc()
		return
	}
	m.WriteQuorumFailure.Inc()
}

// RecordAntiEntropyRound tallies one completed round's outcome. err takes
// priority over inSync: a round that failed never reached a sync verdict.
func (m *Metrics) RecordAntiEntropyRound(inSync bool, err error) {
	if err != nil {
		m.AntiEntropyRoundErrors.Inc()
		return
	}
	if inSync {
		m.AntiEntropyRoundsInSync.Inc()
		return
	}
	m.AntiEntropyRoundsDivergent.Inc()
}

// RecordRepairSelection tallies one scheduler call's selected/skipped split.
func (m *Metrics) RecordRepairSelection(selected, total int) {
	if selected > total {
		selected = total
	}
	m.RepairTokensSelected.Add(float64(selected))
	m.RepairTokensSkipped.Add(float64(total - selected))
}
