package quorum

import "github.com/prometheus/client_golang/prometheus"

// SloMetrics counts read-path outcomes against their consistency hint:
// SLO hits/misses against a deadline, safe vs. budgeted read totals, and
// how many of each observed staleness. Built on an injected registry
// rather than the default global one, so tests can construct isolated
// instances per scenario rather than relying on ambient metric singletons.
type SloMetrics struct {
	sloHits   prometheus.Counter
	sloMisses prometheus.Counter

	safeReads     prometheus.Counter
	budgetedReads prometheus.Counter

	safeStale     prometheus.Counter
	budgetedStale prometheus.Counter
}

// NewSloMetrics registers and returns a SloMetrics bound to reg.
func NewSloMetrics(reg prometheus.Registerer) *SloMetrics {
	m := &SloMetrics{
		sloHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvstore_slo_deadline_hits_total",
			Help: "Reads that completed within their requested deadline.",
		}),
		sloMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvstore_slo_deadline_misses_total",
			Help: "Reads that exceeded their requested deadline.",
		}),
		safeReads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvstore_reads_safe_total",
			Help: "Reads served with the safe (non-budgeted) quorum.",
		}),
		budgetedReads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvstore_reads_budgeted_total",
			Help: "Reads served under a staleness budget.",
		}),
		safeStale: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvstore_reads_safe_stale_observed_total",
			Help: "Safe reads that nonetheless observed staleness.",
		}),
		budgetedStale: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvstore_reads_budgeted_stale_observed_total",
			Help: "Budgeted reads that observed staleness.",
		}),
	}
	reg.MustRegister(
		m.sloHits, m.sloMisses,
		m.safeReads, m.budgetedReads,
		m.safeStale, m.budgetedStale,
	)
	return m
}

// RecordReadOutcome tallies one completed read by whether it was served
// budgeted and whether staleness was observed.
func (m *SloMetrics) RecordReadOutcome(usedBudget, staleObserved bool) {
	if usedBudget {
		m.budgetedReads.Inc()
		if staleObserved {
			m.budgetedStale.Inc()
		}
		return
	}
	m.safeReads.Inc()
	if staleObserved {
		m.safeStale.Inc()
	}
}

// RecordLatencyOutcome compares elapsedMs against hint's deadline, if it
// has one, and tallies an SLO hit or miss.
func (m *SloMetrics) RecordLatencyOutcome(hint ConsistencyHint, elapsedMs float64) {
	if hint.Mode == HintNone {
		return
	}
	if elapsedMs <= float64(hint.DeadlineMillis) {
		m.sloHits.Inc()
	} else {
		m.sloMisses.Inc()
	}
}

// StaleObserved reports whether the read observed staleness: true iff any
// contacted replica's clock was strictly dominated by the winner's, or
// siblings were observed, or the quorum threshold was missed.
func StaleObserved(anyDominated, siblingsObserved, quorumMissed bool) bool {
	return anyDominated || siblingsObserved || quorumMissed
}
