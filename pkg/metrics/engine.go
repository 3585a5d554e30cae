package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics counts auction lifecycle outcomes.
type EngineMetrics struct {
	bids        *prometheus.CounterVec
	transitions *prometheus.CounterVec
	conflicts   *prometheus.CounterVec
	sideEffects *prometheus.CounterVec
}

// NewEngineMetrics registers the engine counters on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	if reg == nil {
		return &EngineMetrics{}
	}
	bids := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bidhaven_bids_total",
		Help: "Bids processed, labelled accepted or by rejection reason.",
	}, []string{"outcome"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bidhaven_listing_transitions_total",
		Help: "Lifecycle transition attempts by operation and outcome.",
	}, []string{"operation", "outcome"})
	conflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bidhaven_write_conflicts_total",
		Help: "Conditional writes that lost a race.",
	}, []string{"operation"})
	sideEffects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bidhaven_side_effect_failures_total",
		Help: "Best-effort side effects that failed and were dropped.",
	}, []string{"kind"})
	reg.MustRegister(bids, transitions, conflicts, sideEffects)
	return &EngineMetrics{
		bids:        bids,
		transitions: transitions,
		conflicts:   conflicts,
		sideEffects: sideEffects,
	}
}

// IncBid records a processed bid.
func (m *EngineMetrics) IncBid(outcome string) {
	if m == nil || m.bids == nil {
		return
	}
	m.bids.WithLabelValues(normalizeLabel(strings.ToLower(outcome))).Inc()
}

// IncTransition records the outcome of a lifecycle operation.
func (m *EngineMetrics) IncTransition(operation, outcome string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(operation), normalizeLabel(strings.ToLower(outcome))).Inc()
}

// IncConflict records a lost conditional write.
func (m *EngineMetrics) IncConflict(operation string) {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.WithLabelValues(normalizeLabel(operation)).Inc()
}

// IncSideEffectFailure records a dropped side effect.
func (m *EngineMetrics) IncSideEffectFailure(kind string) {
	if m == nil || m.sideEffects == nil {
		return
	}
	m.sideEffects.WithLabelValues(normalizeLabel(kind)).Inc()
}
