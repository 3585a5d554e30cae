package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RelayMetrics tracks the outbox publisher loop.
type RelayMetrics struct {
	delivered *prometheus.CounterVec
	retried   *prometheus.CounterVec
	parked    *prometheus.CounterVec
	batches   prometheus.Histogram
}

func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	if reg == nil {
		return &RelayMetrics{}
	}
	m := &RelayMetrics{
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bidhaven_outbox_delivered_total",
			Help: "Outbox rows published to their topic.",
		}, []string{"event_type"}),
		retried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bidhaven_outbox_retries_total",
			Help: "Publish attempts that failed and were left for a later batch.",
		}, []string{"event_type"}),
		parked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bidhaven_outbox_dead_lettered_total",
			Help: "Outbox rows moved to the dead letter table.",
		}, []string{"reason"}),
		batches: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bidhaven_outbox_batch_duration_seconds",
			Help:    "Wall time of one claimed outbox batch.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
	}
	reg.MustRegister(m.delivered, m.retried, m.parked, m.batches)
	return m
}

func (m *RelayMetrics) Delivered(eventType string) {
	if m == nil || m.delivered == nil {
		return
	}
	m.delivered.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *RelayMetrics) Retried(eventType string) {
	if m == nil || m.retried == nil {
		return
	}
	m.retried.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *RelayMetrics) DeadLettered(reason string) {
	if m == nil || m.parked == nil {
		return
	}
	m.parked.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *RelayMetrics) ObserveBatch(took time.Duration) {
	if m == nil || m.batches == nil {
		return
	}
	m.batches.Observe(took.Seconds())
}
