package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelayMetricsRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRelayMetrics(reg)

	m.Delivered("bid_placed")
	m.Delivered("bid_placed")
	m.Retried("listing_sold")
	m.DeadLettered("")
	m.ObserveBatch(40 * time.Millisecond)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	delivered, err := fetchCounterValue(mfs, "bidhaven_outbox_delivered_total", "event_type", "bid_placed")
	require.NoError(t, err)
	assert.Equal(t, 2.0, delivered)

	retried, err := fetchCounterValue(mfs, "bidhaven_outbox_retries_total", "event_type", "listing_sold")
	require.NoError(t, err)
	assert.Equal(t, 1.0, retried)

	parked, err := fetchCounterValue(mfs, "bidhaven_outbox_dead_lettered_total", "reason", "unknown")
	require.NoError(t, err)
	assert.Equal(t, 1.0, parked)

	batches := findMetricFamily(mfs, "bidhaven_outbox_batch_duration_seconds")
	require.NotNil(t, batches)
	assert.EqualValues(t, 1, batches.GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestRelayMetricsNilRegistererIsNoop(t *testing.T) {
	m := NewRelayMetrics(nil)
	assert.NotPanics(t, func() {
		m.Delivered("x")
		m.Retried("x")
		m.DeadLettered("x")
		m.ObserveBatch(time.Second)
	})
}
