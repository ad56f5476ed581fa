package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveDiscovery(t *testing.T) {
	m := NewDiscoveryMetrics(prometheus.NewRegistry())

	m.ObserveDiscovery("done", 2*time.Second)
	m.ObserveDiscovery("done", time.Second)
	m.ObserveDiscovery("no_results", time.Second)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.EntriesTotal.WithLabelValues("done")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EntriesTotal.WithLabelValues("no_results")))
}

func TestInFlightGauge(t *testing.T) {
	m := NewDiscoveryMetrics(prometheus.NewRegistry())

	m.InFlight.Inc()
	m.InFlight.Inc()
	assert.Equal(t, float64(2), testutil.ToFloat64(m.InFlight))

	m.InFlight.Dec()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.InFlight))
}

func TestBatchesStarted(t *testing.T) {
	m := NewDiscoveryMetrics(prometheus.NewRegistry())

	m.BatchesStarted.Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.BatchesStarted))
}
