package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace          = "passporter"
	subsystemDiscovery = "discovery"
	subsystemScheduler = "scheduler"
)

// DiscoveryMetrics tracks discovery throughput and latency.
type DiscoveryMetrics struct {
	EntriesTotal      *prometheus.CounterVec
	DiscoveryDuration prometheus.Histogram
	InFlight          prometheus.Gauge
	BatchesStarted    prometheus.Counter
}

func NewDiscoveryMetrics(reg prometheus.Registerer) *DiscoveryMetrics {
	factory := promauto.With(reg)

	return &DiscoveryMetrics{
		EntriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemDiscovery,
			Name:      "entries_total",
			Help:      "Finished entry discoveries by terminal status.",
		}, []string{"status"}),
		DiscoveryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemDiscovery,
			Name:      "duration_seconds",
			Help:      "Time spent discovering one entry.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemDiscovery,
			Name:      "in_flight",
			Help:      "Discoveries currently running.",
		}),
		BatchesStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScheduler,
			Name:      "batches_started_total",
			Help:      "Batches accepted by the scheduler.",
		}),
	}
}

// ObserveDiscovery records one finished entry discovery.
func (m *DiscoveryMetrics) ObserveDiscovery(status string, elapsed time.Duration) {
	m.EntriesTotal.WithLabelValues(status).Inc()
	m.DiscoveryDuration.Observe(elapsed.Seconds())
}
