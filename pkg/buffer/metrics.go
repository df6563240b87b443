package buffer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/fr-service/metric"
)

// bufferMetrics is nil when metrics are disabled; every method tolerates a
// nil receiver.
type bufferMetrics struct {
	drops       prometheus.Counter
	size        prometheus.Gauge
	utilization prometheus.Gauge
}

func newBufferMetrics(registry *metric.MetricsRegistry, prefix string) (*bufferMetrics, error) {
	labels := prometheus.Labels{"component": prefix}
	m := &bufferMetrics{
		drops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "buffer",
			Name:        "drops_total",
			ConstLabels: labels,
			Help:        "Items dropped because the buffer was full",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "buffer",
			Name:        "size",
			ConstLabels: labels,
			Help:        "Items currently queued",
		}),
		utilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "buffer",
			Name:        "utilization",
			ConstLabels: labels,
			Help:        "Queued items as a fraction of capacity",
		}),
	}

	if err := registry.RegisterCounter(prefix, "buffer_drops", m.drops); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "buffer_size", m.size); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "buffer_utilization", m.utilization); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *bufferMetrics) recordDrop() {
	if m == nil {
		return
	}
	m.drops.Inc()
}

func (m *bufferMetrics) recordSize(size, capacity int) {
	if m == nil {
		return
	}
	m.size.Set(float64(size))
	m.utilization.Set(float64(size) / float64(capacity))
}
