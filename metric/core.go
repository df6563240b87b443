package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric exported by fr-service.
const Namespace = "frservice"

// Metrics holds the process-wide metrics that do not belong to one task.
type Metrics struct {
	ServiceStatus *prometheus.GaugeVec
	TasksRunning  prometheus.Gauge

	NATSConnected      prometheus.Gauge
	NATSReconnects     prometheus.Counter
	NATSCircuitBreaker prometheus.Gauge
}

// NewMetrics creates the platform metrics. They are not registered.
func NewMetrics() *Metrics {
	return &Metrics{
		ServiceStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "service",
				Name:      "status",
				Help:      "Service status (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)",
			},
			[]string{"service"},
		),
		TasksRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "service",
			Name:      "tasks_running",
			Help:      "Number of task evaluation drivers currently running",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "nats",
			Name:      "connected",
			Help:      "NATS connection status (0=disconnected, 1=connected)",
		}),
		NATSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "nats",
			Name:      "reconnects_total",
			Help:      "Total number of NATS reconnections",
		}),
		NATSCircuitBreaker: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "nats",
			Name:      "circuit_breaker",
			Help:      "NATS circuit breaker status (0=closed, 1=open)",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ServiceStatus,
		m.TasksRunning,
		m.NATSConnected,
		m.NATSReconnects,
		m.NATSCircuitBreaker,
	}
}

// RecordServiceStatus sets the status gauge of a service.
func (m *Metrics) RecordServiceStatus(service string, status int) {
	m.ServiceStatus.WithLabelValues(service).Set(float64(status))
}

// RecordNATSStatus updates the connection gauge.
func (m *Metrics) RecordNATSStatus(connected bool) {
	m.NATSConnected.Set(boolGauge(connected))
}

// RecordNATSReconnect counts one reconnection.
func (m *Metrics) RecordNATSReconnect() {
	m.NATSReconnects.Inc()
}

// RecordCircuitBreakerState updates the circuit breaker gauge.
func (m *Metrics) RecordCircuitBreakerState(open bool) {
	m.NATSCircuitBreaker.Set(boolGauge(open))
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
