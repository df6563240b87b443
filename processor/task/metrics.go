package task

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/fr-service/metric"
)

// taskMetrics holds the Prometheus collectors shared by every task of one
// registry. Labels carry the task name.
type taskMetrics struct {
	pointsReceived     *prometheus.CounterVec   // by task
	evaluations        *prometheus.CounterVec   // by task and mode (point, cycle)
	evaluationDuration *prometheus.HistogramVec // by task
	errors             *prometheus.CounterVec   // by task and kind (decode, evaluate, publish)
	exported           *prometheus.CounterVec   // by task and destination
	exportDropped      *prometheus.CounterVec   // by task and destination
	running            prometheus.Gauge
}

var (
	metricsMu    sync.Mutex
	metricsCache = make(map[*metric.MetricsRegistry]*taskMetrics)
)

// metricsFor returns the collectors registered with registry, creating them
// on first use. A nil registry disables metrics.
func metricsFor(registry *metric.MetricsRegistry) (*taskMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	metricsMu.Lock()
	defer metricsMu.Unlock()
	if m, ok := metricsCache[registry]; ok {
		return m, nil
	}

	m := &taskMetrics{
		pointsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "task",
			Name:      "points_received_total",
			Help:      "Points decoded from the task subscription",
		}, []string{"task"}),

		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "task",
			Name:      "evaluations_total",
			Help:      "Evaluation passes over the task roots",
		}, []string{"task", "mode"}),

		evaluationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "task",
			Name:      "evaluation_duration_seconds",
			Help:      "Duration of one evaluation pass",
			Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}, []string{"task"}),

		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "task",
			Name:      "errors_total",
			Help:      "Task errors by kind",
		}, []string{"task", "kind"}),

		exported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "task",
			Name:      "exported_total",
			Help:      "Points handed to an export destination",
		}, []string{"task", "destination"}),

		exportDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "task",
			Name:      "export_dropped_total",
			Help:      "Points an export destination refused",
		}, []string{"task", "destination"}),

		running: registry.CoreMetrics().TasksRunning,
	}

	if err := registry.RegisterCounterVec("task", "points_received", m.pointsReceived); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("task", "evaluations", m.evaluations); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec("task", "evaluation_duration", m.evaluationDuration); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("task", "errors", m.errors); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("task", "exported", m.exported); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("task", "export_dropped", m.exportDropped); err != nil {
		return nil, err
	}

	metricsCache[registry] = m
	return m, nil
}

func (m *taskMetrics) recordReceived(task string) {
	if m == nil {
		return
	}
	m.pointsReceived.WithLabelValues(task).Inc()
}

func (m *taskMetrics) recordEvaluation(task, mode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(task, mode).Inc()
	m.evaluationDuration.WithLabelValues(task).Observe(duration.Seconds())
}

func (m *taskMetrics) recordError(task, kind string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(task, kind).Inc()
}

func (m *taskMetrics) recordExport(task, destination string, ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.exported.WithLabelValues(task, destination).Inc()
		return
	}
	m.exportDropped.WithLabelValues(task, destination).Inc()
}

func (m *taskMetrics) recordRunning(delta float64) {
	if m == nil {
		return
	}
	m.running.Add(delta)
}
