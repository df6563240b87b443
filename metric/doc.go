// Package metric owns the Prometheus registry of an fr-service process.
//
// A MetricsRegistry wraps a private prometheus.Registry that already holds
// the Go runtime and process collectors plus the platform metrics in
// Metrics. Packages register their own collectors through the
// MetricsRegistrar methods; registering the same service/metric pair twice
// is an invalid-class error rather than a panic.
//
// Server exposes the registry over HTTP:
//
//	registry := metric.NewMetricsRegistry()
//	srv := metric.NewServer(9090, "/metrics", registry)
//	go srv.Start()
//	defer srv.Stop()
package metric
