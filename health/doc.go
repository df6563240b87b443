// Package health tracks the health of fr-service components.
//
// A Status is healthy, degraded or unhealthy. Aggregate folds several
// statuses into one: any unhealthy member makes the aggregate unhealthy,
// otherwise any degraded member makes it degraded.
//
// Monitor holds the latest status per component. Components can also be
// registered as probes, which Refresh polls:
//
//	monitor := health.NewMonitor()
//	monitor.Register("task/Recorder", func() health.Status {
//		return health.FromComponentHealth("task/Recorder", task.Health())
//	})
//	server.WithHealth(func() bool { return !monitor.Check("fr-service").IsUnhealthy() })
//
// Messages copied from component errors are sanitized so URLs, paths and
// credentials do not leak through the health endpoint.
package health
