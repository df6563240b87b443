// Package component defines the contracts shared by the long-running parts
// of fr-service.
//
// A component describes itself through Discoverable (metadata, health and
// data flow) and is driven through LifecycleComponent:
//
//	Initialize() error                  // setup only, no context
//	Start(ctx context.Context) error    // begin work; ctx bounds the run
//	Stop(timeout time.Duration) error   // graceful shutdown, idempotent
//
// The component never stores the context it is started with beyond the
// goroutines it spawns; cancelling that context stops the work as well.
//
// External collaborators (NATS, the metrics registry, the logger and the
// platform identity) arrive bundled in Dependencies.
//
// StandardLifecycleTests is a reusable test suite that checks a component
// against these rules.
package component
