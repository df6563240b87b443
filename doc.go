// Package frservice evaluates SCADA task graphs over a NATS point stream.
//
// A task is a YAML document of nested functions. Leaves read named points
// (and shared let vars), inner nodes compute on them, and roots such as
// Export forward derived points to a destination.
//
// # Architecture
//
//	┌──────────────────────────────┐
//	│   cmd/fr-service             │  flags, config, NATS connect,
//	│                              │  metrics server, task lifecycle
//	└──────────────┬───────────────┘
//	               ↓ runs
//	┌──────────────────────────────┐
//	│   processor/task             │  subscription, evaluation loop,
//	│                              │  destinations, retained values
//	└──────────────┬───────────────┘
//	               ↓ builds and pulls
//	┌──────────────────────────────┐
//	│   fn  ←  fnconfig  ←  YAML   │  graph builder, operator catalog
//	└──────────────┬───────────────┘
//	               ↓ computes on
//	┌──────────────────────────────┐
//	│   point                      │  typed values, combinators,
//	│                              │  wire codec, points catalog
//	└──────────────────────────────┘
//
// # Packages
//
//   - point: the Point value model and the YAML points catalog.
//   - fnconfig: the keyword grammar and the FnConfig tree parsed from a task.
//   - fn: the node contract, the arena graph with shared Var nodes, and every operator.
//   - processor/task: the evaluation driver component.
//   - natsclient: NATS connection management and JetStream KV buckets.
//   - config: the service configuration document.
//   - errors, metric, health, component: shared infrastructure.
//
// # Example task
//
//	task Recorder:
//	    cycle: 500 ms
//	    let Speed: point real /App/Speed
//	    fn Export:
//	        send-to: api
//	        conf point bool /Recorder/Overspeed:
//	        input fn Ge:
//	            input1: Speed
//	            input2: const real 12.5
//
// Per-point tasks (no cycle) pull only the roots that read the point that
// just arrived; cycle tasks pull every root on each tick.
package frservice
