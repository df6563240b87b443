// Package task runs fr-service evaluation tasks.
//
// A Task owns the graph built from one task document (see package fn) and
// feeds it from NATS:
//
//	points.App.Load ──► subscription ──► bounded queue ──► evaluation goroutine
//	                     (decode JSON)                      Update leaf, pull roots
//	                                                              │
//	                                   derived.<destination> ◄────┘ Export sinks
//
// # Evaluation modes
//
// Without a cycle option the task evaluates per point: a point updates its
// leaf and then only the roots whose inputs include that point are pulled,
// in declaration order, within one pass. With "cycle: 100 ms" points only
// update leaves and every root is pulled on each tick.
//
// Root errors do not stop the pass. They are counted, logged at most once
// per interval and delivered on Errors().
//
// # Destinations
//
// Export operators name a destination with send-to. A destination listed in
// the task's queues is a QueueSink: an in-process circular buffer drained by
// its own goroutine, refusing points when full. Any other destination
// publishes directly on <export_prefix>.<destination>.
//
// # Retained values
//
// Retain operators use an in-memory store unless WithRetainStore supplies
// one. KVRetainStore keeps values in a JetStream KV bucket; it serves reads
// from memory and writes changes behind from Run.
//
// # Lifecycle
//
//	t, err := task.NewTask(cfg, deps, task.WithCatalog(catalog))
//	err = t.Initialize()     // parse the document, build the graph
//	err = t.Start(ctx)       // subscribe and evaluate
//	err = t.Stop(5 * time.Second)
//
// A stopped task must be initialized again before it is restarted, which
// rebuilds the graph and resets all operator state.
package task
