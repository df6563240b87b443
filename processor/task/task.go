package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/c360/fr-service/component"
	"github.com/c360/fr-service/config"
	"github.com/c360/fr-service/errors"
	"github.com/c360/fr-service/fn"
	"github.com/c360/fr-service/fnconfig"
	"github.com/c360/fr-service/natsclient"
	"github.com/c360/fr-service/pkg/buffer"
	"github.com/c360/fr-service/point"
)

// Evaluation modes, used as the "mode" metric label.
const (
	ModePoint = "point"
	ModeCycle = "cycle"
)

const (
	errorBufferSize  = 64
	healthWindow     = time.Minute
	errorLogInterval = 10 * time.Second
)

// Option configures a Task.
type Option func(*Task)

// WithCatalog sets the points catalog used to type leaves and resolve
// Export conf paths.
func WithCatalog(catalog *point.Catalog) Option {
	return func(t *Task) { t.catalog = catalog }
}

// WithRetainStore sets the store Retain operators persist to. Tasks of one
// service normally share a store.
func WithRetainStore(store fn.RetainStore) Option {
	return func(t *Task) {
		if store != nil {
			t.retain = store
		}
	}
}

// WithClock sets the clock handed to time-dependent operators.
func WithClock(clock fn.Clock) Option {
	return func(t *Task) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// evaluator is everything the evaluation goroutine owns. It is rebuilt by
// Initialize and never touched by other goroutines while running.
type evaluator struct {
	graph   *fn.Graph
	roots   []fn.NodeID
	names   map[fn.NodeID]string
	byInput map[string][]fn.NodeID
	leaves  map[string]bool
	cycle   time.Duration
	inQueue string
}

// Task drives the evaluation of one task document. Points arriving on
// <subject_prefix>.> are decoded by the subscription and handed to a single
// goroutine that owns the graph. Without a cycle each point pulls the roots
// that depend on it; with a cycle points only update leaves and every root
// is pulled on each tick.
type Task struct {
	name       string
	cfg        config.TaskConfig
	client     natsclient.Messenger
	logger     *slog.Logger
	metrics    *taskMetrics
	catalog    *point.Catalog
	retain     fn.RetainStore
	clock      fn.Clock
	dests      *destinations
	instanceID string
	txID       int

	lifecycleMu sync.Mutex
	mu          sync.RWMutex
	state       component.State
	eval        *evaluator
	in          chan point.Point
	done        <-chan struct{}
	sub         natsclient.Subscription
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	startTime   time.Time
	lastError   string
	lastErrorAt time.Time

	lastActivity atomic.Int64
	received     atomic.Int64
	evaluations  atomic.Int64
	errorCount   atomic.Int64
	exported     atomic.Int64
	dropped      atomic.Int64

	errs       chan error
	errLimiter *rate.Limiter
}

var _ component.LifecycleComponent = (*Task)(nil)

// NewTask creates a task from its configuration. The task document is read
// by Initialize.
func NewTask(cfg config.TaskConfig, deps component.Dependencies, opts ...Option) (*Task, error) {
	if cfg.Name == "" || cfg.File == "" {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: task name and file are required", errors.ErrMissingConfig),
			"Task", "NewTask", "check config")
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = config.DefaultSubjectPrefix
	}
	if cfg.ExportPrefix == "" {
		cfg.ExportPrefix = config.DefaultExportPrefix
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = config.DefaultQueueSize
	}

	logger := deps.GetLoggerWithComponent("task").With("task", cfg.Name)

	metrics, err := metricsFor(deps.MetricsRegistry)
	if err != nil {
		logger.Error("Failed to initialize task metrics", "error", err)
		metrics = nil
	}

	t := &Task{
		name:       cfg.Name,
		cfg:        cfg,
		client:     deps.NATSClient,
		logger:     logger,
		metrics:    metrics,
		retain:     fn.NewMemoryRetainStore(),
		clock:      fn.SystemClock,
		dests:      newDestinations(deps.NATSClient, cfg.ExportPrefix),
		instanceID: uuid.NewString(),
		txID:       TxIDFor(deps.Platform.Org, deps.Platform.Platform, cfg.Name),
		errs:       make(chan error, errorBufferSize),
		errLimiter: rate.NewLimiter(rate.Every(errorLogInterval), 1),
	}
	for _, opt := range opts {
		opt(t)
	}

	for _, q := range cfg.Queues {
		capacity := q.Capacity
		if capacity <= 0 {
			capacity = config.DefaultQueueCapacity
		}
		out := NewNATSSink(deps.NATSClient, t.dests.subject(q.Name))
		qs, err := NewQueueSink(q.Name, capacity, out, logger,
			buffer.WithMetrics[point.Point](deps.MetricsRegistry, "task_"+cfg.Name+"_"+q.Name))
		if err != nil {
			return nil, errors.Wrap(err, "Task", "NewTask", "create queue "+q.Name)
		}
		t.dests.queues[q.Name] = qs
	}
	return t, nil
}

// TxIDFor derives the transmission id stamped on exported points. It is
// stable for a given installation and task name.
func TxIDFor(org, platform, task string) int {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte("fr-service:"+org+"/"+platform+"/"+task))
	return int(id.ID() & 0x7fffffff)
}

// Name returns the configured task name.
func (t *Task) Name() string { return t.name }

// TxID returns the transmission id stamped on exported points.
func (t *Task) TxID() int { return t.txID }

// Errors delivers evaluation errors. Errors are dropped while nobody reads
// and the buffer is full. The channel is never closed.
func (t *Task) Errors() <-chan error { return t.errs }

// Queue returns the configured queue destination with the given name.
func (t *Task) Queue(name string) (*QueueSink, bool) {
	q, ok := t.dests.queues[name]
	return q, ok
}

// Mode reports ModeCycle when the task document sets a cycle, else
// ModePoint. It is ModePoint before Initialize.
func (t *Task) Mode() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.eval != nil && t.eval.cycle > 0 {
		return ModeCycle
	}
	return ModePoint
}

// Initialize loads the task document and builds a fresh graph. It may be
// called again after Stop to reload the document.
func (t *Task) Initialize() error {
	t.lifecycleMu.Lock()
	defer t.lifecycleMu.Unlock()

	if t.state == component.StateStarted {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Task", "Initialize", "check state")
	}

	def, err := fnconfig.LoadTask(t.cfg.File)
	if err != nil {
		t.setState(component.StateFailed)
		return errors.Wrap(err, "Task", "Initialize", "load "+t.cfg.File)
	}
	if def.Name != t.name {
		t.logger.Warn("Task document name differs from configuration", "document", def.Name)
	}

	eval, err := t.build(def)
	if err != nil {
		t.setState(component.StateFailed)
		return err
	}

	t.mu.Lock()
	t.eval = eval
	t.state = component.StateInitialized
	t.mu.Unlock()

	t.logger.Info("Task initialized",
		"roots", len(eval.roots),
		"leaves", len(eval.leaves),
		"cycle", eval.cycle,
		"tx_id", t.txID)
	return nil
}

func (t *Task) build(def *fnconfig.TaskConfig) (*evaluator, error) {
	g, roots, err := fn.BuildTask(def,
		fn.WithLogger(t.logger),
		fn.WithClock(t.clock),
		fn.WithCatalog(t.catalog),
		fn.WithSinks(t.dests),
		fn.WithRetainStore(t.retain),
		fn.WithTask(def.Name, t.txID),
		fn.WithExportHook(t.onExport),
	)
	if err != nil {
		return nil, errors.Wrap(err, "Task", "Initialize", "build graph")
	}

	eval := &evaluator{
		graph:   g,
		roots:   make([]fn.NodeID, len(roots)),
		names:   make(map[fn.NodeID]string, len(roots)),
		byInput: make(map[string][]fn.NodeID),
		leaves:  make(map[string]bool),
		cycle:   def.Cycle,
		inQueue: def.InQueue,
	}
	for i, r := range roots {
		eval.roots[i] = r.ID
		eval.names[r.ID] = r.Name
		for _, name := range g.Inputs(r.ID) {
			eval.byInput[name] = append(eval.byInput[name], r.ID)
		}
	}
	for _, leaf := range g.Leaves() {
		eval.leaves[leaf] = true
	}
	return eval, nil
}

// Start subscribes to the input subject and starts evaluating.
func (t *Task) Start(ctx context.Context) error {
	t.lifecycleMu.Lock()
	defer t.lifecycleMu.Unlock()

	if err := ctx.Err(); err != nil {
		return errors.WrapTransient(err, "Task", "Start", "check context")
	}
	switch t.state {
	case component.StateInitialized:
	case component.StateStarted:
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Task", "Start", "check state")
	default:
		return errors.WrapInvalid(fmt.Errorf("task %s not initialized", t.name), "Task", "Start", "check state")
	}
	if t.client == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "Task", "Start", "NATS client required")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	in := make(chan point.Point, t.cfg.QueueSize)
	t.mu.Lock()
	t.in, t.done = in, runCtx.Done()
	eval := t.eval
	t.mu.Unlock()

	subject := t.inputSubject(eval)
	sub, err := t.client.Subscribe(runCtx, subject, t.handleMessage)
	if err != nil {
		cancel()
		t.logger.Error("Failed to subscribe", "subject", subject, "error", err)
		return errors.WrapTransient(err, "Task", "Start", "subscribe to "+subject)
	}

	t.wg.Add(1)
	go t.run(runCtx, eval, in)
	for _, q := range t.dests.queues {
		t.wg.Add(1)
		go func(q *QueueSink) {
			defer t.wg.Done()
			q.Run(runCtx)
		}(q)
	}

	t.mu.Lock()
	t.sub, t.cancel = sub, cancel
	t.state = component.StateStarted
	t.startTime = time.Now()
	t.mu.Unlock()
	t.metrics.recordRunning(1)

	t.logger.Info("Task started",
		"subject", subject,
		"export_prefix", t.cfg.ExportPrefix,
		"mode", t.Mode())
	return nil
}

// inputSubject is the task's "in queue" when the document names one,
// otherwise every subject under the subject prefix.
func (t *Task) inputSubject(eval *evaluator) string {
	if eval.inQueue != "" {
		return eval.inQueue
	}
	return t.cfg.SubjectPrefix + ".>"
}

// Stop unsubscribes, stops evaluation and flushes the queues. Stopping a
// task that is not running is a no-op.
func (t *Task) Stop(timeout time.Duration) error {
	t.lifecycleMu.Lock()
	defer t.lifecycleMu.Unlock()

	if t.state != component.StateStarted {
		return nil
	}

	t.mu.Lock()
	sub, cancel := t.sub, t.cancel
	t.sub = nil
	t.mu.Unlock()

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			t.logger.Warn("Unsubscribe failed", "error", err)
		}
	}
	cancel()

	waitCh := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("shutdown timeout after %v", timeout), "Task", "Stop", "graceful shutdown")
	}

	t.setState(component.StateStopped)
	t.metrics.recordRunning(-1)
	t.logger.Info("Task stopped",
		"received", t.received.Load(),
		"evaluations", t.evaluations.Load(),
		"errors", t.errorCount.Load())
	return nil
}

func (t *Task) setState(s component.State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// handleMessage runs on the subscription goroutine. It decodes the point
// and queues it for the evaluation goroutine, waiting while the queue is
// full.
func (t *Task) handleMessage(ctx context.Context, data []byte) {
	p, err := point.Decode(data)
	if err != nil {
		t.reportError("decode", err, false)
		return
	}

	t.mu.RLock()
	eval, in, done := t.eval, t.in, t.done
	t.mu.RUnlock()
	if eval == nil || !eval.leaves[p.Name] {
		return
	}

	t.received.Add(1)
	t.lastActivity.Store(time.Now().UnixNano())
	t.metrics.recordReceived(t.name)

	select {
	case in <- p:
	case <-done:
	case <-ctx.Done():
		t.reportError("queue_full", fmt.Errorf("%w: input queue full, dropped %s", errors.ErrResourceExhausted, p.Name), false)
	}
}

func (t *Task) run(ctx context.Context, eval *evaluator, in <-chan point.Point) {
	defer t.wg.Done()

	var tick <-chan time.Time
	if eval.cycle > 0 {
		ticker := time.NewTicker(eval.cycle)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case p := <-in:
			if !eval.graph.Update(p) || eval.cycle > 0 {
				continue
			}
			if roots := eval.byInput[p.Name]; len(roots) > 0 {
				t.evaluate(eval, ModePoint, roots)
			}
		case <-tick:
			t.evaluate(eval, ModeCycle, eval.roots)
		}
	}
}

// evaluate pulls roots in order within one pass. A failing root does not
// stop the others.
func (t *Task) evaluate(eval *evaluator, mode string, roots []fn.NodeID) {
	start := time.Now()
	results := eval.graph.PullAll(roots)
	t.metrics.recordEvaluation(t.name, mode, time.Since(start))
	t.evaluations.Add(1)

	for _, r := range results {
		if r.Err != nil {
			t.reportError("evaluate", errors.Wrap(r.Err, "Task", "evaluate", "pull "+eval.names[r.Root]), true)
		}
	}
}

func (t *Task) reportError(kind string, err error, publish bool) {
	t.errorCount.Add(1)
	t.metrics.recordError(t.name, kind)

	t.mu.Lock()
	t.lastError = err.Error()
	t.lastErrorAt = time.Now()
	t.mu.Unlock()

	if t.errLimiter.Allow() {
		t.logger.Warn("Task error", "kind", kind, "error", err)
	}
	if publish {
		select {
		case t.errs <- err:
		default:
		}
	}
}

func (t *Task) onExport(ev fn.ExportEvent) {
	t.metrics.recordExport(t.name, ev.Destination, ev.Err == nil)
	if ev.Err != nil {
		t.dropped.Add(1)
		return
	}
	t.exported.Add(1)
}

// Meta returns metadata describing this task.
func (t *Task) Meta() component.Metadata {
	return component.Metadata{
		Name:        t.name,
		Type:        "task",
		Description: "Point evaluation task " + t.cfg.File,
		Version:     "0.1.0",
		InstanceID:  t.instanceID,
	}
}

// Health reports the task healthy while running, and degraded when an
// error occurred within the last minute.
func (t *Task) Health() component.HealthStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	running := t.state == component.StateStarted
	status := component.HealthStatus{
		Healthy:    running,
		Degraded:   running && !t.lastErrorAt.IsZero() && time.Since(t.lastErrorAt) < healthWindow,
		LastCheck:  time.Now(),
		ErrorCount: int(t.errorCount.Load()),
		LastError:  t.lastError,
	}
	if running {
		status.Uptime = time.Since(t.startTime)
	}
	return status
}

// DataFlow returns the input rate since Start and the error rate per
// received point.
func (t *Task) DataFlow() component.FlowMetrics {
	t.mu.RLock()
	startTime, running := t.startTime, t.state == component.StateStarted
	t.mu.RUnlock()

	received := t.received.Load()
	errCount := t.errorCount.Load()

	var flow component.FlowMetrics
	if running {
		if secs := time.Since(startTime).Seconds(); secs > 0 {
			flow.MessagesPerSecond = float64(received) / secs
		}
	}
	if received > 0 {
		flow.ErrorRate = float64(errCount) / float64(received)
	}
	if ns := t.lastActivity.Load(); ns > 0 {
		flow.LastActivity = time.Unix(0, ns)
	}
	return flow
}

// Stats is a snapshot of the task counters.
type Stats struct {
	Received    int64
	Evaluations int64
	Errors      int64
	Exported    int64
	Dropped     int64
}

// Stats returns the task counters.
func (t *Task) Stats() Stats {
	return Stats{
		Received:    t.received.Load(),
		Evaluations: t.evaluations.Load(),
		Errors:      t.errorCount.Load(),
		Exported:    t.exported.Load(),
		Dropped:     t.dropped.Load(),
	}
}
