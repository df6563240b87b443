package task

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/c360/fr-service/errors"
	"github.com/c360/fr-service/fn"
	"github.com/c360/fr-service/natsclient"
	"github.com/c360/fr-service/pkg/buffer"
	"github.com/c360/fr-service/point"
)

const (
	publishTimeout     = 5 * time.Second
	queueFlushInterval = 50 * time.Millisecond
	queueBatchSize     = 64
)

var destinationRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+(\.[A-Za-z0-9_-]+)*$`)

// NATSSink publishes each point as JSON on one subject.
type NATSSink struct {
	client  natsclient.Messenger
	subject string
}

// NewNATSSink creates a sink publishing on subject.
func NewNATSSink(client natsclient.Messenger, subject string) *NATSSink {
	return &NATSSink{client: client, subject: subject}
}

// Subject returns the subject points are published on.
func (s *NATSSink) Subject() string { return s.subject }

// Send implements fn.Sink.
func (s *NATSSink) Send(p point.Point) error {
	data, err := point.Encode(p)
	if err != nil {
		return errors.WrapInvalid(err, "NATSSink", "Send", "encode "+p.Name)
	}
	if s.client == nil {
		return errors.WrapTransient(fmt.Errorf("%w: no NATS client", errors.ErrSinkUnavailable),
			"NATSSink", "Send", "publish "+s.subject)
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := s.client.Publish(ctx, s.subject, data); err != nil {
		return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrSinkUnavailable, err),
			"NATSSink", "Send", "publish "+s.subject)
	}
	return nil
}

// QueueSink buffers points in process and forwards them to another sink
// from its own goroutine, so Send never waits on the network. A full or
// closed queue refuses the point with errors.ErrSinkUnavailable.
type QueueSink struct {
	name   string
	queue  buffer.Buffer[point.Point]
	out    fn.Sink
	notify chan struct{}
	logger *slog.Logger
}

// NewQueueSink creates a queue of the given capacity in front of out.
func NewQueueSink(name string, capacity int, out fn.Sink, logger *slog.Logger,
	opts ...buffer.Option[point.Point]) (*QueueSink, error) {
	opts = append([]buffer.Option[point.Point]{buffer.WithOverflowPolicy[point.Point](buffer.DropNewest)}, opts...)
	queue, err := buffer.NewCircularBuffer(capacity, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "QueueSink", "NewQueueSink", "create buffer "+name)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueSink{
		name:   name,
		queue:  queue,
		out:    out,
		notify: make(chan struct{}, 1),
		logger: logger.With("queue", name),
	}, nil
}

// Name returns the destination name.
func (q *QueueSink) Name() string { return q.name }

// Len returns the number of points waiting to be forwarded.
func (q *QueueSink) Len() int { return q.queue.Size() }

// Stats returns the queue statistics.
func (q *QueueSink) Stats() *buffer.Statistics { return q.queue.Stats() }

// Send implements fn.Sink.
func (q *QueueSink) Send(p point.Point) error {
	if err := q.queue.Write(p); err != nil {
		return fmt.Errorf("%w: queue %s: %w", errors.ErrSinkUnavailable, q.name, err)
	}
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Flush forwards every queued point and reports how many were sent and how
// many the downstream sink refused. Refused points are dropped.
func (q *QueueSink) Flush() (sent, failed int) {
	for {
		batch := q.queue.ReadBatch(queueBatchSize)
		if len(batch) == 0 {
			return sent, failed
		}
		for _, p := range batch {
			if err := q.out.Send(p); err != nil {
				failed++
				q.logger.Debug("Queued point not forwarded", "point", p.Name, "error", err)
				continue
			}
			sent++
		}
	}
}

// Run forwards queued points until ctx is done, then flushes what is left.
func (q *QueueSink) Run(ctx context.Context) {
	ticker := time.NewTicker(queueFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			q.flushAndLog()
			return
		case <-q.notify:
		case <-ticker.C:
		}
		q.flushAndLog()
	}
}

func (q *QueueSink) flushAndLog() {
	if _, failed := q.Flush(); failed > 0 {
		q.logger.Warn("Dropped queued points", "count", failed)
	}
}

// Close rejects further points. Queued points can still be flushed.
func (q *QueueSink) Close() error {
	return q.queue.Close()
}

// destinations resolves Export destination names for one task. Configured
// queues are fixed at construction; any other valid name publishes
// directly on <prefix>.<name>.
type destinations struct {
	client natsclient.Messenger
	prefix string
	queues map[string]*QueueSink

	mu     sync.Mutex
	direct map[string]*NATSSink
}

var _ fn.Sinks = (*destinations)(nil)

func newDestinations(client natsclient.Messenger, prefix string) *destinations {
	return &destinations{
		client: client,
		prefix: prefix,
		queues: make(map[string]*QueueSink),
		direct: make(map[string]*NATSSink),
	}
}

func (d *destinations) subject(name string) string {
	return d.prefix + "." + name
}

// Sink implements fn.Sinks.
func (d *destinations) Sink(name string) (fn.Sink, bool) {
	if q, ok := d.queues[name]; ok {
		return q, true
	}
	if !destinationRegex.MatchString(name) {
		return nil, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.direct[name]
	if !ok {
		s = NewNATSSink(d.client, d.subject(name))
		d.direct[name] = s
	}
	return s, true
}
