package buffer

import (
	"fmt"
	"sync"

	"github.com/c360/fr-service/errors"
)

type circularBuffer[T any] struct {
	mu       sync.Mutex
	items    []T
	head     int // next read
	size     int
	closed   bool
	stats    *Statistics
	metrics  *bufferMetrics
	policy   OverflowPolicy
	onDrop   DropCallback[T]
	capacity int
}

func newCircularBuffer[T any](capacity int, opts *bufferOptions[T]) (*circularBuffer[T], error) {
	if capacity <= 0 {
		capacity = 1
	}

	var metrics *bufferMetrics
	if opts.metricsReg != nil {
		var err error
		metrics, err = newBufferMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "buffer", "newCircularBuffer", "metrics registration")
		}
	}

	return &circularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
		stats:    NewStatistics(),
		metrics:  metrics,
		policy:   opts.overflowPolicy,
		onDrop:   opts.dropCallback,
	}, nil
}

func (cb *circularBuffer[T]) Write(item T) error {
	cb.mu.Lock()

	if cb.closed {
		cb.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "Buffer", "Write", "buffer closed")
	}

	if cb.size == cb.capacity {
		cb.stats.drop()
		cb.metrics.recordDrop()

		if cb.policy == DropNewest {
			cb.mu.Unlock()
			cb.dropped(item)
			return errors.WrapTransient(
				fmt.Errorf("%w: buffer full at %d items", errors.ErrResourceExhausted, cb.capacity),
				"Buffer", "Write", "append item")
		}

		evicted := cb.items[cb.head]
		var zero T
		cb.items[cb.head] = zero
		cb.head = (cb.head + 1) % cb.capacity
		cb.size--
		defer cb.dropped(evicted)
	}

	cb.items[(cb.head+cb.size)%cb.capacity] = item
	cb.size++
	cb.stats.write(cb.size)
	cb.metrics.recordSize(cb.size, cb.capacity)
	cb.mu.Unlock()
	return nil
}

func (cb *circularBuffer[T]) dropped(item T) {
	if cb.onDrop != nil {
		cb.onDrop(item)
	}
}

func (cb *circularBuffer[T]) Read() (T, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	var zero T
	if cb.size == 0 {
		return zero, false
	}
	item := cb.pop()
	cb.metrics.recordSize(cb.size, cb.capacity)
	return item, true
}

func (cb *circularBuffer[T]) ReadBatch(max int) []T {
	if max <= 0 {
		return nil
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	n := min(max, cb.size)
	if n == 0 {
		return nil
	}
	out := make([]T, n)
	for i := range out {
		out[i] = cb.pop()
	}
	cb.metrics.recordSize(cb.size, cb.capacity)
	return out
}

// pop requires cb.mu and a non-empty buffer.
func (cb *circularBuffer[T]) pop() T {
	var zero T
	item := cb.items[cb.head]
	cb.items[cb.head] = zero
	cb.head = (cb.head + 1) % cb.capacity
	cb.size--
	cb.stats.read(cb.size)
	return item
}

func (cb *circularBuffer[T]) Size() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.size
}

func (cb *circularBuffer[T]) Capacity() int {
	return cb.capacity
}

func (cb *circularBuffer[T]) Stats() *Statistics {
	return cb.stats
}

func (cb *circularBuffer[T]) Close() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.closed = true
	return nil
}
