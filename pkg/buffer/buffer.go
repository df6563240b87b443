// Package buffer provides a bounded, thread-safe FIFO with an overflow
// policy. fr-service uses it as the in-process queue behind Export
// destinations that are drained by another goroutine.
//
// Statistics are always collected; Prometheus metrics are optional via
// WithMetrics.
package buffer

// Buffer is a bounded FIFO of T.
type Buffer[T any] interface {
	// Write appends item. When the buffer is full the overflow policy
	// decides: DropOldest evicts the head and succeeds, DropNewest rejects
	// item with a transient errors.ErrResourceExhausted.
	Write(item T) error

	// Read removes the oldest item; false when empty.
	Read() (T, bool)

	// ReadBatch removes up to max items, oldest first.
	ReadBatch(max int) []T

	Size() int
	Capacity() int
	Stats() *Statistics

	// Close rejects further writes. Items already queued stay readable.
	Close() error
}

// OverflowPolicy selects what a full buffer does with a new item.
type OverflowPolicy int

const (
	// DropOldest evicts the oldest item to make room.
	DropOldest OverflowPolicy = iota
	// DropNewest rejects the new item.
	DropNewest
)

func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "DropOldest"
	case DropNewest:
		return "DropNewest"
	default:
		return "Unknown"
	}
}

// DropCallback receives every item lost to the overflow policy.
type DropCallback[T any] func(item T)

// NewCircularBuffer creates a buffer holding at most capacity items; a
// capacity below one is raised to one.
func NewCircularBuffer[T any](capacity int, options ...Option[T]) (Buffer[T], error) {
	return newCircularBuffer(capacity, applyOptions(options...))
}
