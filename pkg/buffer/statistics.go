package buffer

import (
	"sync"
	"sync/atomic"
)

// Statistics counts buffer traffic. All methods are safe for concurrent use.
type Statistics struct {
	writes atomic.Int64
	reads  atomic.Int64
	drops  atomic.Int64

	mu      sync.Mutex
	current int
	maxSize int
}

// NewStatistics returns zeroed statistics.
func NewStatistics() *Statistics {
	return &Statistics{}
}

func (s *Statistics) write(size int) {
	s.writes.Add(1)
	s.setSize(size)
}

func (s *Statistics) read(size int) {
	s.reads.Add(1)
	s.setSize(size)
}

func (s *Statistics) drop() {
	s.drops.Add(1)
}

func (s *Statistics) setSize(size int) {
	s.mu.Lock()
	s.current = size
	if size > s.maxSize {
		s.maxSize = size
	}
	s.mu.Unlock()
}

// Writes returns the number of accepted items.
func (s *Statistics) Writes() int64 { return s.writes.Load() }

// Reads returns the number of items read.
func (s *Statistics) Reads() int64 { return s.reads.Load() }

// Drops returns the number of items lost to the overflow policy.
func (s *Statistics) Drops() int64 { return s.drops.Load() }

// MaxSize returns the high-water mark.
func (s *Statistics) MaxSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxSize
}

// StatsSummary is a point-in-time copy of Statistics.
type StatsSummary struct {
	Writes      int64 `json:"writes"`
	Reads       int64 `json:"reads"`
	Drops       int64 `json:"drops"`
	CurrentSize int   `json:"current_size"`
	MaxSize     int   `json:"max_size"`
}

// Summary returns a snapshot.
func (s *Statistics) Summary() StatsSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSummary{
		Writes:      s.Writes(),
		Reads:       s.Reads(),
		Drops:       s.Drops(),
		CurrentSize: s.current,
		MaxSize:     s.maxSize,
	}
}
