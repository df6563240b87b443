package fn

import (
	"fmt"
	"sync"

	"github.com/c360/fr-service/errors"
	"github.com/c360/fr-service/point"
)

// RetainStore keeps values across restarts. Implementations must not block
// on I/O in Load or Store; persistent stores write behind.
type RetainStore interface {
	Load(key string) (point.Point, bool, error)
	Store(key string, p point.Point) error
}

// MemoryRetainStore is a RetainStore that lives as long as the process.
type MemoryRetainStore struct {
	mu     sync.RWMutex
	values map[string]point.Point
}

// NewMemoryRetainStore returns an empty store.
func NewMemoryRetainStore() *MemoryRetainStore {
	return &MemoryRetainStore{values: make(map[string]point.Point)}
}

// Load implements RetainStore.
func (s *MemoryRetainStore) Load(key string) (point.Point, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.values[key]
	return p, ok, nil
}

// Store implements RetainStore.
func (s *MemoryRetainStore) Store(key string, p point.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = p
	return nil
}

// retainNode persists its input under a key, or reads the persisted value
// back when it has no input.
type retainNode struct {
	base
	key    string
	input  NodeID
	enable NodeID
	def    NodeID
	store  RetainStore
	last   point.Point
	stored bool
}

func (n *retainNode) Inputs() []NodeID { return inputs(n.input, n.enable, n.def) }

func (n *retainNode) Out(ev *Eval) (point.Point, bool, error) {
	if n.input == NoNode {
		return n.read(ev)
	}

	enabled := true
	gate, present, ok, err := ev.pullOptional(n.enable)
	if err != nil {
		return point.Point{}, false, err
	}
	if present {
		if !ok {
			return point.Point{}, false, nil
		}
		enabled = gate.Truthy()
	}

	p, ok, err := ev.Pull(n.input)
	if err != nil || !ok {
		return point.Point{}, ok, err
	}
	if enabled && !(n.stored && n.last.Equal(p)) {
		if err := n.store.Store(n.key, p); err != nil {
			return point.Point{}, false, errors.Wrap(err, "fn", n.label(), "store "+n.key)
		}
		n.last, n.stored = p, true
	}
	return p, true, nil
}

func (n *retainNode) read(ev *Eval) (point.Point, bool, error) {
	p, found, err := n.store.Load(n.key)
	if err != nil {
		return point.Point{}, false, errors.Wrap(err, "fn", n.label(), "load "+n.key)
	}
	if found {
		return p, true, nil
	}
	def, present, ok, err := ev.pullOptional(n.def)
	if err != nil || !present || !ok {
		return point.Point{}, false, err
	}
	return def, true, nil
}

func (n *retainNode) Reset() {
	n.last, n.stored = point.Point{}, false
}

func buildRetain(c *call) (Node, error) {
	key, ok := c.option("key")
	if !ok || key == "" {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %s requires key", errors.ErrMissingOption, c.kind),
			"fn", "build", c.kind)
	}
	in, err := c.input("input")
	if err != nil {
		return nil, err
	}
	enable, err := c.input("enable")
	if err != nil {
		return nil, err
	}
	def, err := c.input("default")
	if err != nil {
		return nil, err
	}
	if in == NoNode && def == NoNode {
		return nil, c.missing("input or default")
	}
	return &retainNode{
		base:   c.base(),
		key:    key,
		input:  in,
		enable: enable,
		def:    def,
		store:  c.b.retain,
	}, nil
}
