// Package fn implements the task evaluation graph: an arena of operator
// nodes addressed by NodeID, built from fnconfig trees and evaluated by
// pulling roots.
//
// A Graph is owned by a single goroutine. Leaves are updated with Update,
// roots are evaluated with Pull or PullAll. Within one evaluation pass every
// node runs at most once, so a variable shared by several parents is
// computed a single time and stateful operators below it advance once.
package fn

import (
	"fmt"
	"sort"

	"github.com/c360/fr-service/errors"
	"github.com/c360/fr-service/point"
)

// NodeID addresses a node inside its Graph.
type NodeID int

// NoNode marks an absent optional input.
const NoNode NodeID = -1

// Node is the contract every operator implements.
type Node interface {
	// ID returns the arena index of the node.
	ID() NodeID
	// Kind returns the operator name, for example "Add" or "Input".
	Kind() string
	// Inputs returns the direct dependencies of the node.
	Inputs() []NodeID
	// Out computes the node's value, pulling its inputs through ev.
	// ok is false when there is no value this pass.
	Out(ev *Eval) (p point.Point, ok bool, err error)
	// Reset restores the node's own state to its construction-time
	// defaults. Children are reset by the Graph.
	Reset()
}

type memoState uint8

const (
	memoEmpty memoState = iota
	memoRunning
	memoDone
)

type memo struct {
	pass  uint64
	state memoState
	p     point.Point
	ok    bool
	err   error
}

// Graph is an arena of nodes. It is not safe for concurrent use.
type Graph struct {
	nodes  []Node
	memo   []memo
	leaves map[string]NodeID
	vars   map[string]NodeID
	pass   uint64
	// under caches the leaves each node depends on.
	under map[NodeID][]NodeID
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		leaves: make(map[string]NodeID),
		vars:   make(map[string]NodeID),
		under:  make(map[NodeID][]NodeID),
	}
}

// nextID is the id the next added node receives.
func (g *Graph) nextID() NodeID {
	return NodeID(len(g.nodes))
}

// add appends n, which must have been created with id nextID().
func (g *Graph) add(n Node) NodeID {
	g.nodes = append(g.nodes, n)
	g.memo = append(g.memo, memo{})
	return n.ID()
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Node returns the node with the given id.
func (g *Graph) Node(id NodeID) (Node, bool) {
	if id < 0 || int(id) >= len(g.nodes) {
		return nil, false
	}
	return g.nodes[id], true
}

// Var returns the node registered under a variable name.
func (g *Graph) Var(name string) (NodeID, bool) {
	id, ok := g.vars[name]
	return id, ok
}

// Leaf returns the leaf bound to a point path.
func (g *Graph) Leaf(name string) (NodeID, bool) {
	id, ok := g.leaves[name]
	return id, ok
}

// Leaves returns every leaf point path, sorted.
func (g *Graph) Leaves() []string {
	names := make([]string, 0, len(g.leaves))
	for name := range g.leaves {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Update delivers a point to the leaf bound to p.Name. It reports false
// when no leaf listens to that path.
func (g *Graph) Update(p point.Point) bool {
	id, ok := g.leaves[p.Name]
	if !ok {
		return false
	}
	g.nodes[id].(*inputNode).set(p)
	return true
}

// Inputs returns the point paths root transitively depends on, sorted and
// without duplicates.
func (g *Graph) Inputs(root NodeID) []string {
	leaves := g.leavesUnder(root)
	names := make(map[string]bool, len(leaves))
	for _, id := range leaves {
		names[g.nodes[id].(*inputNode).path] = true
	}

	out := make([]string, 0, len(names))
	for name := range names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// leavesUnder returns the leaf nodes root transitively depends on. Node
// inputs are fixed at construction, so the result is cached.
func (g *Graph) leavesUnder(root NodeID) []NodeID {
	if cached, ok := g.under[root]; ok {
		return cached
	}
	seen := make(map[NodeID]bool)
	var out []NodeID
	var walk func(id NodeID)
	walk = func(id NodeID) {
		if id == NoNode || seen[id] {
			return
		}
		seen[id] = true
		n := g.nodes[id]
		if _, ok := n.(*inputNode); ok {
			out = append(out, id)
			return
		}
		for _, in := range n.Inputs() {
			walk(in)
		}
	}
	walk(root)
	g.under[root] = out
	return out
}

// generation sums the delivery counters of the leaves under id. It changes
// whenever any of those leaves receives a point.
func (g *Graph) generation(id NodeID) uint64 {
	var sum uint64
	for _, leaf := range g.leavesUnder(id) {
		sum += g.nodes[leaf].(*inputNode).gen
	}
	return sum
}

// Reset resets every node exactly once.
func (g *Graph) Reset() {
	for _, n := range g.nodes {
		n.Reset()
	}
	for i := range g.memo {
		g.memo[i] = memo{}
	}
}

// Pull evaluates root in a fresh pass.
func (g *Graph) Pull(root NodeID) (point.Point, bool, error) {
	return g.NewEval().Pull(root)
}

// Result is the outcome of pulling one root.
type Result struct {
	Root  NodeID
	Point point.Point
	OK    bool
	Err   error
}

// PullAll evaluates roots in order within one shared pass. An error on one
// root does not stop the others.
func (g *Graph) PullAll(roots []NodeID) []Result {
	ev := g.NewEval()
	results := make([]Result, len(roots))
	for i, root := range roots {
		p, ok, err := ev.Pull(root)
		results[i] = Result{Root: root, Point: p, OK: ok, Err: err}
	}
	return results
}

// NewEval starts a new evaluation pass.
func (g *Graph) NewEval() *Eval {
	g.pass++
	return &Eval{g: g, pass: g.pass}
}

// Eval is one evaluation pass. Node results are memoized for the lifetime
// of the pass.
type Eval struct {
	g    *Graph
	pass uint64
}

// Pull returns the value of node id, computing it at most once per pass.
func (ev *Eval) Pull(id NodeID) (point.Point, bool, error) {
	if id < 0 || int(id) >= len(ev.g.nodes) {
		return point.Point{}, false, errors.WrapInvalid(
			fmt.Errorf("%w: node %d", errors.ErrMissingInput, id), "fn", "Pull", "resolve node")
	}
	m := &ev.g.memo[id]
	if m.pass == ev.pass {
		switch m.state {
		case memoDone:
			return m.p, m.ok, m.err
		case memoRunning:
			return point.Point{}, false, errors.WrapInvalid(
				fmt.Errorf("%w: cycle through node %d", errors.ErrInvalidConfig, id), "fn", "Pull", "evaluate node")
		}
	}
	m.pass, m.state = ev.pass, memoRunning

	p, ok, err := ev.g.nodes[id].Out(ev)
	if err != nil {
		ok = false
	}

	m = &ev.g.memo[id]
	m.state, m.p, m.ok, m.err = memoDone, p, ok, err
	return p, ok, err
}

// pullAll pulls every id. It stops at the first error; ok is false when any
// input had no value, after all inputs have been pulled.
func (ev *Eval) pullAll(ids []NodeID) ([]point.Point, bool, error) {
	out := make([]point.Point, len(ids))
	all := true
	for i, id := range ids {
		p, ok, err := ev.Pull(id)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			all = false
		}
		out[i] = p
	}
	return out, all, nil
}

// pullOptional pulls id when present. present is false for NoNode.
func (ev *Eval) pullOptional(id NodeID) (p point.Point, present, ok bool, err error) {
	if id == NoNode {
		return point.Point{}, false, false, nil
	}
	p, ok, err = ev.Pull(id)
	return p, true, ok, err
}
