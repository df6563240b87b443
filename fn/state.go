package fn

import (
	"fmt"
	"log/slog"

	"github.com/c360/fr-service/errors"
	"github.com/c360/fr-service/point"
)

// countNode counts rising edges of its input, starting from a seed. A seed
// that has no value yet is added to the count once it arrives.
type countNode struct {
	base
	input   NodeID
	initial NodeID
	seeded  bool
	count   int64
	prev    bool
}

func (n *countNode) Inputs() []NodeID { return inputs(n.input, n.initial) }

func (n *countNode) Out(ev *Eval) (point.Point, bool, error) {
	if !n.seeded {
		seed, present, ok, err := ev.pullOptional(n.initial)
		if err != nil {
			return point.Point{}, false, err
		}
		switch {
		case !present:
			n.seeded = true
		case ok:
			n.count += seed.ToInt().Int()
			n.seeded = true
		}
	}

	p, ok, err := ev.Pull(n.input)
	if err != nil || !ok {
		return point.Point{}, ok, err
	}
	cur := p.Truthy()
	if cur && !n.prev {
		n.count++
	}
	n.prev = cur

	out := point.NewInt(p.Name, n.count).WithStatus(p.Status).WithTimestamp(p.Timestamp).WithTxID(p.TxID)
	return out, true, nil
}

func (n *countNode) Reset() {
	n.seeded, n.count, n.prev = false, 0, false
}

func buildCount(c *call) (Node, error) {
	in, err := c.required("input")
	if err != nil {
		return nil, err
	}
	initial, err := c.input("initial")
	if err != nil {
		return nil, err
	}
	return &countNode{base: c.base(), input: in, initial: initial}, nil
}

// accNode keeps a running sum of the values delivered to its input. A value
// is added once per delivery to a leaf under the input: repeated pulls
// without a new point do not accumulate again. The seed is added when it
// first has a value.
type accNode struct {
	base
	input   NodeID
	initial NodeID
	acc     point.Point
	has     bool
	seeded  bool
	lastGen uint64
	seen    bool
}

func (n *accNode) Inputs() []NodeID { return inputs(n.input, n.initial) }

func (n *accNode) Out(ev *Eval) (point.Point, bool, error) {
	p, ok, err := ev.Pull(n.input)
	if err != nil || !ok {
		return point.Point{}, ok, err
	}

	typ := p.Type
	switch typ {
	case point.TypeBool:
		typ = point.TypeInt
	case point.TypeString:
		return point.Point{}, false, errors.WrapInvalid(
			fmt.Errorf("%w: Acc over %s", errors.ErrTypeMismatch, p.Type), "fn", n.label(), "accumulate")
	}

	if !n.has {
		n.acc, n.has = point.Zero(typ, p.Name), true
	}
	if !n.seeded {
		seed, present, ok, err := ev.pullOptional(n.initial)
		if err != nil {
			return point.Point{}, false, err
		}
		switch {
		case !present:
			n.seeded = true
		case ok:
			if err := n.add(seed.Convert(typ).WithName(p.Name)); err != nil {
				return point.Point{}, false, err
			}
			n.seeded = true
		}
	}

	if gen := ev.g.generation(n.input); !n.seen || gen != n.lastGen {
		if err := n.add(p.Convert(typ)); err != nil {
			return point.Point{}, false, err
		}
		n.acc = n.acc.WithTimestamp(p.Timestamp).WithTxID(p.TxID)
		n.lastGen, n.seen = gen, true
	}
	return n.acc, true, nil
}

func (n *accNode) add(v point.Point) error {
	sum, err := point.Add(n.acc, v)
	if err != nil {
		return errors.Wrap(err, "fn", n.label(), "accumulate")
	}
	n.acc = sum
	return nil
}

func (n *accNode) Reset() {
	n.acc, n.has, n.seeded = point.Point{}, false, false
	n.lastGen, n.seen = 0, false
}

func buildAcc(c *call) (Node, error) {
	in, err := c.required("input")
	if err != nil {
		return nil, err
	}
	initial, err := c.input("initial")
	if err != nil {
		return nil, err
	}
	return &accNode{base: c.base(), input: in, initial: initial}, nil
}

// previousNode is a one-cycle delay line.
type previousNode struct {
	base
	input   NodeID
	initial NodeID
	held    point.Point
	has     bool
}

func (n *previousNode) Inputs() []NodeID { return inputs(n.input, n.initial) }

func (n *previousNode) Out(ev *Eval) (point.Point, bool, error) {
	p, ok, err := ev.Pull(n.input)
	if err != nil {
		return point.Point{}, false, err
	}

	out, has := n.held, n.has
	if !has {
		seed, present, seedOK, err := ev.pullOptional(n.initial)
		if err != nil {
			return point.Point{}, false, err
		}
		switch {
		case present && seedOK && ok:
			out, has = seed.Convert(p.Type).WithName(p.Name), true
		case present && seedOK:
			out, has = seed, true
		case ok:
			out, has = point.Zero(p.Type, p.Name), true
		}
	}

	if ok {
		n.held, n.has = p, true
	}
	return out, has, nil
}

func (n *previousNode) Reset() {
	n.held, n.has = point.Point{}, false
}

func buildPrevious(c *call) (Node, error) {
	in, err := c.required("input")
	if err != nil {
		return nil, err
	}
	initial, err := c.input("initial")
	if err != nil {
		return nil, err
	}
	return &previousNode{base: c.base(), input: in, initial: initial}, nil
}

// edgeNode detects a change of truthiness of its input in one direction.
type edgeNode struct {
	base
	input  NodeID
	rising bool
	prev   bool
}

func (n *edgeNode) Inputs() []NodeID { return []NodeID{n.input} }

func (n *edgeNode) Out(ev *Eval) (point.Point, bool, error) {
	p, ok, err := ev.Pull(n.input)
	if err != nil || !ok {
		return point.Point{}, ok, err
	}
	cur := p.Truthy()
	var edge bool
	if n.rising {
		edge = cur && !n.prev
	} else {
		edge = !cur && n.prev
	}
	n.prev = cur
	return point.NewBool(p.Name, edge).WithStatus(p.Status).WithCot(p.Cot).WithTimestamp(p.Timestamp).WithTxID(p.TxID), true, nil
}

func (n *edgeNode) Reset() {
	n.prev = false
}

func buildEdge(c *call) (Node, error) {
	in, err := c.required("input")
	if err != nil {
		return nil, err
	}
	return &edgeNode{base: c.base(), input: in, rising: c.kind == "RisingEdge"}, nil
}

// averageNode is the running mean of the input while enabled. Disabling it
// discards the accumulated values.
type averageNode struct {
	base
	input  NodeID
	enable NodeID
	sum    float64
	count  int
}

func (n *averageNode) Inputs() []NodeID { return inputs(n.input, n.enable) }

func (n *averageNode) Out(ev *Eval) (point.Point, bool, error) {
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

	if enabled {
		v, _ := p.Float64()
		n.sum += v
		n.count++
	} else {
		n.sum, n.count = 0, 0
	}
	avg := n.sum
	if n.count > 0 {
		avg = n.sum / float64(n.count)
	}
	return point.NewDouble(p.Name, avg).WithStatus(p.Status).WithCot(p.Cot).WithTimestamp(p.Timestamp).WithTxID(p.TxID), true, nil
}

func (n *averageNode) Reset() {
	n.sum, n.count = 0, 0
}

func buildAverage(c *call) (Node, error) {
	in, err := c.required("input")
	if err != nil {
		return nil, err
	}
	enable, err := c.input("enable")
	if err != nil {
		return nil, err
	}
	return &averageNode{base: c.base(), input: in, enable: enable}, nil
}

// smoothNode is exponential smoothing: value += (input - value) * factor.
// The first input seeds the value.
type smoothNode struct {
	base
	input  NodeID
	factor NodeID
	value  float64
	has    bool
}

func (n *smoothNode) Inputs() []NodeID { return []NodeID{n.input, n.factor} }

func (n *smoothNode) Out(ev *Eval) (point.Point, bool, error) {
	values, ok, err := ev.pullAll([]NodeID{n.factor, n.input})
	if err != nil || !ok {
		return point.Point{}, ok, err
	}
	factor, _ := values[0].Float64()
	p := values[1]
	if !p.Type.IsNumeric() {
		return point.Point{}, false, errors.WrapInvalid(
			fmt.Errorf("%w: Smooth over %s", errors.ErrTypeMismatch, p.Type), "fn", n.label(), "smooth")
	}

	v, _ := p.Float64()
	if !n.has {
		n.value, n.has = v, true
	} else {
		n.value += (v - n.value) * factor
	}
	out := point.FromFloat64(p.Type, p.Name, n.value)
	return out.WithStatus(p.Status).WithCot(p.Cot).WithTimestamp(p.Timestamp).WithTxID(p.TxID), true, nil
}

func (n *smoothNode) Reset() {
	n.value, n.has = 0, false
}

func buildSmooth(c *call) (Node, error) {
	in, err := c.required("input")
	if err != nil {
		return nil, err
	}
	factor, err := c.required("factor")
	if err != nil {
		return nil, err
	}
	return &smoothNode{base: c.base(), input: in, factor: factor}, nil
}

// isChangedNode reports whether any input value differs from the value it
// had on the previous evaluation. The first evaluation reports true.
type isChangedNode struct {
	base
	inputs []NodeID
	state  map[NodeID]point.Point
}

func (n *isChangedNode) Inputs() []NodeID { return n.inputs }

func (n *isChangedNode) Out(ev *Eval) (point.Point, bool, error) {
	values, ok, err := ev.pullAll(n.inputs)
	if err != nil || !ok {
		return point.Point{}, ok, err
	}
	changed := false
	for i, id := range n.inputs {
		prev, seen := n.state[id]
		if !seen || !prev.ValueEqual(values[i]) {
			changed = true
			n.state[id] = values[i]
		}
	}
	return point.NewBool(n.label(), changed), true, nil
}

func (n *isChangedNode) Reset() {
	n.state = make(map[NodeID]point.Point)
}

func buildIsChanged(c *call) (Node, error) {
	ins, err := c.all()
	if err != nil {
		return nil, err
	}
	if len(ins) == 0 {
		return nil, c.missing("at least one input")
	}
	return &isChangedNode{base: c.base(), inputs: ins, state: make(map[NodeID]point.Point)}, nil
}

// debugNode logs its inputs and passes the last one through.
type debugNode struct {
	base
	inputs []NodeID
	logger *slog.Logger
}

func (n *debugNode) Inputs() []NodeID { return n.inputs }

func (n *debugNode) Out(ev *Eval) (point.Point, bool, error) {
	values, ok, err := ev.pullAll(n.inputs)
	if err != nil {
		return point.Point{}, false, err
	}
	for i, v := range values {
		n.logger.Debug("Debug node input", "node", n.label(), "index", i, "point", v.String())
	}
	if !ok {
		return point.Point{}, false, nil
	}
	return values[len(values)-1], true, nil
}

func (n *debugNode) Reset() {}

func buildDebug(c *call) (Node, error) {
	ins, err := c.all()
	if err != nil {
		return nil, err
	}
	if len(ins) == 0 {
		return nil, c.missing("at least one input")
	}
	return &debugNode{base: c.base(), inputs: ins, logger: c.b.logger}, nil
}

// pointIDNode returns the catalog id of its input point.
type pointIDNode struct {
	base
	input   NodeID
	catalog *point.Catalog
}

func (n *pointIDNode) Inputs() []NodeID { return []NodeID{n.input} }

func (n *pointIDNode) Out(ev *Eval) (point.Point, bool, error) {
	p, ok, err := ev.Pull(n.input)
	if err != nil || !ok {
		return point.Point{}, ok, err
	}
	id, err := n.catalog.ID(p.Name)
	if err != nil {
		return point.Point{}, false, errors.Wrap(err, "fn", n.label(), "lookup point id")
	}
	return point.NewInt(p.Name, int64(id)).WithStatus(p.Status).WithTimestamp(p.Timestamp).WithTxID(p.TxID), true, nil
}

func (n *pointIDNode) Reset() {}

func buildPointID(c *call) (Node, error) {
	if c.b.catalog == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: PointId needs a point catalog", errors.ErrMissingConfig),
			"fn", "build", c.kind)
	}
	in, err := c.required("input")
	if err != nil {
		return nil, err
	}
	return &pointIDNode{base: c.base(), input: in, catalog: c.b.catalog}, nil
}
