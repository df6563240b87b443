package fn

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/c360/fr-service/errors"
	"github.com/c360/fr-service/fnconfig"
	"github.com/c360/fr-service/point"
)

// thresholdNode holds the last emitted value until the input moves far
// enough from it.
//
// Without a factor a new value is emitted when |input-last| >= threshold.
// With a factor every evaluation adds |input-last|*factor to an integral and
// a new value is emitted once the integral reaches the threshold. Any
// emission clears the integral.
type thresholdNode struct {
	base
	input     NodeID
	threshold NodeID
	factor    NodeID
	last      point.Point
	has       bool
	integral  float64
}

func (n *thresholdNode) Inputs() []NodeID { return inputs(n.input, n.threshold, n.factor) }

func (n *thresholdNode) Out(ev *Eval) (point.Point, bool, error) {
	values, ok, err := ev.pullAll(inputs(n.input, n.threshold))
	if err != nil || !ok {
		return point.Point{}, ok, err
	}
	p, thr := values[0], values[1]
	threshold, _ := thr.Float64()

	factor, useFactor, factorOK, err := ev.pullOptional(n.factor)
	if err != nil {
		return point.Point{}, false, err
	}
	if useFactor && !factorOK {
		return point.Point{}, false, nil
	}

	if !p.Type.IsNumeric() {
		return point.Point{}, false, errors.WrapInvalid(
			fmt.Errorf("%w: Threshold over %s", errors.ErrTypeMismatch, p.Type), "fn", n.label(), "filter")
	}
	if !n.has {
		n.last, n.has = p, true
		return n.last, true, nil
	}

	v, _ := p.Float64()
	last, _ := n.last.Float64()
	delta := math.Abs(v - last)

	emit := delta >= threshold
	if !emit && useFactor {
		f, _ := factor.Float64()
		n.integral += delta * f
		emit = n.integral >= threshold
	}
	if emit {
		n.last = p
		n.integral = 0
	}
	return n.last, true, nil
}

func (n *thresholdNode) Reset() {
	n.last, n.has, n.integral = point.Point{}, false, 0
}

func buildThreshold(c *call) (Node, error) {
	in, err := c.required("input")
	if err != nil {
		return nil, err
	}
	threshold, err := c.required("threshold")
	if err != nil {
		return nil, err
	}
	factor, err := c.input("factor")
	if err != nil {
		return nil, err
	}
	return &thresholdNode{base: c.base(), input: in, threshold: threshold, factor: factor}, nil
}

// filterNode passes its input while the pass gate is truthy and holds the
// last passed value otherwise. Before anything has passed it yields the
// default, or the zero value of the input type.
type filterNode struct {
	base
	input NodeID
	pass  NodeID
	def   NodeID
	last  point.Point
	has   bool
}

func (n *filterNode) Inputs() []NodeID { return inputs(n.input, n.pass, n.def) }

func (n *filterNode) Out(ev *Eval) (point.Point, bool, error) {
	gate, ok, err := ev.Pull(n.pass)
	if err != nil || !ok {
		return point.Point{}, ok, err
	}
	p, ok, err := ev.Pull(n.input)
	if err != nil || !ok {
		return point.Point{}, ok, err
	}
	def, hasDef, defOK, err := ev.pullOptional(n.def)
	if err != nil {
		return point.Point{}, false, err
	}

	if gate.Truthy() {
		n.last, n.has = p, true
		return p, true, nil
	}
	if n.has {
		return n.last, true, nil
	}
	if hasDef && defOK {
		return def.Convert(p.Type).WithName(p.Name), true, nil
	}
	return point.Zero(p.Type, p.Name), true, nil
}

func (n *filterNode) Reset() {
	n.last, n.has = point.Point{}, false
}

func buildFilter(c *call) (Node, error) {
	in, err := c.required("input")
	if err != nil {
		return nil, err
	}
	pass, err := c.input("pass")
	if err != nil {
		return nil, err
	}
	if pass == NoNode {
		if pass, err = c.input("gate"); err != nil {
			return nil, err
		}
	}
	if pass == NoNode {
		return nil, c.missing("pass")
	}
	def, err := c.input("default")
	if err != nil {
		return nil, err
	}
	return &filterNode{base: c.base(), input: in, pass: pass, def: def}, nil
}

// piecewiseNode maps its input through a piecewise linear table,
// extrapolating with the slope of the first or last segment outside the
// table domain. The result keeps the input type.
type piecewiseNode struct {
	base
	input NodeID
	xs    []float64
	ys    []float64
}

func (n *piecewiseNode) Inputs() []NodeID { return []NodeID{n.input} }

func (n *piecewiseNode) Out(ev *Eval) (point.Point, bool, error) {
	p, ok, err := ev.Pull(n.input)
	if err != nil || !ok {
		return point.Point{}, ok, err
	}
	if !p.Type.IsNumeric() {
		return point.Point{}, false, errors.WrapInvalid(
			fmt.Errorf("%w: PiecewiseLineApprox over %s", errors.ErrTypeMismatch, p.Type), "fn", n.label(), "approximate")
	}
	x, _ := p.Float64()
	y := interpolate(n.xs, n.ys, x)
	out := point.FromFloat64(p.Type, p.Name, y)
	return out.WithStatus(p.Status).WithCot(p.Cot).WithTimestamp(p.Timestamp).WithTxID(p.TxID), true, nil
}

func (n *piecewiseNode) Reset() {}

// interpolate requires len(xs) >= 2 with xs strictly increasing.
func interpolate(xs, ys []float64, x float64) float64 {
	// segment i spans xs[i-1]..xs[i]
	i := sort.SearchFloat64s(xs, x)
	switch {
	case i == 0:
		i = 1
	case i >= len(xs):
		i = len(xs) - 1
	}
	x0, x1, y0, y1 := xs[i-1], xs[i], ys[i-1], ys[i]
	return y0 + (x-x0)*(y1-y0)/(x1-x0)
}

// parseTable reads the ordered {x: y} table, sorting it by x.
func parseTable(pairs []fnconfig.Pair) ([]float64, []float64, error) {
	type row struct{ x, y float64 }
	rows := make([]row, 0, len(pairs))
	for _, pair := range pairs {
		x, err := strconv.ParseFloat(strings.TrimSpace(pair.Key), 64)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: key %q is not a number", errors.ErrInvalidTable, pair.Key)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(pair.Value), 64)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: value %q is not a number", errors.ErrInvalidTable, pair.Value)
		}
		rows = append(rows, row{x, y})
	}
	if len(rows) < 2 {
		return nil, nil, fmt.Errorf("%w: need at least two points, got %d", errors.ErrInvalidTable, len(rows))
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].x < rows[j].x })

	xs := make([]float64, len(rows))
	ys := make([]float64, len(rows))
	for i, r := range rows {
		if i > 0 && r.x == rows[i-1].x {
			return nil, nil, fmt.Errorf("%w: duplicate key %v", errors.ErrInvalidTable, r.x)
		}
		xs[i], ys[i] = r.x, r.y
	}
	return xs, ys, nil
}

func buildPiecewise(c *call) (Node, error) {
	in, err := c.required("input")
	if err != nil {
		return nil, err
	}
	opt, ok := c.conf.Option("table")
	if !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %s requires table", errors.ErrMissingOption, c.kind),
			"fn", "build", c.kind)
	}
	xs, ys, err := parseTable(opt.Pairs)
	if err != nil {
		return nil, errors.WrapInvalid(err, "fn", "build", c.kind)
	}
	return &piecewiseNode{base: c.base(), input: in, xs: xs, ys: ys}, nil
}
