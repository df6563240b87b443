package fn

import (
	"fmt"

	"github.com/c360/fr-service/errors"
	"github.com/c360/fr-service/point"
)

type binaryOp func(a, b point.Point) (point.Point, error)

// foldNode left-folds a binary operation over its inputs: Add, Sub, Mul,
// Div, BitAnd, BitOr, BitXor, Max and Min.
type foldNode struct {
	base
	inputs []NodeID
	op     binaryOp
	clock  Clock
}

func (n *foldNode) Inputs() []NodeID { return n.inputs }

func (n *foldNode) Out(ev *Eval) (point.Point, bool, error) {
	values, ok, err := ev.pullAll(n.inputs)
	if err != nil || !ok {
		return point.Point{}, ok, err
	}
	acc := values[0]
	for _, v := range values[1:] {
		if acc, err = n.op(acc, v); err != nil {
			return point.Point{}, false, errors.Wrap(err, "fn", n.label(), "fold inputs")
		}
	}
	return acc.WithTimestamp(n.clock.Now()), true, nil
}

func (n *foldNode) Reset() {}

// binaryNode applies an operation to exactly two inputs: Pow and the
// comparisons.
type binaryNode struct {
	base
	left, right NodeID
	op          binaryOp
	clock       Clock
}

func (n *binaryNode) Inputs() []NodeID { return []NodeID{n.left, n.right} }

func (n *binaryNode) Out(ev *Eval) (point.Point, bool, error) {
	values, ok, err := ev.pullAll([]NodeID{n.left, n.right})
	if err != nil || !ok {
		return point.Point{}, ok, err
	}
	out, err := n.op(values[0], values[1])
	if err != nil {
		return point.Point{}, false, errors.Wrap(err, "fn", n.label(), "apply operator")
	}
	return out.WithTimestamp(n.clock.Now()), true, nil
}

func (n *binaryNode) Reset() {}

type unaryOp func(a point.Point) (point.Point, error)

// unaryNode applies an operation to one input: BitNot (logical not for
// Bool, bitwise not for Int) and Neg.
type unaryNode struct {
	base
	input NodeID
	op    unaryOp
	clock Clock
}

func (n *unaryNode) Inputs() []NodeID { return []NodeID{n.input} }

func (n *unaryNode) Out(ev *Eval) (point.Point, bool, error) {
	p, ok, err := ev.Pull(n.input)
	if err != nil || !ok {
		return point.Point{}, ok, err
	}
	out, err := n.op(p)
	if err != nil {
		return point.Point{}, false, errors.Wrap(err, "fn", n.label(), "apply operator")
	}
	return out.WithTimestamp(n.clock.Now()), true, nil
}

func (n *unaryNode) Reset() {}

var foldOps = map[string]binaryOp{
	"Add":    point.Add,
	"Sub":    point.Sub,
	"Mul":    point.Mul,
	"Div":    point.Div,
	"BitAnd": point.BitAnd,
	"BitOr":  point.BitOr,
	"BitXor": point.BitXor,
	"Max":    point.Max,
	"Min":    point.Min,
}

var binaryOps = map[string]binaryOp{
	"Pow": point.Pow,
	"Ge":  point.Ge,
	"Gt":  point.Gt,
	"Le":  point.Le,
	"Lt":  point.Lt,
	"Eq":  point.Eq,
	"Ne":  point.Ne,
}

var unaryOps = map[string]unaryOp{
	"BitNot": point.BitNot,
	"Neg":    point.Neg,
}

var conversions = map[string]point.Type{
	"ToBool":   point.TypeBool,
	"ToInt":    point.TypeInt,
	"ToReal":   point.TypeReal,
	"ToDouble": point.TypeDouble,
	"ToString": point.TypeString,
}

func buildFold(c *call) (Node, error) {
	ins, err := c.all()
	if err != nil {
		return nil, err
	}
	if len(ins) == 0 {
		return nil, c.missing("at least one input")
	}
	return &foldNode{base: c.base(), inputs: ins, op: foldOps[c.kind], clock: c.b.clock}, nil
}

func buildBinary(c *call) (Node, error) {
	ins, err := c.all()
	if err != nil {
		return nil, err
	}
	if len(ins) != 2 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s takes two inputs, got %d", errors.ErrMissingInput, c.kind, len(ins)),
			"fn", "build", c.kind)
	}
	return &binaryNode{
		base:  c.base(),
		left:  ins[0],
		right: ins[1],
		op:    binaryOps[c.kind],
		clock: c.b.clock,
	}, nil
}

func buildUnary(c *call) (Node, error) {
	in, err := c.required("input")
	if err != nil {
		return nil, err
	}
	return &unaryNode{base: c.base(), input: in, op: unaryOps[c.kind], clock: c.b.clock}, nil
}

func buildConversion(c *call) (Node, error) {
	in, err := c.required("input")
	if err != nil {
		return nil, err
	}
	return &convertNode{base: c.base(), input: in, to: conversions[c.kind]}, nil
}
