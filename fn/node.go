package fn

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/c360/fr-service/errors"
	"github.com/c360/fr-service/point"
)

// Clock supplies wall-clock time to time-dependent operators.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the real-time Clock.
var SystemClock Clock = systemClock{}

// base carries the identity shared by all nodes.
type base struct {
	id   NodeID
	kind string
}

func (b base) ID() NodeID    { return b.id }
func (b base) Kind() string  { return b.kind }
func (b base) label() string { return b.kind + "#" + strconv.Itoa(int(b.id)) }

// inputs collects the present ids.
func inputs(ids ...NodeID) []NodeID {
	out := make([]NodeID, 0, len(ids))
	for _, id := range ids {
		if id != NoNode {
			out = append(out, id)
		}
	}
	return out
}

// inputNode is a leaf bound to a point path. Delivered points are converted
// to the declared type when the leaf is typed. gen counts deliveries and is
// never reset, so nodes comparing it across passes see every new point.
type inputNode struct {
	base
	path  string
	typ   point.Type
	typed bool
	value point.Point
	has   bool
	gen   uint64
}

func (n *inputNode) Inputs() []NodeID { return nil }

func (n *inputNode) set(p point.Point) {
	if n.typed && p.Type != n.typ {
		p = p.Convert(n.typ)
	}
	n.value, n.has = p, true
	n.gen++
}

func (n *inputNode) Out(*Eval) (point.Point, bool, error) {
	return n.value, n.has, nil
}

func (n *inputNode) Reset() {
	n.value, n.has = point.Point{}, false
}

// constNode holds a literal.
type constNode struct {
	base
	value point.Point
}

func (n *constNode) Inputs() []NodeID { return nil }

func (n *constNode) Out(*Eval) (point.Point, bool, error) {
	return n.value, true, nil
}

func (n *constNode) Reset() {}

// parseLiteral converts a configured literal into a point. An untyped
// literal is inferred as Bool, Int, Double or String in that order.
func parseLiteral(name, literal string, t point.Type, typed bool) (point.Point, error) {
	if !typed {
		trimmed := strings.TrimSpace(literal)
		switch strings.ToLower(trimmed) {
		case "true":
			return point.NewBool(name, true), nil
		case "false":
			return point.NewBool(name, false), nil
		}
		if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return point.NewInt(name, i), nil
		}
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return point.NewDouble(name, f), nil
		}
		return point.NewString(name, literal), nil
	}

	p := point.NewString(name, literal).Convert(t)
	if p.Status != point.StatusOk {
		return point.Point{}, errors.WrapInvalid(
			fmt.Errorf("%w: %q is not a valid %s", errors.ErrInvalidConfig, literal, t),
			"fn", "parseLiteral", "convert literal")
	}
	return p, nil
}

// varNode is a named shared sub-expression.
type varNode struct {
	base
	name  string
	input NodeID
}

func (n *varNode) Inputs() []NodeID { return []NodeID{n.input} }

func (n *varNode) Out(ev *Eval) (point.Point, bool, error) {
	return ev.Pull(n.input)
}

func (n *varNode) Reset() {}

// convertNode converts its input to a fixed type. It backs ToBool, ToInt,
// ToReal, ToDouble, ToString and typed fn declarations.
type convertNode struct {
	base
	input NodeID
	to    point.Type
}

func (n *convertNode) Inputs() []NodeID { return []NodeID{n.input} }

func (n *convertNode) Out(ev *Eval) (point.Point, bool, error) {
	p, ok, err := ev.Pull(n.input)
	if err != nil || !ok {
		return point.Point{}, ok, err
	}
	return p.Convert(n.to), true, nil
}

func (n *convertNode) Reset() {}
