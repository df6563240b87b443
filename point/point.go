// Package point implements the typed measurement values that flow through
// fr-service: a Point carries one Bool, Int, Real, Double or String value
// together with its origin, status, cause of transmission and timestamp.
//
// Points are immutable values. Conversions never fail: a value that cannot
// be represented in the target type yields a point with StatusInvalid.
// Combinators (Add, Ge, BitAnd, ...) require operands of the same type and
// return errors.ErrTypeMismatch otherwise.
package point

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Point is an immutable typed measurement.
type Point struct {
	TxID      int
	Name      string
	Type      Type
	Status    Status
	Cot       Cot
	Timestamp time.Time

	b bool
	i int64
	r float32
	d float64
	s string
}

func newPoint(t Type, name string) Point {
	return Point{
		Name:      name,
		Type:      t,
		Status:    StatusOk,
		Cot:       CotInf,
		Timestamp: time.Now(),
	}
}

// NewBool returns an Ok Bool point stamped now.
func NewBool(name string, v bool) Point {
	p := newPoint(TypeBool, name)
	p.b = v
	return p
}

// NewInt returns an Ok Int point stamped now.
func NewInt(name string, v int64) Point {
	p := newPoint(TypeInt, name)
	p.i = v
	return p
}

// NewReal returns an Ok Real point stamped now.
func NewReal(name string, v float32) Point {
	p := newPoint(TypeReal, name)
	p.r = v
	return p
}

// NewDouble returns an Ok Double point stamped now.
func NewDouble(name string, v float64) Point {
	p := newPoint(TypeDouble, name)
	p.d = v
	return p
}

// NewString returns an Ok String point stamped now.
func NewString(name string, v string) Point {
	p := newPoint(TypeString, name)
	p.s = v
	return p
}

// Zero returns the zero value of type t.
func Zero(t Type, name string) Point {
	return newPoint(t, name)
}

// FromFloat64 builds a point of type t from a float64. Int rounds to the
// nearest integer, Bool is true for nonzero values.
func FromFloat64(t Type, name string, v float64) Point {
	switch t {
	case TypeBool:
		return NewBool(name, v != 0)
	case TypeInt:
		return NewInt(name, int64(math.Round(v)))
	case TypeReal:
		return NewReal(name, float32(v))
	case TypeString:
		return NewString(name, strconv.FormatFloat(v, 'f', -1, 64))
	default:
		return NewDouble(name, v)
	}
}

// WithTxID returns a copy with the producer id set.
func (p Point) WithTxID(txID int) Point {
	p.TxID = txID
	return p
}

// WithName returns a copy with the name set.
func (p Point) WithName(name string) Point {
	p.Name = name
	return p
}

// WithStatus returns a copy with the status set.
func (p Point) WithStatus(s Status) Point {
	p.Status = s
	return p
}

// WithCot returns a copy with the cause of transmission set.
func (p Point) WithCot(c Cot) Point {
	p.Cot = c
	return p
}

// WithTimestamp returns a copy with the timestamp set.
func (p Point) WithTimestamp(ts time.Time) Point {
	p.Timestamp = ts
	return p
}

// Bool returns the raw Bool value; false for other types.
func (p Point) Bool() bool { return p.b }

// Int returns the raw Int value; 0 for other types.
func (p Point) Int() int64 { return p.i }

// Real returns the raw Real value; 0 for other types.
func (p Point) Real() float32 { return p.r }

// Double returns the raw Double value; 0 for other types.
func (p Point) Double() float64 { return p.d }

// Str returns the raw String value; "" for other types.
func (p Point) Str() string { return p.s }

// Value returns the value as a Go primitive.
func (p Point) Value() any {
	switch p.Type {
	case TypeBool:
		return p.b
	case TypeInt:
		return p.i
	case TypeReal:
		return p.r
	case TypeDouble:
		return p.d
	default:
		return p.s
	}
}

// Float64 returns the numeric value widened to float64. Bool maps to 0/1,
// String is parsed and ok is false when it is not a number.
func (p Point) Float64() (float64, bool) {
	switch p.Type {
	case TypeBool:
		if p.b {
			return 1, true
		}
		return 0, true
	case TypeInt:
		return float64(p.i), true
	case TypeReal:
		return float64(p.r), true
	case TypeDouble:
		return p.d, true
	default:
		f, err := strconv.ParseFloat(strings.TrimSpace(p.s), 64)
		return f, err == nil
	}
}

// Truthy reports whether the value is nonzero, true, or a non-empty string.
func (p Point) Truthy() bool {
	switch p.Type {
	case TypeBool:
		return p.b
	case TypeInt:
		return p.i != 0
	case TypeReal:
		return p.r != 0
	case TypeDouble:
		return p.d != 0
	default:
		return p.s != ""
	}
}

// ValueEqual reports whether two points carry the same type and value.
func (p Point) ValueEqual(other Point) bool {
	if p.Type != other.Type {
		return false
	}
	switch p.Type {
	case TypeBool:
		return p.b == other.b
	case TypeInt:
		return p.i == other.i
	case TypeReal:
		return p.r == other.r
	case TypeDouble:
		return p.d == other.d
	default:
		return p.s == other.s
	}
}

// Equal reports value equality plus matching name and status.
func (p Point) Equal(other Point) bool {
	return p.ValueEqual(other) && p.Name == other.Name && p.Status == other.Status
}

// FormatValue renders the value without metadata.
func (p Point) FormatValue() string {
	switch p.Type {
	case TypeBool:
		return strconv.FormatBool(p.b)
	case TypeInt:
		return strconv.FormatInt(p.i, 10)
	case TypeReal:
		return strconv.FormatFloat(float64(p.r), 'f', -1, 32)
	case TypeDouble:
		return strconv.FormatFloat(p.d, 'f', -1, 64)
	default:
		return p.s
	}
}

// String implements fmt.Stringer.
func (p Point) String() string {
	return fmt.Sprintf("%s(%s=%s, %s, %s)", p.Type, p.Name, p.FormatValue(), p.Status, p.Cot)
}
