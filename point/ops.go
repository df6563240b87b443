package point

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/c360/fr-service/errors"
)

// combined builds the result of a binary operation: name and origin come
// from the left operand, status is Invalid if either operand is, cause of
// transmission is Inf and the timestamp is the time of combination.
func combined(t Type, a, b Point) Point {
	out := Point{
		TxID:      a.TxID,
		Name:      a.Name,
		Type:      t,
		Status:    StatusOk,
		Cot:       CotInf,
		Timestamp: time.Now(),
	}
	if a.Status != StatusOk || b.Status != StatusOk {
		out.Status = StatusInvalid
	}
	return out
}

func mismatch(op string, a, b Point) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s %s with %s (%s, %s)", errors.ErrTypeMismatch, op, a.Type, b.Type, a.Name, b.Name),
		"point", op, "combine operands")
}

func unsupported(op string, a Point) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s not defined for %s (%s)", errors.ErrTypeMismatch, op, a.Type, a.Name),
		"point", op, "combine operands")
}

// Add sums two points of the same type. Bool uses logical or, String concatenates.
func Add(a, b Point) (Point, error) {
	if a.Type != b.Type {
		return Point{}, mismatch("Add", a, b)
	}
	out := combined(a.Type, a, b)
	switch a.Type {
	case TypeBool:
		out.b = a.b || b.b
	case TypeInt:
		out.i = a.i + b.i
	case TypeReal:
		out.r = a.r + b.r
	case TypeDouble:
		out.d = a.d + b.d
	case TypeString:
		out.s = a.s + b.s
	}
	return out, nil
}

// Sub subtracts b from a.
func Sub(a, b Point) (Point, error) {
	if a.Type != b.Type {
		return Point{}, mismatch("Sub", a, b)
	}
	out := combined(a.Type, a, b)
	switch a.Type {
	case TypeInt:
		out.i = a.i - b.i
	case TypeReal:
		out.r = a.r - b.r
	case TypeDouble:
		out.d = a.d - b.d
	default:
		return Point{}, unsupported("Sub", a)
	}
	return out, nil
}

// Mul multiplies two points. Bool uses logical and.
func Mul(a, b Point) (Point, error) {
	if a.Type != b.Type {
		return Point{}, mismatch("Mul", a, b)
	}
	out := combined(a.Type, a, b)
	switch a.Type {
	case TypeBool:
		out.b = a.b && b.b
	case TypeInt:
		out.i = a.i * b.i
	case TypeReal:
		out.r = a.r * b.r
	case TypeDouble:
		out.d = a.d * b.d
	default:
		return Point{}, unsupported("Mul", a)
	}
	return out, nil
}

// Div divides a by b. Integer division by zero is an error; floating
// division follows IEEE 754.
func Div(a, b Point) (Point, error) {
	if a.Type != b.Type {
		return Point{}, mismatch("Div", a, b)
	}
	out := combined(a.Type, a, b)
	switch a.Type {
	case TypeInt:
		if b.i == 0 {
			return Point{}, errors.WrapInvalid(
				fmt.Errorf("%w: integer division by zero (%s / %s)", errors.ErrInvalidData, a.Name, b.Name),
				"point", "Div", "divide")
		}
		out.i = a.i / b.i
	case TypeReal:
		out.r = a.r / b.r
	case TypeDouble:
		out.d = a.d / b.d
	default:
		return Point{}, unsupported("Div", a)
	}
	return out, nil
}

// Pow raises a to the power b.
func Pow(a, b Point) (Point, error) {
	if a.Type != b.Type {
		return Point{}, mismatch("Pow", a, b)
	}
	out := combined(a.Type, a, b)
	switch a.Type {
	case TypeInt:
		out.i = powInt(a.i, b.i)
	case TypeReal:
		out.r = float32(math.Pow(float64(a.r), float64(b.r)))
	case TypeDouble:
		out.d = math.Pow(a.d, b.d)
	default:
		return Point{}, unsupported("Pow", a)
	}
	return out, nil
}

func powInt(base, exp int64) int64 {
	if exp < 0 {
		return int64(math.Pow(float64(base), float64(exp)))
	}
	result := int64(1)
	for exp > 0 {
		if exp&1 == 1 {
			result *= base
		}
		base *= base
		exp >>= 1
	}
	return result
}

// BitAnd is logical and for Bool, bitwise and for Int.
func BitAnd(a, b Point) (Point, error) {
	if a.Type != b.Type {
		return Point{}, mismatch("BitAnd", a, b)
	}
	out := combined(a.Type, a, b)
	switch a.Type {
	case TypeBool:
		out.b = a.b && b.b
	case TypeInt:
		out.i = a.i & b.i
	default:
		return Point{}, unsupported("BitAnd", a)
	}
	return out, nil
}

// BitOr is logical or for Bool, bitwise or for Int.
func BitOr(a, b Point) (Point, error) {
	if a.Type != b.Type {
		return Point{}, mismatch("BitOr", a, b)
	}
	out := combined(a.Type, a, b)
	switch a.Type {
	case TypeBool:
		out.b = a.b || b.b
	case TypeInt:
		out.i = a.i | b.i
	default:
		return Point{}, unsupported("BitOr", a)
	}
	return out, nil
}

// BitXor is logical xor for Bool, bitwise xor for Int.
func BitXor(a, b Point) (Point, error) {
	if a.Type != b.Type {
		return Point{}, mismatch("BitXor", a, b)
	}
	out := combined(a.Type, a, b)
	switch a.Type {
	case TypeBool:
		out.b = a.b != b.b
	case TypeInt:
		out.i = a.i ^ b.i
	default:
		return Point{}, unsupported("BitXor", a)
	}
	return out, nil
}

// BitNot is logical not for Bool, bitwise complement for Int.
func BitNot(a Point) (Point, error) {
	out := combined(a.Type, a, a)
	switch a.Type {
	case TypeBool:
		out.b = !a.b
	case TypeInt:
		out.i = ^a.i
	default:
		return Point{}, unsupported("BitNot", a)
	}
	return out, nil
}

// Neg negates a numeric point.
func Neg(a Point) (Point, error) {
	out := combined(a.Type, a, a)
	switch a.Type {
	case TypeInt:
		out.i = -a.i
	case TypeReal:
		out.r = -a.r
	case TypeDouble:
		out.d = -a.d
	default:
		return Point{}, unsupported("Neg", a)
	}
	return out, nil
}

// compare returns -1, 0 or 1. Floating values use native comparison.
func compare(op string, a, b Point) (int, error) {
	if a.Type != b.Type {
		return 0, mismatch(op, a, b)
	}
	switch a.Type {
	case TypeBool:
		switch {
		case a.b == b.b:
			return 0, nil
		case b.b:
			return -1, nil
		default:
			return 1, nil
		}
	case TypeInt:
		return cmp3(a.i < b.i, a.i > b.i), nil
	case TypeReal:
		return cmp3(a.r < b.r, a.r > b.r), nil
	case TypeDouble:
		return cmp3(a.d < b.d, a.d > b.d), nil
	default:
		return strings.Compare(a.s, b.s), nil
	}
}

func cmp3(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	default:
		return 0
	}
}

func comparison(op string, a, b Point, pred func(c int) bool) (Point, error) {
	c, err := compare(op, a, b)
	if err != nil {
		return Point{}, err
	}
	out := combined(TypeBool, a, b)
	out.b = pred(c)
	return out, nil
}

// Ge reports a >= b as a Bool point.
func Ge(a, b Point) (Point, error) {
	return comparison("Ge", a, b, func(c int) bool { return c >= 0 })
}

// Gt reports a > b as a Bool point.
func Gt(a, b Point) (Point, error) {
	return comparison("Gt", a, b, func(c int) bool { return c > 0 })
}

// Le reports a <= b as a Bool point.
func Le(a, b Point) (Point, error) {
	return comparison("Le", a, b, func(c int) bool { return c <= 0 })
}

// Lt reports a < b as a Bool point.
func Lt(a, b Point) (Point, error) {
	return comparison("Lt", a, b, func(c int) bool { return c < 0 })
}

// Eq reports a == b as a Bool point.
func Eq(a, b Point) (Point, error) {
	return comparison("Eq", a, b, func(c int) bool { return c == 0 })
}

// Ne reports a != b as a Bool point.
func Ne(a, b Point) (Point, error) {
	return comparison("Ne", a, b, func(c int) bool { return c != 0 })
}

// Max returns the greater operand, re-stamped as a combination.
func Max(a, b Point) (Point, error) {
	c, err := compare("Max", a, b)
	if err != nil {
		return Point{}, err
	}
	pick := a
	if c < 0 {
		pick = b
	}
	return restamp(pick, a, b), nil
}

// Min returns the smaller operand, re-stamped as a combination.
func Min(a, b Point) (Point, error) {
	c, err := compare("Min", a, b)
	if err != nil {
		return Point{}, err
	}
	pick := a
	if c > 0 {
		pick = b
	}
	return restamp(pick, a, b), nil
}

func restamp(v, a, b Point) Point {
	out := combined(v.Type, a, b)
	out.b, out.i, out.r, out.d, out.s = v.b, v.i, v.r, v.d, v.s
	return out
}
