package point

import (
	"math"
	"strconv"
	"strings"
)

// Convert returns p converted to type t, keeping name and metadata.
func (p Point) Convert(t Type) Point {
	switch t {
	case TypeBool:
		return p.ToBool()
	case TypeInt:
		return p.ToInt()
	case TypeReal:
		return p.ToReal()
	case TypeDouble:
		return p.ToDouble()
	default:
		return p.ToString()
	}
}

func (p Point) retyped(t Type) Point {
	out := p
	out.Type = t
	out.b, out.i, out.r, out.d, out.s = false, 0, 0, 0, ""
	return out
}

// ToBool converts to Bool. Numbers are true when nonzero; strings must
// parse as a boolean or the result is an Invalid false.
func (p Point) ToBool() Point {
	if p.Type == TypeBool {
		return p
	}
	out := p.retyped(TypeBool)
	switch p.Type {
	case TypeString:
		v, err := strconv.ParseBool(strings.TrimSpace(p.s))
		if err != nil {
			out.Status = StatusInvalid
			return out
		}
		out.b = v
	default:
		out.b = p.Truthy()
	}
	return out
}

// ToInt converts to Int. Floating values are truncated toward zero; values
// out of the int64 range, NaN and unparsable strings yield an Invalid 0.
func (p Point) ToInt() Point {
	if p.Type == TypeInt {
		return p
	}
	out := p.retyped(TypeInt)
	switch p.Type {
	case TypeBool:
		if p.b {
			out.i = 1
		}
	case TypeReal, TypeDouble:
		f, _ := p.Float64()
		if math.IsNaN(f) || f >= math.MaxInt64 || f < math.MinInt64 {
			out.Status = StatusInvalid
			return out
		}
		out.i = int64(f)
	case TypeString:
		s := strings.TrimSpace(p.s)
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			out.i = v
			return out
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || f >= math.MaxInt64 || f < math.MinInt64 {
			out.Status = StatusInvalid
			return out
		}
		out.i = int64(f)
	}
	return out
}

// ToReal converts to Real (32-bit float).
func (p Point) ToReal() Point {
	if p.Type == TypeReal {
		return p
	}
	out := p.retyped(TypeReal)
	f, ok := p.Float64()
	if !ok {
		out.Status = StatusInvalid
		return out
	}
	out.r = float32(f)
	return out
}

// ToDouble converts to Double (64-bit float).
func (p Point) ToDouble() Point {
	if p.Type == TypeDouble {
		return p
	}
	out := p.retyped(TypeDouble)
	f, ok := p.Float64()
	if !ok {
		out.Status = StatusInvalid
		return out
	}
	out.d = f
	return out
}

// ToString converts to String using the canonical value formatting.
func (p Point) ToString() Point {
	if p.Type == TypeString {
		return p
	}
	out := p.retyped(TypeString)
	out.s = p.FormatValue()
	return out
}
