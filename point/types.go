package point

import (
	"fmt"
	"strings"

	"github.com/c360/fr-service/errors"
)

// Type is the primitive carried by a Point.
type Type int

const (
	TypeBool Type = iota
	TypeInt
	TypeReal
	TypeDouble
	TypeString
)

// String returns the wire name of the type.
func (t Type) String() string {
	switch t {
	case TypeBool:
		return "Bool"
	case TypeInt:
		return "Int"
	case TypeReal:
		return "Real"
	case TypeDouble:
		return "Double"
	case TypeString:
		return "String"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// IsNumeric reports whether the type supports arithmetic.
func (t Type) IsNumeric() bool {
	return t == TypeInt || t == TypeReal || t == TypeDouble
}

// ParseType parses a type name case-insensitively. "float" is accepted as
// an alias of Double.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bool":
		return TypeBool, nil
	case "int":
		return TypeInt, nil
	case "real":
		return TypeReal, nil
	case "double", "float":
		return TypeDouble, nil
	case "string":
		return TypeString, nil
	default:
		return 0, errors.WrapInvalid(fmt.Errorf("%w: unknown point type %q", errors.ErrInvalidData, s),
			"point", "ParseType", "parse type")
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(b []byte) error {
	parsed, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Status is the quality of a point value.
type Status int

const (
	StatusOk      Status = 0
	StatusInvalid Status = 10
)

// String returns a readable status name.
func (s Status) String() string {
	switch s {
	case StatusOk:
		return "Ok"
	case StatusInvalid:
		return "Invalid"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Cot is the cause-of-transmission bitmask.
type Cot uint8

const (
	CotInf    Cot = 0x02
	CotAct    Cot = 0x04
	CotActCon Cot = 0x08
	CotActErr Cot = 0x10
	CotReq    Cot = 0x20
	CotReqCon Cot = 0x40
	CotReqErr Cot = 0x80

	// CotRead is the set of causes travelling from a device to the server.
	CotRead = CotInf | CotActCon | CotActErr | CotReqCon | CotReqErr
	// CotWrite is the set of causes travelling from the server to a device.
	CotWrite = CotAct | CotReq
)

var cotNames = []struct {
	cot  Cot
	name string
}{
	{CotInf, "Inf"},
	{CotAct, "Act"},
	{CotActCon, "ActCon"},
	{CotActErr, "ActErr"},
	{CotReq, "Req"},
	{CotReqCon, "ReqCon"},
	{CotReqErr, "ReqErr"},
}

// IsRead reports whether every bit of c belongs to the read direction.
func (c Cot) IsRead() bool {
	return c != 0 && c&^CotRead == 0
}

// IsWrite reports whether every bit of c belongs to the write direction.
func (c Cot) IsWrite() bool {
	return c != 0 && c&^CotWrite == 0
}

// String returns the single cause name, or the names joined with "|".
func (c Cot) String() string {
	var parts []string
	for _, n := range cotNames {
		if c&n.cot != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("Cot(%#x)", uint8(c))
	}
	return strings.Join(parts, "|")
}

// ParseCot parses a cause name such as "ActCon", case-insensitively.
func ParseCot(s string) (Cot, error) {
	var result Cot
	for _, part := range strings.Split(s, "|") {
		part = strings.TrimSpace(part)
		found := false
		for _, n := range cotNames {
			if strings.EqualFold(part, n.name) {
				result |= n.cot
				found = true
				break
			}
		}
		if !found {
			return 0, errors.WrapInvalid(fmt.Errorf("%w: unknown cot %q", errors.ErrInvalidData, part),
				"point", "ParseCot", "parse cot")
		}
	}
	return result, nil
}
