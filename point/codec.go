package point

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/c360/fr-service/errors"
	"github.com/c360/fr-service/pkg/timestamp"
)

// wirePoint is the JSON layout exchanged over NATS:
//
//	{"type":"Int","name":"/App/Load","value":42,"status":0,"cot":"Inf",
//	 "timestamp":"2024-03-01T10:00:00.25Z","tx_id":3}
type wirePoint struct {
	Type      string          `json:"type"`
	Name      string          `json:"name"`
	Value     json.RawMessage `json:"value"`
	Status    int             `json:"status"`
	Cot       string          `json:"cot,omitempty"`
	Timestamp any             `json:"timestamp,omitempty"`
	TxID      int             `json:"tx_id,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (p Point) MarshalJSON() ([]byte, error) {
	value, err := p.marshalValue()
	if err != nil {
		return nil, err
	}
	w := wirePoint{
		Type:   p.Type.String(),
		Name:   p.Name,
		Value:  value,
		Status: int(p.Status),
		TxID:   p.TxID,
	}
	if p.Cot != 0 {
		w.Cot = p.Cot.String()
	}
	if ts := timestamp.Format(p.Timestamp); ts != "" {
		w.Timestamp = ts
	}
	return json.Marshal(w)
}

func (p Point) marshalValue() ([]byte, error) {
	switch p.Type {
	case TypeReal:
		if math.IsNaN(float64(p.r)) || math.IsInf(float64(p.r), 0) {
			return nil, fmt.Errorf("point %s: real value %v is not representable in JSON", p.Name, p.r)
		}
	case TypeDouble:
		if math.IsNaN(p.d) || math.IsInf(p.d, 0) {
			return nil, fmt.Errorf("point %s: double value %v is not representable in JSON", p.Name, p.d)
		}
	}
	return json.Marshal(p.Value())
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Point) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var w wirePoint
	if err := dec.Decode(&w); err != nil {
		return errors.WrapInvalid(err, "point", "UnmarshalJSON", "decode point")
	}

	t, err := ParseType(w.Type)
	if err != nil {
		return err
	}

	out := Point{
		TxID:      w.TxID,
		Name:      w.Name,
		Type:      t,
		Status:    Status(w.Status),
		Cot:       CotInf,
		Timestamp: timestamp.Parse(w.Timestamp),
	}
	if w.Cot != "" {
		cot, err := ParseCot(w.Cot)
		if err != nil {
			return err
		}
		out.Cot = cot
	}

	if err := out.unmarshalValue(w.Value); err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidData, err),
			"point", "UnmarshalJSON", fmt.Sprintf("decode %s value of %s", t, w.Name))
	}

	*p = out
	return nil
}

func (p *Point) unmarshalValue(raw json.RawMessage) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing value")
	}
	switch p.Type {
	case TypeBool:
		return json.Unmarshal(raw, &p.b)
	case TypeInt:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return err
		}
		v, err := n.Int64()
		if err != nil {
			return err
		}
		p.i = v
		return nil
	case TypeReal:
		return json.Unmarshal(raw, &p.r)
	case TypeDouble:
		return json.Unmarshal(raw, &p.d)
	default:
		return json.Unmarshal(raw, &p.s)
	}
}

// Decode parses one JSON point.
func Decode(data []byte) (Point, error) {
	var p Point
	if err := json.Unmarshal(data, &p); err != nil {
		return Point{}, err
	}
	return p, nil
}

// Encode renders one JSON point.
func Encode(p Point) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, errors.WrapInvalid(err, "point", "Encode", "encode point")
	}
	return data, nil
}
