package point

import "strings"

// Address locates a point inside a device memory map.
type Address struct {
	Offset *int `yaml:"offset,omitempty" json:"offset,omitempty"`
	Bit    *int `yaml:"bit,omitempty" json:"bit,omitempty"`
}

// Filter is a protocol-level deadband applied before a point is published.
type Filter struct {
	Threshold float64  `yaml:"threshold" json:"threshold"`
	Factor    *float64 `yaml:"factor,omitempty" json:"factor,omitempty"`
}

// Config is the static descriptor of a point.
type Config struct {
	ID      int     `yaml:"id,omitempty" json:"id"`
	Name    string  `yaml:"-" json:"name"`
	Type    Type    `yaml:"type" json:"type"`
	History int     `yaml:"history,omitempty" json:"history,omitempty"`
	Alarm   *int    `yaml:"alarm,omitempty" json:"alarm,omitempty"`
	Address Address `yaml:"address,omitempty" json:"address,omitempty"`
	Filters *Filter `yaml:"filters,omitempty" json:"filters,omitempty"`
	Comment string  `yaml:"comment,omitempty" json:"comment,omitempty"`
}

// Retype returns p converted to the configured type and renamed to the
// configured name.
func (c Config) Retype(p Point) Point {
	return p.Convert(c.Type).WithName(c.Name)
}

// JoinName joins path segments with exactly one "/" between them and a
// leading "/". Empty segments are skipped.
//
//	JoinName("App", "/Task/", "Load") == "/App/Task/Load"
func JoinName(parts ...string) string {
	var b strings.Builder
	for _, part := range parts {
		part = strings.Trim(part, "/")
		if part == "" {
			continue
		}
		b.WriteByte('/')
		b.WriteString(part)
	}
	if b.Len() == 0 {
		return "/"
	}
	return b.String()
}
