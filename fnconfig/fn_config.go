// Package fnconfig parses the declarative task configuration into FnConfig
// trees. Keys of YAML mappings are keywords ("input1 fn Add",
// "let Var1", "point real /App/Load", "const int 5"); keys that are not
// keywords are operator options. Mapping order is preserved so that
// variables are declared before they are referenced.
package fnconfig

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/fr-service/errors"
	"github.com/c360/fr-service/point"
)

// FnConfig is one parsed, not yet built graph node.
type FnConfig struct {
	Kind Kind
	// Name is the operator name for fn and metric, the variable name for
	// let, the point path for point and the literal for const.
	Name  string
	Type  point.Type
	Typed bool
	// Ref marks a let node that refers to a variable declared elsewhere.
	Ref     bool
	Inputs  []Input
	Options []Option
}

// Input is a named sub-node.
type Input struct {
	Name string
	Conf *FnConfig
}

// Option is a free-form operator parameter. Scalar options carry Value;
// mapping options such as interpolation tables carry ordered Pairs.
type Option struct {
	Key   string
	Value string
	Pairs []Pair
}

// Pair is one entry of a mapping option.
type Pair struct {
	Key   string
	Value string
}

// Input returns the named input.
func (c *FnConfig) Input(name string) (*FnConfig, bool) {
	for _, in := range c.Inputs {
		if in.Name == name {
			return in.Conf, true
		}
	}
	return nil, false
}

// Option returns the named option.
func (c *FnConfig) Option(key string) (Option, bool) {
	for _, opt := range c.Options {
		if opt.Key == key {
			return opt, true
		}
	}
	return Option{}, false
}

// Const returns a const node holding the option literal.
func (o Option) Const() *FnConfig {
	return &FnConfig{Kind: KindConst, Name: o.Value}
}

// String renders a compact single-line description for logs.
func (c *FnConfig) String() string {
	var b strings.Builder
	b.WriteString(c.Kind.String())
	if c.Typed {
		b.WriteString(" ")
		b.WriteString(strings.ToLower(c.Type.String()))
	}
	if c.Name != "" {
		b.WriteString(" ")
		b.WriteString(c.Name)
	}
	if len(c.Inputs) > 0 {
		names := make([]string, len(c.Inputs))
		for i, in := range c.Inputs {
			names[i] = in.Name
		}
		b.WriteString(" (" + strings.Join(names, ", ") + ")")
	}
	return b.String()
}

// multiWordOptions are option keys that legitimately contain spaces.
var multiWordOptions = map[string]bool{
	"in queue": true,
}

// literalOptions never hold keywords even when their text contains a kind word.
var literalOptions = map[string]bool{
	"sql":      true,
	"comment":  true,
	"send-to":  true,
	"in queue": true,
	"key":      true,
	"conf":     true,
}

// parser walks YAML nodes and tracks declared variables.
type parser struct {
	vars map[string]bool
}

func newParser() *parser {
	return &parser{vars: make(map[string]bool)}
}

// Parse parses a single node given as a one-entry YAML mapping, for example
//
//	fn Add:
//	    input1: point int /App/A
//	    input2: const int 1
func Parse(data []byte) (*FnConfig, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errors.WrapInvalid(err, "fnconfig", "Parse", "parse yaml")
	}
	doc := document(&root)
	if doc == nil || doc.Kind != yaml.MappingNode || len(doc.Content) != 2 {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: expected a single keyword mapping", errors.ErrMalformedKeyword),
			"fnconfig", "Parse", "read root")
	}
	p := newParser()
	kw, err := ParseKeyword(doc.Content[0].Value)
	if err != nil {
		return nil, err
	}
	return p.node(kw, doc.Content[1])
}

func document(root *yaml.Node) *yaml.Node {
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return nil
		}
		return root.Content[0]
	}
	return root
}

// node builds the FnConfig for a keyword and its YAML value.
func (p *parser) node(kw Keyword, value *yaml.Node) (*FnConfig, error) {
	conf := &FnConfig{Kind: kw.Kind, Name: kw.Data, Type: kw.Type, Typed: kw.Typed}

	switch kw.Kind {
	case KindConst:
		if isScalar(value) && value.Value != "" {
			if conf.Name != "" {
				return nil, malformedValue(kw, "const has both inline data and a value")
			}
			conf.Name = value.Value
		}
		if conf.Name == "" && !(conf.Typed && conf.Type == point.TypeString) {
			return nil, malformedValue(kw, "const requires a literal")
		}
		return conf, nil

	case KindPoint:
		switch {
		case isEmpty(value):
			return conf, nil
		case value.Kind == yaml.MappingNode:
			// "conf point Out:" declares a point: its attributes become options
			return conf, p.declaration(conf, kw, value)
		default:
			return nil, malformedValue(kw, "point takes no value")
		}

	case KindVar:
		if isEmpty(value) {
			if !p.vars[kw.Data] {
				return nil, errors.WrapInvalid(
					fmt.Errorf("%w: variable %s used before declaration", errors.ErrMissingInput, kw.Data),
					"fnconfig", "node", "resolve let")
			}
			conf.Ref = true
			return conf, nil
		}
		if p.vars[kw.Data] {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: variable %s declared twice", errors.ErrInvalidConfig, kw.Data),
				"fnconfig", "node", "declare let")
		}
		if err := p.body(conf, kw, value); err != nil {
			return nil, err
		}
		if len(conf.Inputs) != 1 {
			return nil, malformedValue(kw, fmt.Sprintf("let requires exactly one input, got %d", len(conf.Inputs)))
		}
		p.vars[kw.Data] = true
		return conf, nil

	case KindFn, KindMetric:
		if err := p.body(conf, kw, value); err != nil {
			return nil, err
		}
		return conf, nil

	default:
		return nil, malformedValue(kw, "task keyword is only valid at the top level")
	}
}

// body fills inputs and options of fn, metric and let nodes.
func (p *parser) body(conf *FnConfig, kw Keyword, value *yaml.Node) error {
	switch {
	case isEmpty(value):
		return nil
	case isScalar(value):
		// "let Var1: const int 5" or "input: fn Timer"
		child, err := p.scalar(value.Value)
		if err != nil {
			return err
		}
		if child == nil {
			return malformedValue(kw, fmt.Sprintf("value %q is neither a keyword nor a variable", value.Value))
		}
		conf.Inputs = append(conf.Inputs, Input{Name: "input", Conf: child})
		return nil
	case value.Kind == yaml.MappingNode:
		return p.mapping(conf, value)
	default:
		return malformedValue(kw, "expected a mapping of inputs and options")
	}
}

func (p *parser) mapping(conf *FnConfig, m *yaml.Node) error {
	for i := 0; i+1 < len(m.Content); i += 2 {
		key, value := m.Content[i].Value, m.Content[i+1]

		kw, err := ParseKeyword(key)
		switch {
		case err == nil:
			child, err := p.node(kw, value)
			if err != nil {
				return err
			}
			name := kw.Input
			if name == "" {
				name = kw.Data
			}
			conf.Inputs = append(conf.Inputs, Input{Name: name, Conf: child})
			continue
		case !errors.Is(err, errors.ErrUnknownKeyword):
			return err
		}

		if strings.ContainsFunc(key, isSpace) && !multiWordOptions[key] {
			return errors.WrapInvalid(fmt.Errorf("%w: %q", errors.ErrUnknownKeyword, key),
				"fnconfig", "mapping", "parse key")
		}

		switch {
		case isScalar(value) && literalOptions[key]:
			conf.Options = append(conf.Options, Option{Key: key, Value: value.Value})
		case isScalar(value):
			child, err := p.scalar(value.Value)
			if err != nil {
				return err
			}
			if child != nil {
				conf.Inputs = append(conf.Inputs, Input{Name: key, Conf: child})
			} else {
				conf.Options = append(conf.Options, Option{Key: key, Value: value.Value})
			}
		case value.Kind == yaml.MappingNode && key == "table":
			opt := Option{Key: key}
			for j := 0; j+1 < len(value.Content); j += 2 {
				if !isScalar(value.Content[j+1]) {
					return errors.WrapInvalid(fmt.Errorf("%w: table values must be scalars", errors.ErrInvalidTable),
						"fnconfig", "mapping", "parse table")
				}
				opt.Pairs = append(opt.Pairs, Pair{Key: value.Content[j].Value, Value: value.Content[j+1].Value})
			}
			conf.Options = append(conf.Options, opt)
		case value.Kind == yaml.MappingNode:
			// "input: {fn Add: ...}" nests exactly one keyword under a plain input name
			if len(value.Content) != 2 {
				return errors.WrapInvalid(fmt.Errorf("%w: %q must hold a single keyword", errors.ErrMalformedKeyword, key),
					"fnconfig", "mapping", "parse input")
			}
			inner, err := ParseKeyword(value.Content[0].Value)
			if err != nil {
				return err
			}
			child, err := p.node(inner, value.Content[1])
			if err != nil {
				return err
			}
			conf.Inputs = append(conf.Inputs, Input{Name: key, Conf: child})
		case isEmpty(value):
			conf.Options = append(conf.Options, Option{Key: key})
		default:
			return errors.WrapInvalid(fmt.Errorf("%w: unsupported value for %q", errors.ErrMalformedKeyword, key),
				"fnconfig", "mapping", "parse option")
		}
	}
	return nil
}

// declaration reads the attributes of a declared point. A "type"
// attribute types the point when the keyword did not.
func (p *parser) declaration(conf *FnConfig, kw Keyword, m *yaml.Node) error {
	for i := 0; i+1 < len(m.Content); i += 2 {
		key, value := m.Content[i].Value, m.Content[i+1]
		switch {
		case isScalar(value):
			conf.Options = append(conf.Options, Option{Key: key, Value: value.Value})
		case value.Kind == yaml.MappingNode:
			opt := Option{Key: key}
			for j := 0; j+1 < len(value.Content); j += 2 {
				opt.Pairs = append(opt.Pairs, Pair{Key: value.Content[j].Value, Value: value.Content[j+1].Value})
			}
			conf.Options = append(conf.Options, opt)
		case isEmpty(value):
			conf.Options = append(conf.Options, Option{Key: key})
		default:
			return malformedValue(kw, fmt.Sprintf("unsupported value for point attribute %q", key))
		}
	}
	if opt, ok := conf.Option("type"); ok && !conf.Typed {
		t, err := point.ParseType(opt.Value)
		if err != nil {
			return malformedValue(kw, err.Error())
		}
		conf.Type, conf.Typed = t, true
	}
	return nil
}

// scalar resolves a scalar value into a node when it is a keyword or a
// declared variable; nil means the scalar is a plain option literal.
func (p *parser) scalar(s string) (*FnConfig, error) {
	if p.vars[s] {
		return &FnConfig{Kind: KindVar, Name: s, Ref: true}, nil
	}
	kw, err := ParseKeyword(s)
	if err != nil {
		if errors.Is(err, errors.ErrUnknownKeyword) {
			return nil, nil
		}
		return nil, err
	}
	return p.node(kw, nil)
}

func isSpace(r rune) bool { return r == ' ' || r == '\t' }

func isScalar(n *yaml.Node) bool {
	return n != nil && n.Kind == yaml.ScalarNode && n.Tag != "!!null"
}

func isEmpty(n *yaml.Node) bool {
	if n == nil {
		return true
	}
	switch n.Kind {
	case yaml.ScalarNode:
		return n.Tag == "!!null" || (n.Value == "" && n.Style == 0)
	case yaml.MappingNode, yaml.SequenceNode:
		return len(n.Content) == 0
	default:
		return false
	}
}

func malformedValue(kw Keyword, reason string) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %s %s: %s", errors.ErrMalformedKeyword, kw.Kind, kw.Data, reason),
		"fnconfig", "node", "parse value")
}
