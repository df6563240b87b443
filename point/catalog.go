package point

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/c360/fr-service/errors"
)

// Catalog is the static set of point descriptors known to a service,
// indexed by full point name.
type Catalog struct {
	order  []string
	byName map[string]Config
}

// NewCatalog builds a catalog from descriptors. Descriptors without an id
// receive the next free id in declaration order starting at 1.
func NewCatalog(configs ...Config) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]Config, len(configs))}

	used := make(map[int]string)
	for _, cfg := range configs {
		if cfg.Name == "" {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: point without name", errors.ErrInvalidConfig),
				"Catalog", "NewCatalog", "add point")
		}
		if _, dup := c.byName[cfg.Name]; dup {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: duplicate point %s", errors.ErrInvalidConfig, cfg.Name),
				"Catalog", "NewCatalog", "add point")
		}
		if cfg.ID != 0 {
			if other, taken := used[cfg.ID]; taken {
				return nil, errors.WrapInvalid(
					fmt.Errorf("%w: id %d used by %s and %s", errors.ErrInvalidConfig, cfg.ID, other, cfg.Name),
					"Catalog", "NewCatalog", "add point")
			}
			used[cfg.ID] = cfg.Name
		}
		c.order = append(c.order, cfg.Name)
		c.byName[cfg.Name] = cfg
	}

	next := 1
	for _, name := range c.order {
		cfg := c.byName[name]
		if cfg.ID != 0 {
			continue
		}
		for used[next] != "" {
			next++
		}
		cfg.ID = next
		used[next] = name
		c.byName[name] = cfg
	}
	return c, nil
}

// Get returns the descriptor of a point.
func (c *Catalog) Get(name string) (Config, bool) {
	if c == nil {
		return Config{}, false
	}
	cfg, ok := c.byName[name]
	return cfg, ok
}

// ID returns the id of a point or errors.ErrPointNotFound.
func (c *Catalog) ID(name string) (int, error) {
	cfg, ok := c.Get(name)
	if !ok {
		return 0, errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrPointNotFound, name),
			"Catalog", "ID", "lookup point")
	}
	return cfg.ID, nil
}

// Len returns the number of points.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.order)
}

// Configs returns the descriptors in declaration order.
func (c *Catalog) Configs() []Config {
	if c == nil {
		return nil
	}
	out := make([]Config, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.byName[name])
	}
	return out
}

// Names returns the point names sorted alphabetically.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	names := append([]string(nil), c.order...)
	sort.Strings(names)
	return names
}

// ParseCatalog parses a YAML mapping of point name to descriptor:
//
//	/App/Load:
//	    type: Int
//	    history: 1
//	    address: {offset: 12}
//	    comment: Crane load
func ParseCatalog(data []byte) (*Catalog, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errors.WrapInvalid(err, "Catalog", "ParseCatalog", "parse yaml")
	}
	if len(root.Content) == 0 {
		return NewCatalog()
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: points must be a mapping", errors.ErrInvalidConfig),
			"Catalog", "ParseCatalog", "parse yaml")
	}

	configs := make([]Config, 0, len(doc.Content)/2)
	for i := 0; i+1 < len(doc.Content); i += 2 {
		name := doc.Content[i].Value
		var cfg Config
		if err := doc.Content[i+1].Decode(&cfg); err != nil {
			return nil, errors.WrapInvalid(err, "Catalog", "ParseCatalog", "decode point "+name)
		}
		cfg.Name = name
		configs = append(configs, cfg)
	}
	return NewCatalog(configs...)
}

// LoadCatalog reads and parses a points file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Catalog", "LoadCatalog", "read "+path)
	}
	return ParseCatalog(data)
}

// UnmarshalYAML decodes a type name from a YAML scalar.
func (t *Type) UnmarshalYAML(node *yaml.Node) error {
	return t.UnmarshalText([]byte(node.Value))
}

// MarshalYAML encodes the type name.
func (t Type) MarshalYAML() (any, error) {
	return t.String(), nil
}
