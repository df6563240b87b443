package fn

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/c360/fr-service/errors"
	"github.com/c360/fr-service/fnconfig"
	"github.com/c360/fr-service/point"
)

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets the logger used by Debug and Export nodes.
func WithLogger(logger *slog.Logger) BuilderOption {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithClock sets the clock used by Timer nodes and to stamp computed results.
func WithClock(clock Clock) BuilderOption {
	return func(b *Builder) {
		if clock != nil {
			b.clock = clock
		}
	}
}

// WithCatalog sets the point catalog used to type leaves and by PointId
// and Export nodes.
func WithCatalog(catalog *point.Catalog) BuilderOption {
	return func(b *Builder) { b.catalog = catalog }
}

// WithSinks sets the destinations Export and SqlMetric nodes send to.
func WithSinks(sinks Sinks) BuilderOption {
	return func(b *Builder) { b.sinks = sinks }
}

// WithRetainStore sets the store Retain nodes persist to.
func WithRetainStore(store RetainStore) BuilderOption {
	return func(b *Builder) {
		if store != nil {
			b.retain = store
		}
	}
}

// WithTask names the owning task and sets the transmission id stamped on
// exported points.
func WithTask(name string, txID int) BuilderOption {
	return func(b *Builder) {
		b.task, b.txID = name, txID
	}
}

// WithExportHook registers a callback invoked after every send attempt.
func WithExportHook(hook func(ExportEvent)) BuilderOption {
	return func(b *Builder) { b.exportHook = hook }
}

// Builder turns FnConfig trees into nodes of one Graph. Variables declared
// while building one tree are visible to every later tree built by the
// same Builder.
type Builder struct {
	g          *Graph
	logger     *slog.Logger
	clock      Clock
	catalog    *point.Catalog
	sinks      Sinks
	retain     RetainStore
	task       string
	txID       int
	exportHook func(ExportEvent)
}

// NewBuilder returns a Builder for a new, empty Graph.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		g:      NewGraph(),
		logger: slog.Default(),
		clock:  SystemClock,
		retain: NewMemoryRetainStore(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Graph returns the graph under construction.
func (b *Builder) Graph() *Graph {
	return b.g
}

// Build adds the nodes of conf to the graph and returns the id of its root.
func (b *Builder) Build(conf *fnconfig.FnConfig) (NodeID, error) {
	if conf == nil {
		return NoNode, errors.WrapInvalid(errors.ErrMissingInput, "fn", "Build", "nil config")
	}

	switch conf.Kind {
	case fnconfig.KindConst:
		p, err := parseLiteral("const", conf.Name, conf.Type, conf.Typed)
		if err != nil {
			return NoNode, err
		}
		return b.g.add(&constNode{base: base{id: b.g.nextID(), kind: "Const"}, value: p}), nil

	case fnconfig.KindPoint:
		return b.leaf(conf)

	case fnconfig.KindVar:
		if conf.Ref {
			id, ok := b.g.vars[conf.Name]
			if !ok {
				return NoNode, errors.WrapInvalid(
					fmt.Errorf("%w: variable %s is not declared", errors.ErrMissingInput, conf.Name),
					"fn", "Build", "resolve variable")
			}
			return id, nil
		}
		if _, dup := b.g.vars[conf.Name]; dup {
			return NoNode, errors.WrapInvalid(
				fmt.Errorf("%w: variable %s declared twice", errors.ErrInvalidConfig, conf.Name),
				"fn", "Build", "declare variable")
		}
		if len(conf.Inputs) != 1 {
			return NoNode, errors.WrapInvalid(
				fmt.Errorf("%w: variable %s needs exactly one input", errors.ErrMissingInput, conf.Name),
				"fn", "Build", "declare variable")
		}
		in, err := b.Build(conf.Inputs[0].Conf)
		if err != nil {
			return NoNode, err
		}
		id := b.g.add(&varNode{base: base{id: b.g.nextID(), kind: "Var"}, name: conf.Name, input: in})
		b.g.vars[conf.Name] = id
		return id, nil

	case fnconfig.KindFn, fnconfig.KindMetric:
		return b.function(conf)

	default:
		return NoNode, errors.WrapInvalid(
			fmt.Errorf("%w: %s cannot be built", errors.ErrMalformedKeyword, conf.Kind),
			"fn", "Build", "dispatch kind")
	}
}

// leaf returns the input node bound to the point path, creating it on first
// use. An untyped leaf takes its type from the catalog when listed there.
func (b *Builder) leaf(conf *fnconfig.FnConfig) (NodeID, error) {
	typ, typed := conf.Type, conf.Typed
	if !typed && b.catalog != nil {
		if pc, ok := b.catalog.Get(conf.Name); ok {
			typ, typed = pc.Type, true
		}
	}

	if id, ok := b.g.leaves[conf.Name]; ok {
		existing := b.g.nodes[id].(*inputNode)
		if conf.Typed && existing.typed && existing.typ != conf.Type {
			return NoNode, errors.WrapInvalid(
				fmt.Errorf("%w: point %s declared as %s and %s", errors.ErrTypeMismatch, conf.Name, existing.typ, conf.Type),
				"fn", "Build", "reuse leaf")
		}
		return id, nil
	}

	id := b.g.add(&inputNode{base: base{id: b.g.nextID(), kind: "Input"}, path: conf.Name, typ: typ, typed: typed})
	b.g.leaves[conf.Name] = id
	return id, nil
}

type constructor func(c *call) (Node, error)

type operator struct {
	kind  string
	build constructor
}

// operators maps lower-cased configuration names to constructors.
var operators = map[string]operator{}

func register(build constructor, kind string, aliases ...string) {
	for _, name := range append([]string{kind}, aliases...) {
		operators[strings.ToLower(name)] = operator{kind: kind, build: build}
	}
}

func init() {
	for kind := range foldOps {
		register(buildFold, kind)
	}
	for kind := range binaryOps {
		register(buildBinary, kind)
	}
	for kind := range conversions {
		register(buildConversion, kind)
	}
	register(buildUnary, "BitNot", "Not")
	register(buildUnary, "Neg", "Negate")
	register(buildCount, "Count")
	register(buildAcc, "Acc", "Accumulate")
	register(buildTimer, "Timer")
	register(buildThreshold, "Threshold")
	register(buildFilter, "Filter")
	register(buildEdge, "RisingEdge")
	register(buildEdge, "FallingEdge")
	register(buildPiecewise, "PiecewiseLineApprox", "Piecewise")
	register(buildPrevious, "Previous")
	register(buildPointID, "PointId")
	register(buildAverage, "Average")
	register(buildSmooth, "Smooth")
	register(buildIsChanged, "IsChangedValue")
	register(buildDebug, "Debug")
	register(buildRetain, "Retain")
	register(buildExport, "Export", "ToApiQueue", "FilterToQueue")
	register(buildSQLMetric, "SqlMetric")
}

// Operators returns the sorted canonical names of all known operators.
func Operators() []string {
	seen := make(map[string]bool)
	var names []string
	for _, op := range operators {
		if !seen[op.kind] {
			seen[op.kind] = true
			names = append(names, op.kind)
		}
	}
	sort.Strings(names)
	return names
}

func (b *Builder) function(conf *fnconfig.FnConfig) (NodeID, error) {
	op, ok := operators[strings.ToLower(conf.Name)]
	if !ok {
		return NoNode, errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrUnknownFunction, conf.Name),
			"fn", "Build", "lookup operator")
	}

	c := &call{b: b, conf: conf, kind: op.kind, built: make(map[string]NodeID)}
	node, err := op.build(c)
	if err != nil {
		return NoNode, err
	}
	if node.ID() != b.g.nextID() {
		return NoNode, errors.WrapFatal(
			fmt.Errorf("node %s has id %d, expected %d", op.kind, node.ID(), b.g.nextID()),
			"fn", "Build", "add node")
	}
	id := b.g.add(node)

	if conf.Typed {
		// "fn int Add" converts the operator result to the declared type
		id = b.g.add(&convertNode{
			base:  base{id: b.g.nextID(), kind: "To" + conf.Type.String()},
			input: id,
			to:    conf.Type,
		})
	}
	return id, nil
}

// reserved names select operator parameters, never the main input.
var reserved = map[string]bool{
	"initial": true, "threshold": true, "factor": true, "default": true,
	"pass": true, "enable": true, "gate": true, "repeat": true, "conf": true,
}

// call is the build context of one fn node: it resolves named parameters
// from inputs first and from options second.
type call struct {
	b     *Builder
	conf  *fnconfig.FnConfig
	kind  string
	built map[string]NodeID
}

// base returns the identity of the node being built. It must be called
// after every child has been built.
func (c *call) base() base {
	return base{id: c.b.g.nextID(), kind: c.kind}
}

// input resolves a named parameter to a node, NoNode when absent.
func (c *call) input(name string) (NodeID, error) {
	if id, ok := c.built[name]; ok {
		return id, nil
	}
	conf, ok := c.conf.Input(name)
	if !ok && name == "input" && len(c.conf.Inputs) == 1 && !reserved[c.conf.Inputs[0].Name] {
		conf, ok = c.conf.Inputs[0].Conf, true
	}
	if !ok {
		opt, found := c.conf.Option(name)
		if !found || opt.Value == "" {
			return NoNode, nil
		}
		conf = opt.Const()
	}
	id, err := c.b.Build(conf)
	if err != nil {
		return NoNode, err
	}
	c.built[name] = id
	return id, nil
}

// required is input that fails when the parameter is absent.
func (c *call) required(name string) (NodeID, error) {
	id, err := c.input(name)
	if err != nil {
		return NoNode, err
	}
	if id == NoNode {
		return NoNode, c.missing(name)
	}
	return id, nil
}

// all builds every declared input in order, ignoring options.
func (c *call) all() ([]NodeID, error) {
	ids := make([]NodeID, 0, len(c.conf.Inputs))
	for _, in := range c.conf.Inputs {
		id, err := c.b.Build(in.Conf)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// named builds every declared input and returns them keyed by input name.
func (c *call) named() ([]string, []NodeID, error) {
	names := make([]string, 0, len(c.conf.Inputs))
	ids := make([]NodeID, 0, len(c.conf.Inputs))
	for _, in := range c.conf.Inputs {
		id, err := c.b.Build(in.Conf)
		if err != nil {
			return nil, nil, err
		}
		names = append(names, in.Name)
		ids = append(ids, id)
	}
	return names, ids, nil
}

func (c *call) option(key string) (string, bool) {
	opt, ok := c.conf.Option(key)
	if !ok {
		return "", false
	}
	return opt.Value, true
}

// flag reads a boolean option; a key present without a value is true.
func (c *call) flag(key string, def bool) (bool, error) {
	v, ok := c.option(key)
	if !ok {
		return def, nil
	}
	if v == "" {
		return true, nil
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, errors.WrapInvalid(
			fmt.Errorf("%w: %s.%s must be a boolean, got %q", errors.ErrInvalidConfig, c.kind, key, v),
			"fn", "build", c.kind)
	}
	return parsed, nil
}

// literalFloat reads a numeric option that is fixed at build time.
func (c *call) literalFloat(key string, def float64) (float64, error) {
	v, ok := c.option(key)
	if !ok || v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, errors.WrapInvalid(
			fmt.Errorf("%w: %s.%s must be a number, got %q", errors.ErrInvalidConfig, c.kind, key, v),
			"fn", "build", c.kind)
	}
	return f, nil
}

func (c *call) missing(what string) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %s requires %s", errors.ErrMissingInput, c.kind, what),
		"fn", "build", c.kind)
}

// Root is one task-level node.
type Root struct {
	Name string
	ID   NodeID
}

// BuildTask builds every root of a task into one graph.
func BuildTask(task *fnconfig.TaskConfig, opts ...BuilderOption) (*Graph, []Root, error) {
	b := NewBuilder(append([]BuilderOption{WithTask(task.Name, 0)}, opts...)...)
	roots := make([]Root, 0, len(task.Nodes))
	for _, n := range task.Nodes {
		id, err := b.Build(n.Conf)
		if err != nil {
			return nil, nil, errors.Wrap(err, "fn", "BuildTask", "build "+n.Conf.String())
		}
		roots = append(roots, Root{Name: n.Name, ID: id})
	}
	return b.g, roots, nil
}
