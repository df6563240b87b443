package fn

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/fr-service/errors"
	"github.com/c360/fr-service/fnconfig"
	"github.com/c360/fr-service/point"
	"github.com/c360/fr-service/testutil"
)

// build parses a single node definition and builds it into a new graph.
func build(t *testing.T, src string, opts ...BuilderOption) (*Graph, NodeID) {
	t.Helper()
	conf, err := fnconfig.Parse([]byte(src))
	require.NoError(t, err)
	b := NewBuilder(opts...)
	id, err := b.Build(conf)
	require.NoError(t, err)
	return b.Graph(), id
}

func buildTask(t *testing.T, src string, opts ...BuilderOption) (*Graph, []Root) {
	t.Helper()
	task, err := fnconfig.ParseTask([]byte(src))
	require.NoError(t, err)
	g, roots, err := BuildTask(task, opts...)
	require.NoError(t, err)
	return g, roots
}

// pull delivers the given points and evaluates root, which must yield a value.
func pull(t *testing.T, g *Graph, root NodeID, points ...point.Point) point.Point {
	t.Helper()
	for _, p := range points {
		require.True(t, g.Update(p), "no leaf for %s", p.Name)
	}
	out, ok, err := g.Pull(root)
	require.NoError(t, err)
	require.True(t, ok, "expected a value")
	return out
}

func ids(roots []Root) []NodeID {
	out := make([]NodeID, len(roots))
	for i, r := range roots {
		out[i] = r.ID
	}
	return out
}

const sharedTask = `
task Shared:
    let V:
        input fn Export:
            send-to: spy
            input: point int /App/In
    fn Add:
        input1: V
        input2: V
    fn Mul:
        input1: V
        input2: const int 2
`

func TestSharedVar_EvaluatedOncePerPass(t *testing.T) {
	var sent []point.Point
	sinks := SinkMap{"spy": SinkFunc(func(p point.Point) error {
		sent = append(sent, p)
		return nil
	})}
	g, roots := buildTask(t, sharedTask, WithSinks(sinks))
	require.Len(t, roots, 3)

	v, ok := g.Var("V")
	require.True(t, ok)
	assert.Equal(t, v, roots[0].ID)

	require.True(t, g.Update(point.NewInt("/App/In", 5)))
	results := g.PullAll(ids(roots))
	require.Len(t, results, 3)
	for _, r := range results {
		require.NoError(t, r.Err)
		require.True(t, r.OK)
	}
	assert.Equal(t, int64(10), results[1].Point.Int())
	assert.Equal(t, int64(10), results[2].Point.Int())
	assert.Len(t, sent, 1, "shared export runs once for the whole pass")

	pull(t, g, roots[1].ID)
	assert.Len(t, sent, 2, "one more pass, one more send")
}

func TestInputs_UnionWithoutDuplicates(t *testing.T) {
	src := `
task Inputs:
    let Load: point int /App/Load
    fn Add:
        input1: Load
        input2: Load
        input3 fn Mul:
            input1: point int /App/Speed
            input2: Load
    fn Count: point bool /App/On
`
	g, roots := buildTask(t, src)

	if diff := cmp.Diff([]string{"/App/Load", "/App/Speed"}, g.Inputs(roots[1].ID)); diff != "" {
		t.Errorf("Inputs() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"/App/On"}, g.Inputs(roots[2].ID))
	assert.Equal(t, []string{"/App/Load", "/App/On", "/App/Speed"}, g.Leaves())

	leaf, ok := g.Leaf("/App/Load")
	require.True(t, ok)
	n, _ := g.Node(leaf)
	assert.Equal(t, "Input", n.Kind())
}

func TestRoundTrip_RebuildIsIdentical(t *testing.T) {
	src := `
task RoundTrip:
    let Limit: const real 2.5
    fn Add:
        input1: Limit
        input2: const real 1
    fn Threshold:
        threshold: Limit
        input: point real /App/Raw
    fn Filter:
        input: point int /App/Count
        pass: point bool /App/Gate
        default: 4
`
	build := func() ([][]string, []Result) {
		g, roots := buildTask(t, src)
		inputs := make([][]string, len(roots))
		for i, r := range roots {
			inputs[i] = g.Inputs(r.ID)
		}
		return inputs, g.PullAll(ids(roots))
	}

	inputsA, outA := build()
	inputsB, outB := build()

	if diff := cmp.Diff(inputsA, inputsB); diff != "" {
		t.Errorf("inputs differ after rebuild (-first +second):\n%s", diff)
	}
	require.Len(t, outB, len(outA))
	for i := range outA {
		assert.Equal(t, outA[i].OK, outB[i].OK, "root %d", i)
		assert.Equal(t, outA[i].Err, outB[i].Err, "root %d", i)
		if outA[i].OK {
			assert.True(t, outA[i].Point.ValueEqual(outB[i].Point), "root %d", i)
		}
	}
	assert.True(t, outA[1].OK)
	assert.Equal(t, float32(3.5), outA[1].Point.Real())
	assert.False(t, outA[2].OK, "threshold without input has no value")
}

func TestReset_IsIdempotent(t *testing.T) {
	g, root := build(t, `
fn Add:
    input1 fn Count: point bool /App/On
    input2 fn Threshold:
        threshold: 3
        input: point int /App/Level
`)
	run := func() []int64 {
		var out []int64
		levels := []int64{0, 1, 4, 2, 9, 8}
		for i, level := range levels {
			p := pull(t, g, root, point.NewBool("/App/On", i%2 == 1), point.NewInt("/App/Level", level))
			out = append(out, p.Int())
		}
		return out
	}

	first := run()
	g.Reset()
	g.Reset()
	second := run()
	assert.Equal(t, first, second)
	assert.Equal(t, []int64{0, 1, 5, 6, 11, 12}, first)
}

func TestReset_RestoresStatefulOperators(t *testing.T) {
	on := func(v bool) []point.Point { return []point.Point{point.NewBool("/on", v)} }
	x := func(v int64) []point.Point { return []point.Point{point.NewInt("/x", v)} }
	d := func(v float64) []point.Point { return []point.Point{point.NewDouble("/d", v)} }

	tests := map[string]struct {
		src   string
		steps [][]point.Point
	}{
		"Timer": {
			src:   "fn Timer: point bool /on\n",
			steps: [][]point.Point{on(true), on(true), on(false), on(true), on(true)},
		},
		"Acc": {
			src:   "fn Acc: point int /x\n",
			steps: [][]point.Point{x(1), x(2), nil, x(3)},
		},
		"Filter": {
			src: "fn Filter:\n    input: point int /x\n    pass: point bool /on\n    default: 7\n",
			steps: [][]point.Point{
				{point.NewInt("/x", 1), point.NewBool("/on", false)},
				{point.NewInt("/x", 2), point.NewBool("/on", true)},
				{point.NewInt("/x", 3), point.NewBool("/on", false)},
			},
		},
		"Previous": {
			src:   "fn Previous: point int /x\n",
			steps: [][]point.Point{x(1), x(2), x(3)},
		},
		"RisingEdge": {
			src:   "fn RisingEdge: point bool /on\n",
			steps: [][]point.Point{on(false), on(true), on(true), on(false), on(true)},
		},
		"FallingEdge": {
			src:   "fn FallingEdge: point bool /on\n",
			steps: [][]point.Point{on(true), on(false), on(false), on(true), on(false)},
		},
		"Average": {
			src: "fn Average:\n    enable: point bool /on\n    input: point double /d\n",
			steps: [][]point.Point{
				{point.NewDouble("/d", 2), point.NewBool("/on", true)},
				{point.NewDouble("/d", 4), point.NewBool("/on", true)},
				d(9),
			},
		},
		"Smooth": {
			src:   "fn Smooth:\n    factor: 0.5\n    input: point double /d\n",
			steps: [][]point.Point{d(10), d(20), d(20)},
		},
		"IsChangedValue": {
			src:   "fn IsChangedValue:\n    a: point int /x\n",
			steps: [][]point.Point{x(1), x(1), x(2), x(2)},
		},
		"Export changes-only": {
			src:   "fn Export:\n    send-to: api\n    changes-only: true\n    input: point int /x\n",
			steps: [][]point.Point{x(1), x(1), x(2), x(2), x(1)},
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var trace []string
			sinks := SinkMap{"api": SinkFunc(func(p point.Point) error {
				trace = append(trace, "sent "+p.FormatValue())
				return nil
			})}
			clock := testutil.NewManualClock(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
			g, root := build(t, tt.src, WithClock(clock), WithSinks(sinks))

			run := func() []string {
				trace = nil
				for _, step := range tt.steps {
					clock.Advance(time.Second)
					for _, p := range step {
						require.True(t, g.Update(p))
					}
					out, ok, err := g.Pull(root)
					require.NoError(t, err)
					if ok {
						trace = append(trace, out.FormatValue())
					} else {
						trace = append(trace, "none")
					}
				}
				return trace
			}

			first := run()
			require.GreaterOrEqual(t, len(first), len(tt.steps))
			g.Reset()
			g.Reset()
			second := run()
			if diff := cmp.Diff(first, second); diff != "" {
				t.Errorf("rerun after Reset differs (-first +second):\n%s", diff)
			}
		})
	}
}

func TestTypeMismatch_IsReturnedNotPanicked(t *testing.T) {
	g, root := build(t, `
fn Add:
    input1: point int /a
    input2: point double /b
`)
	require.True(t, g.Update(point.NewInt("/a", 1)))
	require.True(t, g.Update(point.NewDouble("/b", 1)))

	_, ok, err := g.Pull(root)
	require.Error(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, err, errors.ErrTypeMismatch)
	assert.True(t, errors.IsInvalid(err))
}

func TestNone_Propagates(t *testing.T) {
	g, root := build(t, `
fn Add:
    input1: point int /a
    input2: point int /b
`)
	require.True(t, g.Update(point.NewInt("/a", 1)))
	_, ok, err := g.Pull(root)
	require.NoError(t, err)
	assert.False(t, ok, "an input without a value yields no value")
}

func TestTypedLeafConvertsDeliveries(t *testing.T) {
	g, root := build(t, "fn ToString: point double /a\n")
	out := pull(t, g, root, point.NewInt("/a", 3))
	assert.Equal(t, point.TypeString, out.Type)
	assert.Equal(t, "3", out.Str())
}

func TestTypedFunctionConvertsResult(t *testing.T) {
	g, root := build(t, `
fn double Add:
    input1: point int /a
    input2: const int 2
`)
	out := pull(t, g, root, point.NewInt("/a", 1))
	assert.Equal(t, point.TypeDouble, out.Type)
	assert.Equal(t, 3.0, out.Double())
}

func TestLeafTypeFromCatalog(t *testing.T) {
	catalog, err := point.NewCatalog(point.Config{Name: "/App/Speed", Type: point.TypeReal})
	require.NoError(t, err)

	g, root := build(t, "fn Debug: point /App/Speed\n", WithCatalog(catalog))
	out := pull(t, g, root, point.NewDouble("/App/Speed", 1.5))
	assert.Equal(t, point.TypeReal, out.Type)
}

func TestBuild_Errors(t *testing.T) {
	catalog, err := point.NewCatalog(point.Config{Name: "/App/Known", Type: point.TypeInt})
	require.NoError(t, err)

	tests := map[string]struct {
		src  string
		want error
	}{
		"unknown function":   {"fn Nope: point int /a\n", errors.ErrUnknownFunction},
		"missing threshold":  {"fn Threshold: point int /a\n", errors.ErrMissingInput},
		"short table":        {"fn Piecewise:\n    input: point int /a\n    table:\n        0: 1\n", errors.ErrInvalidTable},
		"bad table key":      {"fn Piecewise:\n    input: point int /a\n    table:\n        x: 1\n        2: 3\n", errors.ErrInvalidTable},
		"no table":           {"fn Piecewise: point int /a\n", errors.ErrMissingOption},
		"export no send-to":  {"fn Export: point int /a\n", errors.ErrMissingOption},
		"export unknown pt":  {"fn Export:\n    send-to: q\n    conf: /App/Missing\n    input: point int /a\n", errors.ErrPointNotFound},
		"pow three inputs":   {"fn Pow:\n    a: const 1\n    b: const 2\n    c: const 3\n", errors.ErrMissingInput},
		"empty add":          {"fn Add:\n", errors.ErrMissingInput},
		"bad const":          {"fn Add:\n    a: const int abc\n", errors.ErrInvalidConfig},
		"bad repeat":         {"fn Timer:\n    repeat: sometimes\n    input: point bool /a\n", errors.ErrInvalidConfig},
		"retain without key": {"fn Retain: point int /a\n", errors.ErrMissingOption},
		"sql without sql":    {"metric SqlMetric:\n    a: point int /a\n", errors.ErrMissingOption},
		"leaf type conflict": {"fn Add:\n    a: point int /a\n    b: point bool /a\n", errors.ErrTypeMismatch},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			conf, err := fnconfig.Parse([]byte(tt.src))
			require.NoError(t, err)
			_, err = NewBuilder(WithCatalog(catalog)).Build(conf)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestBuild_PointIdNeedsCatalog(t *testing.T) {
	conf, err := fnconfig.Parse([]byte("fn PointId: point int /a\n"))
	require.NoError(t, err)
	_, err = NewBuilder().Build(conf)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
}

func TestBuild_VariableScope(t *testing.T) {
	b := NewBuilder()
	_, err := b.Build(&fnconfig.FnConfig{Kind: fnconfig.KindVar, Name: "X", Ref: true})
	assert.ErrorIs(t, err, errors.ErrMissingInput)

	decl := &fnconfig.FnConfig{
		Kind:   fnconfig.KindVar,
		Name:   "X",
		Inputs: []fnconfig.Input{{Name: "input", Conf: &fnconfig.FnConfig{Kind: fnconfig.KindConst, Name: "1"}}},
	}
	first, err := b.Build(decl)
	require.NoError(t, err)

	ref, err := b.Build(&fnconfig.FnConfig{Kind: fnconfig.KindVar, Name: "X", Ref: true})
	require.NoError(t, err)
	assert.Equal(t, first, ref)

	_, err = b.Build(decl)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestOperators_CatalogIsComplete(t *testing.T) {
	names := Operators()
	for _, want := range []string{
		"Add", "Sub", "Mul", "Div", "BitAnd", "BitOr", "BitXor", "BitNot", "Neg", "Pow", "Ge", "Gt", "Lt", "Le",
		"Eq", "Ne", "Max", "Min", "Count", "Acc", "Timer", "Threshold", "Filter", "RisingEdge",
		"FallingEdge", "PiecewiseLineApprox", "Previous", "PointId", "Average", "Smooth",
		"IsChangedValue", "ToBool", "ToInt", "ToReal", "ToDouble", "ToString", "Debug", "Retain",
		"Export", "SqlMetric",
	} {
		assert.Contains(t, names, want)
	}
}
