package fn

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/fr-service/errors"
	"github.com/c360/fr-service/point"
	"github.com/c360/fr-service/testutil"
)

func TestArithmetic(t *testing.T) {
	g, root := build(t, `
fn Sub:
    input1 fn Add:
        input1: point int /a
        input2: point int /b
        input3: const int 4
    input2: const int 1
`)
	out := pull(t, g, root, point.NewInt("/a", 2), point.NewInt("/b", 3))
	assert.Equal(t, point.TypeInt, out.Type)
	assert.Equal(t, int64(8), out.Int())
}

func TestComparisonYieldsBool(t *testing.T) {
	g, root := build(t, `
fn Ge:
    input1: point real /a
    input2: const real 2.5
`)
	out := pull(t, g, root, point.NewReal("/a", 3))
	assert.Equal(t, point.TypeBool, out.Type)
	assert.True(t, out.Bool())

	out = pull(t, g, root, point.NewReal("/a", 1))
	assert.False(t, out.Bool())
}

func TestDiv_ByZero(t *testing.T) {
	g, root := build(t, `
fn Div:
    input1: point int /a
    input2: point int /b
`)
	require.True(t, g.Update(point.NewInt("/a", 1)))
	require.True(t, g.Update(point.NewInt("/b", 0)))
	_, ok, err := g.Pull(root)
	assert.False(t, ok)
	assert.ErrorIs(t, err, errors.ErrInvalidData)

	g, root = build(t, `
fn Div:
    input1: point double /a
    input2: point double /b
`)
	out := pull(t, g, root, point.NewDouble("/a", 1), point.NewDouble("/b", 0))
	assert.True(t, math.IsInf(out.Double(), 1))
}

func TestUnary(t *testing.T) {
	g, root := build(t, "fn Neg: point int /a\n")
	assert.Equal(t, int64(-5), pull(t, g, root, point.NewInt("/a", 5)).Int())

	g, root = build(t, "fn Neg: point double /a\n")
	out := pull(t, g, root, point.NewDouble("/a", -1.5))
	assert.Equal(t, point.TypeDouble, out.Type)
	assert.Equal(t, 1.5, out.Double())

	g, root = build(t, "fn Not: point bool /a\n")
	assert.True(t, pull(t, g, root, point.NewBool("/a", false)).Bool())

	g, root = build(t, "fn Neg: point bool /a\n")
	require.True(t, g.Update(point.NewBool("/a", true)))
	_, ok, err := g.Pull(root)
	assert.False(t, ok)
	assert.ErrorIs(t, err, errors.ErrTypeMismatch)
}

func TestCombination_StampedWithClock(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := map[string]string{
		"fold":   "fn Add:\n    input1: point int /a\n    input2: const int 1\n",
		"binary": "fn Ge:\n    input1: point int /a\n    input2: const int 1\n",
		"unary":  "fn Neg: point int /a\n",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			clock := testutil.NewManualClock(start)
			g, root := build(t, src, WithClock(clock))
			for i := 0; i < 3; i++ {
				clock.Advance(5 * time.Second)
				delivered := point.NewInt("/a", int64(i)).WithTimestamp(start.Add(-time.Hour))
				out := pull(t, g, root, delivered)
				assert.Equal(t, clock.Now(), out.Timestamp, "step %d", i)
			}
		})
	}
}

func TestThreshold_Absolute(t *testing.T) {
	g, root := build(t, `
fn Threshold:
    threshold: 2
    input: point int /a
`)
	in := []int64{0, 1, 2, 3, 1, 5, 4, 6}
	want := []int64{0, 0, 2, 2, 2, 5, 5, 5}
	for i, v := range in {
		out := pull(t, g, root, point.NewInt("/a", v))
		assert.Equal(t, want[i], out.Int(), "step %d", i)
	}
}

func TestThreshold_Factor(t *testing.T) {
	g, root := build(t, `
fn Threshold:
    threshold: const double 3
    factor: const double 0.5
    input: point int /a
`)
	in := []int64{0, 1, 1, 2, 2, 3, 4, 5, 4, 3, 2, 1, 0, 0, 0, 0, 0}
	want := []int64{0, 0, 0, 0, 2, 2, 2, 5, 5, 5, 2, 2, 2, 2, 0, 0, 0}
	for i, v := range in {
		out := pull(t, g, root, point.NewInt("/a", v))
		assert.Equal(t, want[i], out.Int(), "step %d", i)
	}
}

func TestThreshold_HoldsWithinDeadband(t *testing.T) {
	g, root := build(t, `
fn Threshold:
    threshold: 3
    input: point int /a
`)
	in := []int64{0, 1, 2, 3, 4, 5, 4, 3, 2, 1, 0}
	want := []int64{0, 0, 0, 3, 3, 3, 3, 3, 3, 3, 0}
	for i, v := range in {
		out := pull(t, g, root, point.NewInt("/a", v))
		assert.Equal(t, want[i], out.Int(), "step %d", i)
	}
}

func TestPiecewise(t *testing.T) {
	g, root := build(t, `
fn PiecewiseLineApprox:
    input: point double /x
    table:
        4: 5
        0: 0
        2: 1
`)
	tests := []struct {
		x, want float64
	}{
		{1.2, 0.6},
		{3.3, 3.6},
		{2, 1},
		{5, 7},
		{-2, -1},
	}
	for _, tt := range tests {
		out := pull(t, g, root, point.NewDouble("/x", tt.x))
		assert.InDelta(t, tt.want, out.Double(), 1e-9, "x=%v", tt.x)
	}

	g, root = build(t, `
fn Piecewise:
    input: point int /x
    table:
        0: 0
        10: 100
`)
	out := pull(t, g, root, point.NewInt("/x", 3))
	assert.Equal(t, point.TypeInt, out.Type)
	assert.Equal(t, int64(30), out.Int())
}

func TestPiecewise_FlatSegment(t *testing.T) {
	g, root := build(t, `
fn Piecewise:
    input: point double /x
    table:
        0: 0
        5: 0
        10: 3
`)
	for _, tt := range []struct{ x, want float64 }{{6, 0.6}, {11, 3.6}, {2, 0}} {
		out := pull(t, g, root, point.NewDouble("/x", tt.x))
		assert.InDelta(t, tt.want, out.Double(), 1e-9, "x=%v", tt.x)
	}
}

func TestFilter(t *testing.T) {
	values := []int64{1, 2, 3, 4}
	gates := []bool{false, false, true, false}

	tests := map[string]struct {
		src  string
		want []int64
	}{
		"zero before first pass": {
			src:  "fn Filter:\n    input: point int /v\n    pass: point bool /g\n",
			want: []int64{0, 0, 3, 3},
		},
		"default before first pass": {
			src:  "fn Filter:\n    input: point int /v\n    pass: point bool /g\n    default: 7\n",
			want: []int64{7, 7, 3, 3},
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			g, root := build(t, tt.src)
			for i := range values {
				out := pull(t, g, root, point.NewInt("/v", values[i]), point.NewBool("/g", gates[i]))
				assert.Equal(t, tt.want[i], out.Int(), "step %d", i)
			}
		})
	}
}

func TestFilter_GateWithoutValue(t *testing.T) {
	g, root := build(t, "fn Filter:\n    input: point int /v\n    pass: point bool /g\n")
	require.True(t, g.Update(point.NewInt("/v", 1)))
	_, ok, err := g.Pull(root)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCount(t *testing.T) {
	in := []bool{false, true, true, false, true, false, false, true}
	want := []int64{0, 1, 1, 1, 2, 2, 2, 3}

	g, root := build(t, "fn Count: point bool /on\n")
	for i, v := range in {
		out := pull(t, g, root, point.NewBool("/on", v))
		assert.Equal(t, want[i], out.Int(), "step %d", i)
	}

	g.Reset()
	out := pull(t, g, root, point.NewBool("/on", true))
	assert.Equal(t, int64(1), out.Int())

	g, root = build(t, "fn Count:\n    initial: 10\n    input: point bool /on\n")
	for i, v := range in {
		out := pull(t, g, root, point.NewBool("/on", v))
		assert.Equal(t, want[i]+10, out.Int(), "step %d", i)
	}
}

func TestCount_SeedArrivesLate(t *testing.T) {
	g, root := build(t, "fn Count:\n    initial: point int /seed\n    input: point bool /on\n")
	assert.Equal(t, int64(1), pull(t, g, root, point.NewBool("/on", true)).Int())
	assert.Equal(t, int64(11), pull(t, g, root, point.NewBool("/on", false), point.NewInt("/seed", 10)).Int())
	assert.Equal(t, int64(12), pull(t, g, root, point.NewBool("/on", true)).Int())
	assert.Equal(t, int64(12), pull(t, g, root, point.NewInt("/seed", 50)).Int(), "seed is taken once")
}

func TestEdges(t *testing.T) {
	in := []bool{false, true, true, false, true}
	tests := map[string][]bool{
		"RisingEdge":  {false, true, false, false, true},
		"FallingEdge": {false, false, false, true, false},
	}
	for kind, want := range tests {
		t.Run(kind, func(t *testing.T) {
			g, root := build(t, "fn "+kind+": point bool /x\n")
			for i, v := range in {
				out := pull(t, g, root, point.NewBool("/x", v))
				assert.Equal(t, point.TypeBool, out.Type)
				assert.Equal(t, want[i], out.Bool(), "step %d", i)
			}
		})
	}
}

func TestPrevious(t *testing.T) {
	tests := map[string]struct {
		src  string
		want []int64
	}{
		"with initial":    {"fn Previous:\n    initial: 10\n    input: point int /x\n", []int64{10, 1, 2}},
		"without initial": {"fn Previous: point int /x\n", []int64{0, 1, 2}},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			g, root := build(t, tt.src)
			for i, v := range []int64{1, 2, 3} {
				out := pull(t, g, root, point.NewInt("/x", v))
				assert.Equal(t, tt.want[i], out.Int(), "step %d", i)
			}
		})
	}
}

func TestAcc_AddsOncePerDelivery(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	at := func(v int64, sec int) point.Point {
		return point.NewInt("/x", v).WithTimestamp(start.Add(time.Duration(sec) * time.Second))
	}

	g, root := build(t, "fn Acc: point int /x\n")
	assert.Equal(t, int64(1), pull(t, g, root, at(1, 0)).Int())
	assert.Equal(t, int64(1), pull(t, g, root).Int(), "no new delivery")
	assert.Equal(t, int64(2), pull(t, g, root, at(1, 1)).Int())
	assert.Equal(t, int64(5), pull(t, g, root, at(3, 2)).Int())

	g, root = build(t, "fn Acc:\n    initial: 10\n    input: point int /x\n")
	assert.Equal(t, int64(11), pull(t, g, root, at(1, 0)).Int())
}

func TestAcc_ComputedInput(t *testing.T) {
	g, root := build(t, `
fn Acc:
    input fn Add:
        input1: point int /x
        input2: const int 0
`)
	assert.Equal(t, int64(1), pull(t, g, root, point.NewInt("/x", 1)).Int())
	assert.Equal(t, int64(1), pull(t, g, root).Int(), "no new delivery")
	assert.Equal(t, int64(1), pull(t, g, root).Int(), "no new delivery")
	assert.Equal(t, int64(3), pull(t, g, root, point.NewInt("/x", 2)).Int())

	same := point.NewInt("/x", 2)
	assert.Equal(t, int64(5), pull(t, g, root, same).Int())
	assert.Equal(t, int64(7), pull(t, g, root, same).Int(), "a repeated point is a new delivery")
}

func TestAcc_SeedArrivesLate(t *testing.T) {
	g, root := build(t, "fn Acc:\n    initial: point int /seed\n    input: point int /x\n")
	assert.Equal(t, int64(2), pull(t, g, root, point.NewInt("/x", 2)).Int())
	assert.Equal(t, int64(12), pull(t, g, root, point.NewInt("/seed", 10)).Int())
	assert.Equal(t, int64(15), pull(t, g, root, point.NewInt("/x", 3)).Int())
	assert.Equal(t, int64(15), pull(t, g, root, point.NewInt("/seed", 99)).Int(), "seed is taken once")
}

func TestAcc_Types(t *testing.T) {
	g, root := build(t, "fn Acc: point bool /x\n")
	out := pull(t, g, root, point.NewBool("/x", true))
	assert.Equal(t, point.TypeInt, out.Type)
	assert.Equal(t, int64(1), out.Int())

	g, root = build(t, "fn Acc: point string /x\n")
	require.True(t, g.Update(point.NewString("/x", "a")))
	_, _, err := g.Pull(root)
	assert.ErrorIs(t, err, errors.ErrTypeMismatch)
}

func TestAverage(t *testing.T) {
	g, root := build(t, `
fn Average:
    enable: point bool /en
    input: point double /x
`)
	steps := []struct {
		v    float64
		en   bool
		want float64
	}{
		{2, true, 2},
		{4, true, 3},
		{5, false, 0},
		{6, true, 6},
	}
	for i, s := range steps {
		out := pull(t, g, root, point.NewDouble("/x", s.v), point.NewBool("/en", s.en))
		assert.Equal(t, point.TypeDouble, out.Type)
		assert.InDelta(t, s.want, out.Double(), 1e-9, "step %d", i)
	}
}

func TestSmooth(t *testing.T) {
	g, root := build(t, `
fn Smooth:
    factor: 0.5
    input: point double /x
`)
	for i, tt := range []struct{ v, want float64 }{{10, 10}, {20, 15}, {20, 17.5}} {
		out := pull(t, g, root, point.NewDouble("/x", tt.v))
		assert.InDelta(t, tt.want, out.Double(), 1e-9, "step %d", i)
	}

	g, root = build(t, "fn Smooth:\n    factor: 0.5\n    input: point bool /x\n")
	require.True(t, g.Update(point.NewBool("/x", true)))
	_, _, err := g.Pull(root)
	assert.ErrorIs(t, err, errors.ErrTypeMismatch)
}

func TestIsChangedValue(t *testing.T) {
	g, root := build(t, `
fn IsChangedValue:
    a: point int /a
    b: point string /b
`)
	steps := []struct {
		a    int64
		b    string
		want bool
	}{
		{1, "x", true},
		{1, "x", false},
		{2, "x", true},
		{2, "y", true},
		{2, "y", false},
	}
	for i, s := range steps {
		out := pull(t, g, root, point.NewInt("/a", s.a), point.NewString("/b", s.b))
		assert.Equal(t, s.want, out.Bool(), "step %d", i)
	}
}

func TestTimer(t *testing.T) {
	steps := []struct {
		advance time.Duration
		on      bool
	}{
		{0, false},
		{0, true},
		{time.Second, true},
		{time.Second, true},
		{time.Second, false},
		{time.Second, false},
		{time.Second, true},
		{time.Second, true},
		{time.Second, false},
	}
	tests := map[string]struct {
		src  string
		want []float64
	}{
		"repeat":    {"fn Timer: point bool /on\n", []float64{0, 0, 1, 2, 3, 3, 3, 4, 5}},
		"no repeat": {"fn Timer:\n    repeat: false\n    input: point bool /on\n", []float64{0, 0, 1, 2, 3, 3, 3, 3, 3}},
		"initial":   {"fn Timer:\n    initial: 10\n    input: point bool /on\n", []float64{10, 10, 11, 12, 13, 13, 13, 14, 15}},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			clock := testutil.NewManualClock(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
			g, root := build(t, tt.src, WithClock(clock))
			for i, s := range steps {
				clock.Advance(s.advance)
				out := pull(t, g, root, point.NewBool("/on", s.on))
				assert.InDelta(t, tt.want[i], out.Double(), 1e-9, "step %d", i)
				assert.Equal(t, clock.Now(), out.Timestamp)
			}
		})
	}
}

func TestTimer_NumericRunsOnlyWhenPositive(t *testing.T) {
	steps := []struct {
		advance time.Duration
		on      int64
		want    float64
	}{
		{0, 0, 0},
		{time.Second, -1, 0},
		{time.Second, -1, 0},
		{0, 1, 0},
		{time.Second, 3, 1},
		{time.Second, -5, 2},
		{time.Second, -5, 2},
	}
	clock := testutil.NewManualClock(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	g, root := build(t, "fn Timer: point int /on\n", WithClock(clock))
	for i, s := range steps {
		clock.Advance(s.advance)
		out := pull(t, g, root, point.NewInt("/on", s.on))
		assert.InDelta(t, s.want, out.Double(), 1e-9, "step %d", i)
	}
}

func TestTimerState_Next(t *testing.T) {
	assert.Equal(t, TimerStart, TimerOff.next(true, true))
	assert.Equal(t, TimerOff, TimerOff.next(false, true))
	assert.Equal(t, TimerProgress, TimerStart.next(true, true))
	assert.Equal(t, TimerStop, TimerProgress.next(false, true))
	assert.Equal(t, TimerStart, TimerStop.next(true, false))
	assert.Equal(t, TimerOff, TimerStop.next(false, true))
	assert.Equal(t, TimerDone, TimerStop.next(false, false))
	assert.Equal(t, TimerDone, TimerDone.next(true, true))
	assert.Equal(t, "Progress", TimerProgress.String())
}

func TestRetain(t *testing.T) {
	store := NewMemoryRetainStore()

	g, root := build(t, "fn Retain:\n    key: total\n    input: point int /App/Total\n", WithRetainStore(store))
	out := pull(t, g, root, point.NewInt("/App/Total", 5))
	assert.Equal(t, int64(5), out.Int())

	stored, found, err := store.Load("total")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(5), stored.Int())

	g, root = build(t, "fn Retain:\n    key: total\n    default: 0\n", WithRetainStore(store))
	assert.Equal(t, int64(5), pull(t, g, root).Int())

	g, root = build(t, "fn Retain:\n    key: total\n    default: 0\n", WithRetainStore(NewMemoryRetainStore()))
	assert.Equal(t, int64(0), pull(t, g, root).Int())
}

func TestPointId(t *testing.T) {
	catalog, err := point.NewCatalog(
		point.Config{Name: "/App/A", Type: point.TypeInt},
		point.Config{Name: "/App/B", Type: point.TypeInt, ID: 42},
	)
	require.NoError(t, err)

	g, root := build(t, "fn PointId: point /App/B\n", WithCatalog(catalog))
	out := pull(t, g, root, point.NewInt("/App/B", 7))
	assert.Equal(t, int64(42), out.Int())

	g, root = build(t, "fn PointId: point int /App/C\n", WithCatalog(catalog))
	require.True(t, g.Update(point.NewInt("/App/C", 1)))
	_, _, err = g.Pull(root)
	assert.ErrorIs(t, err, errors.ErrPointNotFound)
}

func TestSQLMetric(t *testing.T) {
	var sent []point.Point
	sinks := SinkMap{"db": SinkFunc(func(p point.Point) error {
		sent = append(sent, p)
		return nil
	})}
	g, root := build(t, `
metric SqlMetric:
    table: op_cycle
    id: 3
    send-to: db
    sql: "insert into {table} values ({id}, {load}, '{load.name}', {load.status})"
    load: point int /App/Load
`, WithTask("Rec", 0), WithSinks(sinks))

	out := pull(t, g, root, point.NewInt("/App/Load", 7))
	assert.Equal(t, "/Rec/3", out.Name)
	assert.Equal(t, point.TypeString, out.Type)
	assert.Equal(t, "insert into op_cycle values (3, 7, '/App/Load', 0)", out.Str())
	require.Len(t, sent, 1)
	assert.Equal(t, out.Str(), sent[0].Str())
}

func TestDebugPassesLastInput(t *testing.T) {
	g, root := build(t, "fn Debug:\n    a: point int /a\n    b: point int /b\n")
	out := pull(t, g, root, point.NewInt("/a", 1), point.NewInt("/b", 2))
	assert.Equal(t, int64(2), out.Int())
}
