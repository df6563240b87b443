package fn

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/fr-service/errors"
	"github.com/c360/fr-service/fnconfig"
	"github.com/c360/fr-service/point"
)

type spySink struct {
	sent []point.Point
	err  error
}

func (s *spySink) Send(p point.Point) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, p)
	return nil
}

const gatedExport = `
fn Export:
    send-to: api
    changes-only: true
    enable: point bool /App/En
    conf point real /App/Out:
        comment: exported load
    input: point int /App/In
`

func TestExport_GateRetypeAndChangesOnly(t *testing.T) {
	spy := &spySink{}
	var events []ExportEvent
	g, root := build(t, gatedExport,
		WithTask("Task", 7),
		WithSinks(SinkMap{"api": spy}),
		WithExportHook(func(ev ExportEvent) { events = append(events, ev) }))

	out := pull(t, g, root, point.NewInt("/App/In", 1), point.NewBool("/App/En", true))
	assert.Equal(t, "/App/In", out.Name, "the input passes through unchanged")
	assert.Equal(t, point.TypeInt, out.Type)

	require.Len(t, spy.sent, 1)
	sent := spy.sent[0]
	assert.Equal(t, "/App/Out", sent.Name)
	assert.Equal(t, point.TypeReal, sent.Type)
	assert.Equal(t, float32(1), sent.Real())
	assert.Equal(t, 7, sent.TxID)

	pull(t, g, root)
	assert.Len(t, spy.sent, 1, "unchanged value is not sent again")

	pull(t, g, root, point.NewInt("/App/In", 2))
	assert.Len(t, spy.sent, 2)

	out = pull(t, g, root, point.NewInt("/App/In", 3), point.NewBool("/App/En", false))
	assert.Equal(t, int64(3), out.Int())
	assert.Len(t, spy.sent, 2, "closed gate does not send")

	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, "api", ev.Destination)
		assert.NoError(t, ev.Err)
	}

	g.Reset()
	pull(t, g, root, point.NewInt("/App/In", 2), point.NewBool("/App/En", true))
	assert.Len(t, spy.sent, 3, "reset forgets the last sent value")
}

func TestExport_GateWithoutValue(t *testing.T) {
	spy := &spySink{}
	g, root := build(t, gatedExport, WithSinks(SinkMap{"api": spy}))
	require.True(t, g.Update(point.NewInt("/App/In", 1)))

	_, ok, err := g.Pull(root)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, spy.sent)
}

func TestExport_RelativeConfName(t *testing.T) {
	spy := &spySink{}
	g, root := build(t, `
fn Export:
    send-to: api
    conf point double Load:
    input: point int /App/In
`, WithTask("Recorder", 0), WithSinks(SinkMap{"api": spy}))

	pull(t, g, root, point.NewInt("/App/In", 4))
	require.Len(t, spy.sent, 1)
	assert.Equal(t, "/Recorder/Load", spy.sent[0].Name)
	assert.Equal(t, point.TypeDouble, spy.sent[0].Type)
}

func TestExport_CatalogConf(t *testing.T) {
	catalog, err := point.NewCatalog(point.Config{Name: "/App/Speed", Type: point.TypeDouble})
	require.NoError(t, err)
	spy := &spySink{}
	g, root := build(t, `
fn ToApiQueue:
    send-to: api
    conf: /App/Speed
    input: point int /App/In
`, WithCatalog(catalog), WithSinks(SinkMap{"api": spy}))

	pull(t, g, root, point.NewInt("/App/In", 4))
	require.Len(t, spy.sent, 1)
	assert.Equal(t, "/App/Speed", spy.sent[0].Name)
	assert.Equal(t, 4.0, spy.sent[0].Double())
}

func TestExport_SinkFailureDoesNotFailEvaluation(t *testing.T) {
	boom := stderrors.New("queue full")
	tests := map[string]struct {
		sinks Sinks
		want  error
	}{
		"sink error":          {SinkMap{"api": &spySink{err: boom}}, boom},
		"unknown destination": {SinkMap{}, errors.ErrSinkUnavailable},
		"no sinks":            {nil, errors.ErrSinkUnavailable},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var events []ExportEvent
			opts := []BuilderOption{WithExportHook(func(ev ExportEvent) { events = append(events, ev) })}
			if tt.sinks != nil {
				opts = append(opts, WithSinks(tt.sinks))
			}
			g, root := build(t, "fn Export:\n    send-to: api\n    input: point int /App/In\n", opts...)

			out := pull(t, g, root, point.NewInt("/App/In", 1))
			assert.Equal(t, int64(1), out.Int())
			require.Len(t, events, 1)
			assert.ErrorIs(t, events[0].Err, tt.want)
		})
	}
}

func TestExport_ConfMustBeTypedPoint(t *testing.T) {
	conf := "fn Export:\n    send-to: api\n    conf point Out:\n        comment: x\n    input: point int /a\n"
	parsed, err := fnconfig.Parse([]byte(conf))
	require.NoError(t, err)
	_, err = NewBuilder().Build(parsed)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}
