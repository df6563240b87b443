package task

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/fr-service/errors"
	"github.com/c360/fr-service/fn"
	"github.com/c360/fr-service/point"
	"github.com/c360/fr-service/testutil"
)

type collectSink struct {
	mu   sync.Mutex
	got  []point.Point
	fail bool
}

func (c *collectSink) Send(p point.Point) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return stderrors.New("downstream gone")
	}
	c.got = append(c.got, p)
	return nil
}

func (c *collectSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.got)
}

func TestNATSSink_Send(t *testing.T) {
	client := testutil.NewMockNATSClient()
	sink := NewNATSSink(client, "derived.api")
	require.NoError(t, sink.Send(testutil.DoublePoint("/App/Load", 2.5)))

	got := testutil.DecodePoints(t, client.GetMessages("derived.api"))
	require.Len(t, got, 1)
	assert.Equal(t, "/App/Load", got[0].Name)
	assert.Equal(t, 2.5, got[0].Double())

	client.PublishErr = stderrors.New("nats down")
	err := sink.Send(testutil.DoublePoint("/App/Load", 3))
	assert.ErrorIs(t, err, errors.ErrSinkUnavailable)
	assert.True(t, errors.IsTransient(err))

	assert.ErrorIs(t, NewNATSSink(nil, "x").Send(testutil.IntPoint("/a", 1)), errors.ErrSinkUnavailable)
}

func TestQueueSink_FullAndClosed(t *testing.T) {
	out := &collectSink{}
	q, err := NewQueueSink("api", 2, out, nil)
	require.NoError(t, err)

	require.NoError(t, q.Send(testutil.IntPoint("/a", 1)))
	require.NoError(t, q.Send(testutil.IntPoint("/a", 2)))
	err = q.Send(testutil.IntPoint("/a", 3))
	assert.ErrorIs(t, err, errors.ErrSinkUnavailable)
	assert.ErrorIs(t, err, errors.ErrResourceExhausted)
	assert.Equal(t, int64(1), q.Stats().Drops())

	sent, failed := q.Flush()
	assert.Equal(t, 2, sent)
	assert.Zero(t, failed)
	assert.Equal(t, int64(1), out.got[0].Int(), "oldest first")

	require.NoError(t, q.Close())
	assert.ErrorIs(t, q.Send(testutil.IntPoint("/a", 4)), errors.ErrSinkUnavailable)
}

func TestQueueSink_DropsRefusedPoints(t *testing.T) {
	out := &collectSink{fail: true}
	q, err := NewQueueSink("api", 4, out, nil)
	require.NoError(t, err)
	require.NoError(t, q.Send(testutil.IntPoint("/a", 1)))

	sent, failed := q.Flush()
	assert.Zero(t, sent)
	assert.Equal(t, 1, failed)
	assert.Zero(t, q.Len())
}

func TestQueueSink_RunForwardsAndFlushesOnExit(t *testing.T) {
	out := &collectSink{}
	q, err := NewQueueSink("api", 16, out, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.Run(ctx)
		close(done)
	}()

	require.NoError(t, q.Send(testutil.IntPoint("/a", 1)))
	require.Eventually(t, func() bool { return out.count() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	require.NoError(t, q.Send(testutil.IntPoint("/a", 2)))
	assert.Equal(t, 1, q.Len(), "nothing drains after Run returns")
}

func TestDestinations_Resolve(t *testing.T) {
	client := testutil.NewMockNATSClient()
	d := newDestinations(client, "derived")
	q, err := NewQueueSink("api", 4, NewNATSSink(client, d.subject("api")), nil)
	require.NoError(t, err)
	d.queues["api"] = q

	var sinks fn.Sinks = d
	got, ok := sinks.Sink("api")
	require.True(t, ok)
	assert.Same(t, q, got)

	direct, ok := sinks.Sink("db.history")
	require.True(t, ok)
	assert.Equal(t, "derived.db.history", direct.(*NATSSink).Subject())
	again, _ := sinks.Sink("db.history")
	assert.Same(t, direct, again)

	for _, bad := range []string{"", "a b", "a.>", "*", "a..b"} {
		_, ok := sinks.Sink(bad)
		assert.False(t, ok, bad)
	}
}
