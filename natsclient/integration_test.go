//go:build integration

package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_PublishSubscribe(t *testing.T) {
	tc := NewTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	received := make(chan []byte, 1)
	sub, err := tc.Client.Subscribe(ctx, "points.>", func(_ context.Context, data []byte) {
		received <- data
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, tc.Client.Publish(ctx, "points.App.Load", []byte(`{"name":"/App/Load"}`)))

	select {
	case data := <-received:
		assert.JSONEq(t, `{"name":"/App/Load"}`, string(data))
	case <-ctx.Done():
		t.Fatal("message not delivered")
	}

	rtt, err := tc.Client.RTT()
	require.NoError(t, err)
	assert.Positive(t, rtt)
}

func TestIntegration_KeyValueBucket(t *testing.T) {
	tc := NewTestClient(t, WithJetStream())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bucket, err := tc.Client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: "retain"})
	require.NoError(t, err)

	again, err := tc.Client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: "retain"})
	require.NoError(t, err, "an existing bucket is reused")
	assert.Equal(t, bucket.Bucket(), again.Bucket())

	kv := tc.Client.NewKVStore(bucket)
	_, err = kv.Get(ctx, "Task.count")
	assert.ErrorIs(t, err, ErrKVKeyNotFound)

	rev, err := kv.Put(ctx, "Task.count", []byte(`{"value":3}`))
	require.NoError(t, err)
	assert.Positive(t, rev)

	entry, err := kv.Get(ctx, "Task.count")
	require.NoError(t, err)
	assert.Equal(t, rev, entry.Revision)
	assert.JSONEq(t, `{"value":3}`, string(entry.Value))

	keys, err := kv.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Task.count"}, keys)

	require.NoError(t, kv.Delete(ctx, "Task.count"))
	_, err = kv.Get(ctx, "Task.count")
	assert.ErrorIs(t, err, ErrKVKeyNotFound)

	require.NoError(t, tc.Client.DeleteKeyValueBucket(ctx, "retain"))
	_, err = tc.Client.GetKeyValueBucket(ctx, "retain")
	assert.Error(t, err)
}

func TestIntegration_CloseDrains(t *testing.T) {
	tc := NewTestClient(t)
	require.NoError(t, tc.Client.Close(context.Background()))
	assert.Equal(t, StatusDisconnected, tc.Client.Status())
	assert.Error(t, tc.Client.Publish(context.Background(), "points.x", nil))
}
