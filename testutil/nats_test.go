package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjectMatches(t *testing.T) {
	tests := []struct {
		pattern, subject string
		want             bool
	}{
		{"points.>", "points.App.Load", true},
		{"points.>", "points", false},
		{"points.*", "points.App", true},
		{"points.*", "points.App.Load", false},
		{"points.*.Load", "points.App.Load", true},
		{"derived.api", "derived.api", true},
		{"derived.api", "derived.db", false},
		{"a.>.b", "a.x.b", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SubjectMatches(tt.pattern, tt.subject), "%s ~ %s", tt.pattern, tt.subject)
	}
}

func TestMockNATSClient_PublishSubscribe(t *testing.T) {
	client := NewMockNATSClient()
	ctx := context.Background()

	var got [][]byte
	sub, err := client.Subscribe(ctx, "points.>", func(_ context.Context, data []byte) {
		got = append(got, data)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, client.SubscriptionCount())

	PublishPoint(t, client, "points.App.Load", IntPoint("/App/Load", 7))
	require.NoError(t, client.Publish(ctx, "derived.api", []byte("x")))
	require.Len(t, got, 1)

	points := DecodePoints(t, got)
	assert.Equal(t, "/App/Load", points[0].Name)
	assert.Equal(t, int64(7), points[0].Int())

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, sub.Unsubscribe())
	assert.Equal(t, 0, client.SubscriptionCount())

	PublishPoint(t, client, "points.App.Load", IntPoint("/App/Load", 8))
	assert.Len(t, got, 1)
	assert.Equal(t, 2, client.GetMessageCount("points.App.Load"))
	assert.ElementsMatch(t, []string{"points.App.Load", "derived.api"}, client.Subjects())
}

func TestMockNATSClient_Closed(t *testing.T) {
	client := NewMockNATSClient()
	require.NoError(t, client.Close())
	assert.True(t, client.IsClosed())
	assert.Error(t, client.Publish(context.Background(), "a", nil))
	_, err := client.Subscribe(context.Background(), "a", func(context.Context, []byte) {})
	assert.Error(t, err)
}

func TestMockNATSClient_CancelledSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMockNATSClient().Subscribe(ctx, "a", func(context.Context, []byte) {})
	assert.ErrorIs(t, err, context.Canceled)
}
