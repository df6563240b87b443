package task

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/fr-service/errors"
	"github.com/c360/fr-service/natsclient"
	"github.com/c360/fr-service/testutil"
)

// memoryBucket is an in-memory KVBucket.
type memoryBucket struct {
	mu     sync.Mutex
	data   map[string][]byte
	rev    uint64
	putErr error
}

func newMemoryBucket() *memoryBucket {
	return &memoryBucket{data: make(map[string][]byte)}
}

func (b *memoryBucket) Get(_ context.Context, key string) (*natsclient.KVEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	if !ok {
		return nil, natsclient.ErrKVKeyNotFound
	}
	return &natsclient.KVEntry{Key: key, Value: v, Revision: b.rev}, nil
}

func (b *memoryBucket) Put(_ context.Context, key string, value []byte) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.putErr != nil {
		return 0, b.putErr
	}
	b.rev++
	b.data[key] = append([]byte(nil), value...)
	return b.rev, nil
}

func (b *memoryBucket) Keys(context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.data))
	for k := range b.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *memoryBucket) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

func TestKVRetainStore_WriteBehindAndPreload(t *testing.T) {
	bucket := newMemoryBucket()
	store := NewKVRetainStore(bucket, nil)

	require.NoError(t, store.Store("/Task/Counter", testutil.IntPoint("/App/Count", 41)))
	p, ok, err := store.Load("/Task/Counter")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(41), p.Int())
	assert.Equal(t, 1, store.Pending())
	assert.Zero(t, bucket.len(), "nothing is written until flushed")

	require.NoError(t, store.Flush(context.Background()))
	assert.Zero(t, store.Pending())
	require.Equal(t, 1, bucket.len())

	reloaded := NewKVRetainStore(bucket, nil)
	require.NoError(t, reloaded.Preload(context.Background()))
	p, ok, _ = reloaded.Load("/Task/Counter")
	require.True(t, ok)
	assert.Equal(t, int64(41), p.Int())
	assert.Equal(t, "/App/Count", p.Name)
}

func TestKVRetainStore_FailedWritesStayPending(t *testing.T) {
	bucket := newMemoryBucket()
	bucket.putErr = errors.WrapTransient(errors.ErrStorageUnavailable, "test", "Put", "put")
	store := NewKVRetainStore(bucket, nil)

	require.NoError(t, store.Store("k", testutil.IntPoint("/a", 1)))
	err := store.Flush(context.Background())
	assert.ErrorIs(t, err, errors.ErrStorageUnavailable)
	assert.Equal(t, 1, store.Pending())

	bucket.mu.Lock()
	bucket.putErr = nil
	bucket.mu.Unlock()
	require.NoError(t, store.Flush(context.Background()))
	assert.Zero(t, store.Pending())
}

func TestKVRetainStore_Run(t *testing.T) {
	bucket := newMemoryBucket()
	store := NewKVRetainStore(bucket, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- store.Run(ctx) }()

	require.NoError(t, store.Store("a", testutil.IntPoint("/a", 1)))
	require.Eventually(t, func() bool { return bucket.len() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestKVRetainStore_PreloadSkipsGarbage(t *testing.T) {
	bucket := newMemoryBucket()
	_, _ = bucket.Put(context.Background(), "junk", []byte("{"))
	good, err := json.Marshal(retainRecord{Key: "k", Point: testutil.BoolPoint("/b", true)})
	require.NoError(t, err)
	_, _ = bucket.Put(context.Background(), "k", good)

	store := NewKVRetainStore(bucket, nil)
	require.NoError(t, store.Preload(context.Background()))
	p, ok, _ := store.Load("k")
	require.True(t, ok)
	assert.True(t, p.Bool())
}

type failingKeys struct{ *memoryBucket }

func (failingKeys) Keys(context.Context) ([]string, error) {
	return nil, stderrors.New("bucket offline")
}

func TestKVRetainStore_PreloadError(t *testing.T) {
	store := NewKVRetainStore(failingKeys{newMemoryBucket()}, nil)
	assert.Error(t, store.Preload(context.Background()))
}

func TestBucketKey(t *testing.T) {
	tests := map[string]string{
		"/Task/Counter": "Task.Counter",
		"plain":         "plain",
		"a b:c":         "a_b_c",
		"//a//b/":       "a.b",
		"/":             "_",
		"x=1":           "x=1",
	}
	for in, want := range tests {
		assert.Equal(t, want, bucketKey(in), in)
	}
}
