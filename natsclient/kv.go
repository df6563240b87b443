package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/fr-service/errors"
	"github.com/c360/fr-service/pkg/retry"
)

// KVEntry is a value with its revision.
type KVEntry struct {
	Key      string
	Value    []byte
	Revision uint64
}

// KVOptions configures KVStore behaviour.
type KVOptions struct {
	Timeout      time.Duration // per attempt
	MaxValueSize int
	Retry        retry.Config
}

// DefaultKVOptions returns the options used by NewKVStore.
func DefaultKVOptions() KVOptions {
	return KVOptions{
		Timeout:      5 * time.Second,
		MaxValueSize: 1024 * 1024,
		Retry: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 20 * time.Millisecond,
			MaxDelay:     500 * time.Millisecond,
			Multiplier:   2,
			Jitter:       true,
		},
	}
}

// KVStore wraps a bucket with timeouts and retries of transient failures.
type KVStore struct {
	bucket  jetstream.KeyValue
	options KVOptions
	logger  *slog.Logger
}

// NewKVStore creates a store over bucket.
func (m *Client) NewKVStore(bucket jetstream.KeyValue, opts ...func(*KVOptions)) *KVStore {
	options := DefaultKVOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &KVStore{
		bucket:  bucket,
		options: options,
		logger:  m.logger.With("bucket", bucket.Bucket()),
	}
}

func (kv *KVStore) applyTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if kv.options.Timeout > 0 {
		return context.WithTimeout(ctx, kv.options.Timeout)
	}
	return ctx, func() {}
}

// Get returns the entry for key, or ErrKVKeyNotFound.
func (kv *KVStore) Get(ctx context.Context, key string) (*KVEntry, error) {
	return retry.DoWithResult(ctx, kv.options.Retry, func() (*KVEntry, error) {
		attemptCtx, cancel := kv.applyTimeout(ctx)
		defer cancel()

		entry, err := kv.bucket.Get(attemptCtx, key)
		if err != nil {
			if IsKVNotFoundError(err) {
				return nil, retry.NonRetryable(ErrKVKeyNotFound)
			}
			return nil, errors.WrapTransient(err, "KVStore", "Get", "get "+key)
		}
		return &KVEntry{Key: key, Value: entry.Value(), Revision: entry.Revision()}, nil
	})
}

// Put writes value under key without a revision check.
func (kv *KVStore) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	if kv.options.MaxValueSize > 0 && len(value) > kv.options.MaxValueSize {
		return 0, errors.WrapInvalid(
			fmt.Errorf("%w: value of %d bytes exceeds %d", errors.ErrInvalidData, len(value), kv.options.MaxValueSize),
			"KVStore", "Put", "check size")
	}
	return retry.DoWithResult(ctx, kv.options.Retry, func() (uint64, error) {
		attemptCtx, cancel := kv.applyTimeout(ctx)
		defer cancel()

		rev, err := kv.bucket.Put(attemptCtx, key, value)
		if err != nil {
			return 0, errors.WrapTransient(err, "KVStore", "Put", "put "+key)
		}
		kv.logger.Debug("KV put", "key", key, "revision", rev)
		return rev, nil
	})
}

// Delete removes key. Deleting a missing key returns ErrKVKeyNotFound.
func (kv *KVStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	if err := kv.bucket.Delete(ctx, key); err != nil {
		if IsKVNotFoundError(err) {
			return ErrKVKeyNotFound
		}
		return errors.WrapTransient(err, "KVStore", "Delete", "delete "+key)
	}
	return nil
}

// Keys lists the keys currently in the bucket.
func (kv *KVStore) Keys(ctx context.Context) ([]string, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	lister, err := kv.bucket.ListKeys(ctx)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, errors.WrapTransient(err, "KVStore", "Keys", "list keys")
	}
	var keys []string
	for key := range lister.Keys() {
		keys = append(keys, key)
	}
	return keys, nil
}

// IsKVNotFoundError reports whether err means the key does not exist.
func IsKVNotFoundError(err error) bool {
	return err != nil && (stderrors.Is(err, ErrKVKeyNotFound) ||
		stderrors.Is(err, jetstream.ErrKeyNotFound) ||
		stderrors.Is(err, jetstream.ErrKeyDeleted))
}

// ErrKVKeyNotFound is returned when a key is missing or deleted.
var ErrKVKeyNotFound = fmt.Errorf("kv: %w", errors.ErrKeyNotFound)
