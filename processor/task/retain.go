package task

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/c360/fr-service/errors"
	"github.com/c360/fr-service/fn"
	"github.com/c360/fr-service/natsclient"
	"github.com/c360/fr-service/point"
)

const (
	retainFlushTimeout = 5 * time.Second
	retainRetryEvery   = time.Second
)

// KVBucket is the part of natsclient.KVStore the retain store uses.
type KVBucket interface {
	Get(ctx context.Context, key string) (*natsclient.KVEntry, error)
	Put(ctx context.Context, key string, value []byte) (uint64, error)
	Keys(ctx context.Context) ([]string, error)
}

var _ KVBucket = (*natsclient.KVStore)(nil)

// retainRecord is the value stored per key. The unsanitized key travels with
// the point because bucket keys are sanitized.
type retainRecord struct {
	Key   string      `json:"key"`
	Point point.Point `json:"point"`
}

// KVRetainStore is an fn.RetainStore persisted in a JetStream KV bucket.
// Load and Store work on memory; Run writes changed keys behind.
type KVRetainStore struct {
	kv     KVBucket
	logger *slog.Logger

	mu      sync.Mutex
	values  map[string]point.Point
	pending map[string]point.Point
	notify  chan struct{}
}

var _ fn.RetainStore = (*KVRetainStore)(nil)

// NewKVRetainStore creates a store over kv.
func NewKVRetainStore(kv KVBucket, logger *slog.Logger) *KVRetainStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &KVRetainStore{
		kv:      kv,
		logger:  logger.With("component", "retain"),
		values:  make(map[string]point.Point),
		pending: make(map[string]point.Point),
		notify:  make(chan struct{}, 1),
	}
}

// Preload reads every persisted value into memory. Entries that cannot be
// decoded are skipped with a warning.
func (s *KVRetainStore) Preload(ctx context.Context) error {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		return errors.Wrap(err, "KVRetainStore", "Preload", "list keys")
	}

	loaded := 0
	for _, k := range keys {
		entry, err := s.kv.Get(ctx, k)
		if err != nil {
			if natsclient.IsKVNotFoundError(err) {
				continue
			}
			return errors.Wrap(err, "KVRetainStore", "Preload", "get "+k)
		}
		var rec retainRecord
		if err := json.Unmarshal(entry.Value, &rec); err != nil {
			s.logger.Warn("Skipping unreadable retained value", "key", k, "error", err)
			continue
		}
		s.mu.Lock()
		if _, seen := s.values[rec.Key]; !seen {
			s.values[rec.Key] = rec.Point
			loaded++
		}
		s.mu.Unlock()
	}
	s.logger.Info("Retained values loaded", "count", loaded)
	return nil
}

// Load implements fn.RetainStore.
func (s *KVRetainStore) Load(key string) (point.Point, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.values[key]
	return p, ok, nil
}

// Store implements fn.RetainStore.
func (s *KVRetainStore) Store(key string, p point.Point) error {
	s.mu.Lock()
	s.values[key] = p
	s.pending[key] = p
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

// Pending returns the number of keys not yet written.
func (s *KVRetainStore) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Flush writes every pending key. Keys that fail stay pending unless a
// newer value replaced them meanwhile.
func (s *KVRetainStore) Flush(ctx context.Context) error {
	s.mu.Lock()
	batch := s.pending
	s.pending = make(map[string]point.Point, len(batch))
	s.mu.Unlock()

	var errs []error
	for key, p := range batch {
		data, err := json.Marshal(retainRecord{Key: key, Point: p})
		if err != nil {
			errs = append(errs, errors.WrapInvalid(err, "KVRetainStore", "Flush", "encode "+key))
			continue
		}
		if _, err := s.kv.Put(ctx, bucketKey(key), data); err != nil {
			errs = append(errs, err)
			s.mu.Lock()
			if _, newer := s.pending[key]; !newer {
				s.pending[key] = p
			}
			s.mu.Unlock()
		}
	}
	return stderrors.Join(errs...)
}

// Run writes pending values whenever Store is called, until ctx is done.
// Failed writes are retried every second. A final flush is attempted on
// the way out.
func (s *KVRetainStore) Run(ctx context.Context) error {
	ticker := time.NewTicker(retainRetryEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), retainFlushTimeout)
			defer cancel()
			if err := s.Flush(flushCtx); err != nil {
				s.logger.Error("Final retain flush failed", "pending", s.Pending(), "error", err)
			}
			return nil
		case <-ticker.C:
			if s.Pending() == 0 {
				continue
			}
			if err := s.Flush(ctx); err != nil && ctx.Err() == nil {
				s.logger.Debug("Retain retry failed", "pending", s.Pending(), "error", err)
			}
		case <-s.notify:
			if err := s.Flush(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("Retain flush failed", "pending", s.Pending(), "error", err)
			}
		}
	}
}

// bucketKey maps a retain key onto the NATS KV key alphabet.
func bucketKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '=':
			b.WriteRune(r)
		case r == '/' || r == '.':
			if b.Len() > 0 && !strings.HasSuffix(b.String(), ".") {
				b.WriteByte('.')
			}
		default:
			b.WriteByte('_')
		}
	}
	k := strings.Trim(b.String(), ".")
	if k == "" {
		return "_"
	}
	return k
}
