// Package cache holds the timestamped entries the price resolvers read before
// going to the network. Entries are overwritten on refetch and never evicted.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Entry[T any] struct {
	Value     T         `json:"value"`
	FetchedAt time.Time `json:"timestamp"`
}

// Valid reports whether the entry is younger than ttl at now.
// A non-positive ttl never expires.
func (e Entry[T]) Valid(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return true
	}
	return now.Sub(e.FetchedAt) < ttl
}

type Store[T any] interface {
	Get(ctx context.Context, key string) (Entry[T], bool)
	Set(ctx context.Context, key string, e Entry[T])
}

type Memory[T any] struct {
	mu      sync.RWMutex
	entries map[string]Entry[T]
}

func NewMemory[T any]() *Memory[T] {
	return &Memory[T]{entries: make(map[string]Entry[T])}
}

func (m *Memory[T]) Get(_ context.Context, key string) (Entry[T], bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	return e, ok
}

func (m *Memory[T]) Set(_ context.Context, key string, e Entry[T]) {
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
}

// Len returns the number of entries.
func (m *Memory[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// KV is a durable byte store, such as the cache_entries table.
type KV interface {
	GetValue(ctx context.Context, key string) ([]byte, bool, error)
	PutValue(ctx context.Context, key string, value []byte) error
}

// Durable stores JSON encoded entries in a KV so they survive restarts.
// Storage errors are logged and read as misses.
type Durable[T any] struct {
	kv     KV
	logger *zap.Logger
}

func NewDurable[T any](kv KV, logger *zap.Logger) *Durable[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Durable[T]{kv: kv, logger: logger}
}

func (d *Durable[T]) Get(ctx context.Context, key string) (Entry[T], bool) {
	raw, ok, err := d.kv.GetValue(ctx, key)
	if err != nil {
		d.logger.Warn("durable cache read failed", zap.String("key", key), zap.Error(err))
		return Entry[T]{}, false
	}
	if !ok {
		return Entry[T]{}, false
	}
	var e Entry[T]
	if err := json.Unmarshal(raw, &e); err != nil {
		d.logger.Warn("durable cache entry is corrupt", zap.String("key", key), zap.Error(err))
		return Entry[T]{}, false
	}
	return e, true
}

func (d *Durable[T]) Set(ctx context.Context, key string, e Entry[T]) {
	raw, err := json.Marshal(e)
	if err != nil {
		d.logger.Warn("durable cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := d.kv.PutValue(ctx, key, raw); err != nil {
		d.logger.Warn("durable cache write failed", zap.String("key", key), zap.Error(err))
	}
}
