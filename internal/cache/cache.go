// Package cache stores serialized record snapshots, either in process or in
// Redis so several dashboard instances share them.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"

	"leads-dashboard/internal/config"
)

// Cache is a byte cache with per-entry TTL. Counters live beside the
// cached values and never expire or get evicted.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool
	Delete(ctx context.Context, key string)
	// Incr atomically increments the counter at key and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)
	// Counter returns the counter at key, 0 when it was never incremented.
	Counter(ctx context.Context, key string) (int64, error)
}

// New builds the cache selected by cfg.Driver ("memory" or "redis").
func New(cfg config.CacheConfig) (Cache, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemory(nil)
	case "redis":
		return NewRedis(&RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}

// MemoryConfig sizes the in-process cache.
type MemoryConfig struct {
	// MaxCost is the total size of cached values in bytes
	MaxCost     int64
	NumCounters int64
	BufferItems int64
}

func DefaultMemoryConfig() *MemoryConfig {
	return &MemoryConfig{
		MaxCost:     64 << 20,
		NumCounters: 1e5,
		BufferItems: 64,
	}
}

// Memory is an in-process cache backed by ristretto. Counters are kept
// outside ristretto since an evicted counter would read as 0 again.
type Memory struct {
	store *ristretto.Cache

	mu       sync.Mutex
	counters map[string]int64
}

// NewMemory creates an in-process cache. A nil cfg uses DefaultMemoryConfig.
func NewMemory(cfg *MemoryConfig) (*Memory, error) {
	if cfg == nil {
		cfg = DefaultMemoryConfig()
	}
	store, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &Memory{store: store, counters: make(map[string]int64)}, nil
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool) {
	if ctx.Err() != nil {
		return nil, false
	}
	v, ok := m.store.Get(key)
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

// Set stores value and waits until it is visible to Get.
func (m *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	ok := m.store.SetWithTTL(key, value, int64(len(value))+1, ttl)
	m.store.Wait()
	return ok
}

func (m *Memory) Delete(ctx context.Context, key string) {
	m.store.Del(key)
}

func (m *Memory) Incr(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[key]++
	return m.counters[key], nil
}

func (m *Memory) Counter(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[key], nil
}

// Close releases the cache's background goroutines.
func (m *Memory) Close() {
	m.store.Close()
}
