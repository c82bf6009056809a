package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leads-dashboard/internal/config"
)

func TestMemory_SetGetDelete(t *testing.T) {
	m, err := NewMemory(nil)
	require.NoError(t, err)
	defer m.Close()
	ctx := context.Background()

	require.True(t, m.Set(ctx, "k", []byte("v"), time.Minute))
	got, ok := m.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	m.Delete(ctx, "k")
	m.store.Wait()
	_, ok = m.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemory_CancelledContext(t *testing.T) {
	m, err := NewMemory(nil)
	require.NoError(t, err)
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, m.Set(ctx, "k", []byte("v"), time.Minute))
	_, ok := m.Get(ctx, "k")
	assert.False(t, ok)
}

func TestNew_SelectsDriver(t *testing.T) {
	c, err := New(config.CacheConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, c)

	_, err = New(config.CacheConfig{Driver: "memcached"})
	assert.Error(t, err)
}

func TestMemory_Counter(t *testing.T) {
	m, err := NewMemory(nil)
	require.NoError(t, err)
	defer m.Close()
	ctx := context.Background()

	n, err := m.Counter(ctx, "gen")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	for want := int64(1); want <= 3; want++ {
		n, err = m.Incr(ctx, "gen")
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	n, err = m.Counter(ctx, "gen")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

// fakeRedis keeps string values in a map and answers like a redis server.
type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeRedis() *fakeRedis { return &fakeRedis{data: make(map[string]string)} }

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewStringCmd(ctx, "get", key)
	v, ok := f.data[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(v)
	return cmd
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	default:
		f.data[key] = fmt.Sprint(v)
	}
	cmd := redis.NewStatusCmd(ctx, "set", key)
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	cmd := redis.NewIntCmd(ctx, "del")
	cmd.SetVal(n)
	return cmd
}

func (f *fakeRedis) Incr(ctx context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewIntCmd(ctx, "incr", key)
	n, _ := strconv.ParseInt(f.data[key], 10, 64)
	n++
	f.data[key] = strconv.FormatInt(n, 10)
	cmd.SetVal(n)
	return cmd
}

func (f *fakeRedis) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx, "ping")
	cmd.SetVal("PONG")
	return cmd
}

func (f *fakeRedis) Close() error { return nil }

func TestRedis_ValuesAndCounters(t *testing.T) {
	r, err := NewRedisFromClient(newFakeRedis())
	require.NoError(t, err)
	ctx := context.Background()

	_, ok := r.Get(ctx, "k")
	assert.False(t, ok)
	require.True(t, r.Set(ctx, "k", []byte("v"), time.Minute))
	got, ok := r.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)
	r.Delete(ctx, "k")
	_, ok = r.Get(ctx, "k")
	assert.False(t, ok)

	n, err := r.Counter(ctx, "gen")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	_, err = r.Incr(ctx, "gen")
	require.NoError(t, err)
	n, err = r.Incr(ctx, "gen")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	n, err = r.Counter(ctx, "gen")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
