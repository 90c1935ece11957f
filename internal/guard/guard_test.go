package guard

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagegen/internal/apperr"
	"imagegen/internal/config"
	"imagegen/internal/redis"
)

func TestMemory_Acquire(t *testing.T) {
	g := NewMemory()
	ctx := context.Background()

	release, err := g.Acquire(ctx, "u1")
	require.NoError(t, err)

	_, err = g.Acquire(ctx, "u1")
	assert.ErrorIs(t, err, apperr.ErrGenerationInFlight)

	other, err := g.Acquire(ctx, "u2")
	require.NoError(t, err)
	defer other(ctx)

	require.NoError(t, release(ctx))
	require.NoError(t, release(ctx))

	again, err := g.Acquire(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestMemory_Acquire_Concurrent(t *testing.T) {
	g := NewMemory()
	var won int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := g.Acquire(context.Background(), "u1"); err == nil {
				atomic.AddInt32(&won, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), won)
}

type fakeLocker struct {
	mu    sync.Mutex
	keys  map[string]string
	err   error
	evals int
}

func (f *fakeLocker) SetNX(_ context.Context, key string, value interface{}, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if _, ok := f.keys[key]; ok {
		return false, nil
	}
	f.keys[key] = value.(string)
	return true, nil
}

func (f *fakeLocker) Eval(_ context.Context, _ *goredis.Script, keys []string, args ...interface{}) (interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evals++
	if f.keys[keys[0]] == args[0].(string) {
		delete(f.keys, keys[0])
		return int64(1), nil
	}
	return int64(0), nil
}

func TestRedis_Acquire(t *testing.T) {
	ctx := context.Background()
	fl := &fakeLocker{keys: map[string]string{}}
	g := NewRedis(fl, time.Minute)

	release, err := g.Acquire(ctx, "u1")
	require.NoError(t, err)
	assert.Contains(t, fl.keys, "imagegen:inflight:u1")

	_, err = g.Acquire(ctx, "u1")
	assert.ErrorIs(t, err, apperr.ErrGenerationInFlight)

	require.NoError(t, release(ctx))
	require.NoError(t, release(ctx))
	assert.Equal(t, 1, fl.evals)
	assert.Empty(t, fl.keys)
}

func TestRedis_Acquire_BackendError(t *testing.T) {
	fl := &fakeLocker{keys: map[string]string{}, err: errors.New("connection refused")}
	g := NewRedis(fl, time.Minute)

	_, err := g.Acquire(context.Background(), "u1")
	assert.EqualError(t, err, "acquire in-flight slot: connection refused")
	assert.NotErrorIs(t, err, apperr.ErrGenerationInFlight)
}

func TestRedis_Acquire_Live(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed tests")
	}
	client, err := redis.NewClient(config.RedisConfig{Addr: addr})
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	g := NewRedis(client, time.Minute)
	user := "live-" + time.Now().Format(time.RFC3339Nano)

	release, err := g.Acquire(ctx, user)
	require.NoError(t, err)
	_, err = g.Acquire(ctx, user)
	assert.ErrorIs(t, err, apperr.ErrGenerationInFlight)

	require.NoError(t, release(ctx))
	again, err := g.Acquire(ctx, user)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}
