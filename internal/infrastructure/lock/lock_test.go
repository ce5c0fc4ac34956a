package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker(t *testing.T) {
	t.Run("serializes holders of the same key", func(t *testing.T) {
		locker := NewLocalLocker()
		var (
			inside  int32
			maxSeen int32
			wg      sync.WaitGroup
		)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				release, err := locker.Acquire(context.Background(), "variant:1")
				if !assert.NoError(t, err) {
					return
				}
				n := atomic.AddInt32(&inside, 1)
				for {
					seen := atomic.LoadInt32(&maxSeen)
					if n <= seen || atomic.CompareAndSwapInt32(&maxSeen, seen, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				release()
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), maxSeen)
		assert.Equal(t, 0, locker.held())
	})

	t.Run("different keys do not block each other", func(t *testing.T) {
		locker := NewLocalLocker()
		releaseA, err := locker.Acquire(context.Background(), "a")
		require.NoError(t, err)
		releaseB, err := locker.Acquire(context.Background(), "b")
		require.NoError(t, err)
		assert.Equal(t, 2, locker.held())
		releaseA()
		releaseB()
		assert.Equal(t, 0, locker.held())
	})

	t.Run("context deadline reports a busy lock", func(t *testing.T) {
		locker := NewLocalLocker()
		release, err := locker.Acquire(context.Background(), "a")
		require.NoError(t, err)
		defer release()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err = locker.Acquire(ctx, "a")
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
		assert.Equal(t, 1, locker.held())
	})

	t.Run("release is idempotent", func(t *testing.T) {
		locker := NewLocalLocker()
		release, err := locker.Acquire(context.Background(), "a")
		require.NoError(t, err)
		release()
		release()

		again, err := locker.Acquire(context.Background(), "a")
		require.NoError(t, err)
		again()
	})
}

func TestRedisLocker_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()

	locker := NewRedisLocker(client, config.StockConfig{
		LockTTL:        time.Second,
		LockRetryCount: 1,
		LockRetryDelay: time.Millisecond,
	})
	_, err := locker.Acquire(context.Background(), "variant:1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, shared.ErrConcurrencyConflict)
	assert.Contains(t, err.Error(), "variant:1")
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	_, err := NewRedisClient(context.Background(), config.RedisConfig{Host: "127.0.0.1", Port: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to Redis")
}
