// Package lock provides the lockers that serialize stock operations on the
// same variant or template. LocalLocker guards a single process; RedisLocker
// coordinates several instances sharing one database.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultKeyPrefix = "stockledger:lock:"

// ErrLockBusy is returned when a lock could not be obtained in time
var ErrLockBusy = shared.NewDomainError(shared.CodeConcurrencyConflict, "Resource is locked by another operation")

// LocalLocker is an in-process keyed mutex
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch      chan struct{}
	waiters int
}

// NewLocalLocker creates an in-process locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*keyLock)}
}

// Acquire blocks until key is free or ctx is done
func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.waiters++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.leave(key, kl)
		return nil, ErrLockBusy.WithDetail("key", key)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.ch
			l.leave(key, kl)
		})
	}, nil
}

func (l *LocalLocker) leave(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.waiters--
	if kl.waiters == 0 {
		delete(l.locks, key)
	}
}

// held returns the number of keys currently tracked
func (l *LocalLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// RedisLocker obtains locks with redislock
type RedisLocker struct {
	client    *redislock.Client
	ttl       time.Duration
	retry     redislock.RetryStrategy
	keyPrefix string
	logger    *zap.Logger
}

// RedisLockerOption configures a RedisLocker
type RedisLockerOption func(*RedisLocker)

// WithKeyPrefix sets the prefix of all lock keys
func WithKeyPrefix(prefix string) RedisLockerOption {
	return func(l *RedisLocker) {
		l.keyPrefix = prefix
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) RedisLockerOption {
	return func(l *RedisLocker) {
		l.logger = logger
	}
}

// NewRedisLocker creates a locker on an existing client. Busy locks are
// retried LockRetryCount times, LockRetryDelay apart.
func NewRedisLocker(client redislock.RedisClient, cfg config.StockConfig, opts ...RedisLockerOption) *RedisLocker {
	l := &RedisLocker{
		client:    redislock.New(client),
		ttl:       cfg.LockTTL,
		retry:     redislock.LimitRetry(redislock.LinearBackoff(cfg.LockRetryDelay), cfg.LockRetryCount),
		keyPrefix: defaultKeyPrefix,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire obtains the lock for key. The returned release function logs but
// otherwise ignores release errors; an expired lock is released by its TTL.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	fullKey := l.keyPrefix + key
	lk, err := l.client.Obtain(ctx, fullKey, l.ttl, &redislock.Options{RetryStrategy: l.retry})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLockBusy.WithDetail("key", key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain lock %s: %w", key, err)
	}
	return func() {
		// detached from the caller's cancellation
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := lk.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn("failed to release lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

// NewRedisClient connects to redis and checks the connection
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}
