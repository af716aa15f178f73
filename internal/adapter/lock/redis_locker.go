package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/allocation-ledger/internal/core/domain"
)

const (
	lockKeyPrefix     = "lock:ledger:"
	defaultRetryDelay = 25 * time.Millisecond
	expiryMargin      = 5 * time.Second
)

type RedisLockerOptions struct {
	// Expiry is how long a lock survives a crashed holder
	Expiry     time.Duration
	Tries      int
	RetryDelay time.Duration
}

// RedisLockerOptionsFor sizes the locker to a ledger operation: a waiter keeps
// retrying for the whole operation timeout, and a held lock outlives the
// operation plus its compensation.
func RedisLockerOptionsFor(operationTimeout, rollbackTimeout time.Duration) RedisLockerOptions {
	return RedisLockerOptions{
		Expiry:     operationTimeout + rollbackTimeout + expiryMargin,
		Tries:      int(operationTimeout/defaultRetryDelay) + 1,
		RetryDelay: defaultRetryDelay,
	}
}

func DefaultRedisLockerOptions() RedisLockerOptions {
	return RedisLockerOptionsFor(5*time.Second, 10*time.Second)
}

// RedisLocker coordinates ledger keys across service instances with redsync.
// Redis mutexes have no shared mode, so shared requests are taken exclusively.
type RedisLocker struct {
	rs     *redsync.Redsync
	opts   RedisLockerOptions
	logger *zap.Logger
}

func NewRedisLocker(client *redis.Client, opts RedisLockerOptions, logger *zap.Logger) *RedisLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{
		rs:     redsync.New(goredis.NewPool(client)),
		opts:   opts,
		logger: logger.Named("redis_locker"),
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, keys ...domain.LockKey) (func(), error) {
	ordered := domain.CanonicalLockOrder(keys)
	held := make([]*redsync.Mutex, 0, len(ordered))

	for _, k := range ordered {
		mutex := l.rs.NewMutex(lockKeyPrefix+k.Name(),
			redsync.WithExpiry(l.opts.Expiry),
			redsync.WithTries(l.opts.Tries),
			redsync.WithRetryDelay(l.opts.RetryDelay),
		)
		if err := mutex.LockContext(ctx); err != nil {
			l.unlockAll(held)
			return nil, fmt.Errorf("lock %s: %w", k.Name(), err)
		}
		held = append(held, mutex)
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.unlockAll(held) })
	}, nil
}

func (l *RedisLocker) unlockAll(held []*redsync.Mutex) {
	ctx, cancel := context.WithTimeout(context.Background(), l.opts.Expiry)
	defer cancel()

	for i := len(held) - 1; i >= 0; i-- {
		if ok, err := held[i].UnlockContext(ctx); !ok || err != nil {
			l.logger.Error("failed to release lock",
				zap.String("lock_key", held[i].Name()),
				zap.Bool("unlock_ok", ok),
				zap.Error(err),
			)
		}
	}
}
