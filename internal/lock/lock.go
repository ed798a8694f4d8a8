// Package lock serializes ledger mutations on the same accounts across API
// instances before they reach the database.
package lock

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Locker holds a set of named locks for the duration of fn.
type Locker interface {
	WithLocks(ctx context.Context, keys []string, fn func(ctx context.Context) error) error
}

// Options configures lock acquisition.
type Options struct {
	Expiry     time.Duration
	Tries      int
	RetryDelay time.Duration
}

// DefaultOptions suits ledger operations that complete well within a second.
func DefaultOptions() Options {
	return Options{
		Expiry:     10 * time.Second,
		Tries:      32,
		RetryDelay: 50 * time.Millisecond,
	}
}

// AccountKey names the lock guarding an account's balance.
func AccountKey(mobile string) string {
	return "ledger:lock:account:" + mobile
}

// RequestKey names the lock guarding a pending request.
func RequestKey(id string) string {
	return "ledger:lock:request:" + id
}

// RedisLocker implements Locker with the RedLock algorithm.
type RedisLocker struct {
	rs   *redsync.Redsync
	opts Options
}

func NewRedisLocker(client *redis.Client, opts Options) *RedisLocker {
	if opts.Expiry <= 0 {
		opts = DefaultOptions()
	}
	return &RedisLocker{
		rs:   redsync.New(goredis.NewPool(client)),
		opts: opts,
	}
}

// WithLocks acquires keys in sorted order, runs fn and releases them in
// reverse order. Duplicate keys are taken once.
func (l *RedisLocker) WithLocks(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	sorted := dedupeSorted(keys)

	held := make([]*redsync.Mutex, 0, len(sorted))
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			if ok, err := held[i].UnlockContext(context.WithoutCancel(ctx)); !ok || err != nil {
				zap.L().Warn("failed to release lock", zap.String("key", held[i].Name()), zap.Bool("ok", ok), zap.Error(err))
			}
		}
	}()

	for _, key := range sorted {
		mutex := l.rs.NewMutex(key,
			redsync.WithExpiry(l.opts.Expiry),
			redsync.WithTries(l.opts.Tries),
			redsync.WithRetryDelay(l.opts.RetryDelay),
		)
		if err := mutex.LockContext(ctx); err != nil {
			return fmt.Errorf("acquire lock %s: %w", key, err)
		}
		held = append(held, mutex)
	}

	return fn(ctx)
}

// NopLocker runs fn without coordination; the store's own row locks still
// apply.
type NopLocker struct{}

func (NopLocker) WithLocks(ctx context.Context, _ []string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func dedupeSorted(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	n := 0
	for i, k := range out {
		if i > 0 && k == out[n-1] {
			continue
		}
		out[n] = k
		n++
	}
	return out[:n]
}
