package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ============================================================================
// Distributed lock
// ============================================================================
//
// Two Spend calls for the same account issued at the same time (double tap,
// two devices, retries from a flaky network):
//
// Without a lock:
//   req1: read balance=5 -> debit 5 -> balance=0
//   req2: read balance=5 -> debit 5 -> balance=-5   overdrawn
//
// With a lock:
//   req1: lock -> read balance=5 -> debit 5 -> balance=0 -> unlock
//   req2: wait... -> lock -> read balance=0 -> InsufficientBalance
//
// Acquire: SET key value NX PX ttl
//   - NX: only when the key does not exist (mutual exclusion)
//   - PX: expiry so a crashed holder cannot block the account forever
//   - value: owner token, checked on release
//
// Release: Lua script so "check owner + delete" is atomic.
//
// ============================================================================

var (
	ErrLockFailed  = errors.New("acquire distributed lock failed")
	ErrLockExpired = errors.New("lock expired before release")
)

const unlockScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`

// DistributedLock is a single Redis lock instance.
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock makes one non-blocking attempt.
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock retries TryLock every retryInterval, at most maxRetries times.
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock deletes the key only if this instance still owns it.
//
// Owner check matters when the holder outlives its TTL:
//
//	A locks -> A stalls, key expires -> B locks -> A finishes and unlocks
//
// Without the check A would delete B's lock.
func (l *DistributedLock) Unlock(ctx context.Context) error {
	deleted, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Int()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrLockExpired
	}
	return nil
}

// ============================================================================
// Per-account locker backed by Redis
// ============================================================================

// RedisLocker hands out one DistributedLock per account key, so different
// accounts never wait on each other while every server instance agrees on
// who holds a given account.
type RedisLocker struct {
	client        *redis.Client
	ttl           time.Duration
	retryInterval time.Duration
	maxRetries    int
}

func NewRedisLocker(client *redis.Client, ttl, retryInterval time.Duration, maxRetries int) *RedisLocker {
	return &RedisLocker{
		client:        client,
		ttl:           ttl,
		retryInterval: retryInterval,
		maxRetries:    maxRetries,
	}
}

// AccountLockKey is the Redis key guarding one account.
func AccountLockKey(accountID string) string {
	return fmt.Sprintf("rewardledger:lock:account:%s", accountID)
}

func (r *RedisLocker) Acquire(ctx context.Context, key string) (Release, error) {
	l := NewDistributedLock(r.client, AccountLockKey(key), uuid.NewString(), r.ttl)
	if err := l.Lock(ctx, r.retryInterval, r.maxRetries); err != nil {
		return nil, fmt.Errorf("lock account %s: %w", key, err)
	}
	return onceRelease(func() {
		// the request context may already be cancelled; unlock regardless
		unlockCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.Unlock(unlockCtx)
	}), nil
}
