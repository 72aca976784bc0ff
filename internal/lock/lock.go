// Package lock provides a Redis-backed mutual exclusion primitive used to
// keep a single sweeper tick running across application instances.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrEmptyKey   = errors.New("lock key cannot be empty")
	ErrNotHeld    = errors.New("lock was not held or already expired")
	ErrNilHandle  = errors.New("lock handle is nil")
	defaultExpiry = 30 * time.Second
)

// Handle is an acquired lock.
type Handle interface {
	Unlock(ctx context.Context) error
}

// Locker acquires named locks without waiting.
type Locker interface {
	// TryLock returns (handle, true, nil) on success and (nil, false, nil)
	// when another holder owns the key. Other failures are returned as errors.
	TryLock(ctx context.Context, key string) (Handle, bool, error)
}

// RedisLocker implements Locker with the redsync RedLock algorithm.
type RedisLocker struct {
	rs     *redsync.Redsync
	expiry time.Duration
	logger *zap.Logger
}

// NewRedisLocker builds a locker on client. expiry bounds how long a crashed
// holder keeps the lock; zero selects 30s.
func NewRedisLocker(client redis.UniversalClient, expiry time.Duration, logger *zap.Logger) *RedisLocker {
	if expiry <= 0 {
		expiry = defaultExpiry
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{
		rs:     redsync.New(goredis.NewPool(client)),
		expiry: expiry,
		logger: logger,
	}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string) (Handle, bool, error) {
	if strings.TrimSpace(key) == "" {
		return nil, false, ErrEmptyKey
	}

	mutex := l.rs.NewMutex(
		key,
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(1),
	)

	if err := mutex.LockContext(ctx); err != nil {
		if isContention(err) {
			l.logger.Debug("lock already held", zap.String("key", key))
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}

	return &handle{mutex: mutex, logger: l.logger}, true, nil
}

func isContention(err error) bool {
	var taken *redsync.ErrTaken
	if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "lock already taken") || strings.Contains(msg, "failed to acquire lock")
}

type handle struct {
	mutex  *redsync.Mutex
	logger *zap.Logger
}

func (h *handle) Unlock(ctx context.Context) error {
	if h == nil || h.mutex == nil {
		return ErrNilHandle
	}
	ok, err := h.mutex.UnlockContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if !ok {
		h.logger.Warn("lock was not held or already expired", zap.String("key", h.mutex.Name()))
		return ErrNotHeld
	}
	return nil
}
