// Package lock provides mutual exclusion across API and worker replicas.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

var ErrNotAcquired = errors.New("lock not acquired")

type Lease interface {
	Extend(ctx context.Context) error
	Release(ctx context.Context) error
}

type Locker interface {
	// Acquire waits until key is held, ctx is done or retries run out.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
	// TryAcquire makes exactly one attempt.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

type RedisLocker struct {
	rs         *redsync.Redsync
	tries      int
	retryDelay time.Duration
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{
		rs:         redsync.New(goredis.NewPool(client)),
		tries:      40,
		retryDelay: 50 * time.Millisecond,
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	return l.lock(ctx, key, ttl, l.tries)
}

func (l *RedisLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	return l.lock(ctx, key, ttl, 1)
}

func (l *RedisLocker) lock(ctx context.Context, key string, ttl time.Duration, tries int) (Lease, error) {
	m := l.rs.NewMutex(key,
		redsync.WithExpiry(ttl),
		redsync.WithTries(tries),
		redsync.WithRetryDelay(l.retryDelay),
	)
	if err := m.LockContext(ctx); err != nil {
		if contended(err) {
			return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, err)
		}
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	return &redisLease{m: m}, nil
}

// contended reports whether redsync gave up because someone else holds the
// key, as opposed to redis being unreachable.
func contended(err error) bool {
	if errors.Is(err, redsync.ErrFailed) {
		return true
	}
	var taken *redsync.ErrTaken
	if errors.As(err, &taken) {
		return true
	}
	var redisErr *redsync.RedisError
	if errors.As(err, &redisErr) {
		return false
	}
	var nodeTaken *redsync.ErrNodeTaken
	return errors.As(err, &nodeTaken)
}

type redisLease struct {
	m *redsync.Mutex
}

func (l *redisLease) Extend(ctx context.Context) error {
	ok, err := l.m.ExtendContext(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("extend %s: lease lost", l.m.Name())
	}
	return nil
}

func (l *redisLease) Release(ctx context.Context) error {
	_, err := l.m.UnlockContext(ctx)
	return err
}

// LocalLocker serialises holders inside one process. Used when no redis is
// configured and in tests.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]chan struct{})}
}

func (l *LocalLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

func (l *LocalLocker) Acquire(ctx context.Context, key string, _ time.Duration) (Lease, error) {
	ch := l.slot(key)
	select {
	case ch <- struct{}{}:
		return &localLease{ch: ch}, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
	}
}

func (l *LocalLocker) TryAcquire(_ context.Context, key string, _ time.Duration) (Lease, error) {
	ch := l.slot(key)
	select {
	case ch <- struct{}{}:
		return &localLease{ch: ch}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotAcquired, key)
	}
}

type localLease struct {
	ch   chan struct{}
	once sync.Once
}

func (l *localLease) Extend(context.Context) error { return nil }

func (l *localLease) Release(context.Context) error {
	l.once.Do(func() { <-l.ch })
	return nil
}
