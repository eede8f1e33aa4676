// Package lock serializes work on a named scope across goroutines and processes.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dbaccountsync/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Handle is a held lock.
type Handle interface {
	Unlock() error
}

// Locker hands out scope locks. TryLock never blocks; ok is false when the
// scope is already held.
type Locker interface {
	TryLock(ctx context.Context, key string) (h Handle, ok bool, err error)
}

const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

const renewScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end`

// RedisLocker issues RedisLock handles.
type RedisLocker struct {
	client *redis.Client
	expiry time.Duration
	prefix string
}

// NewRedisLocker creates a locker whose keys expire after expiry unless renewed.
func NewRedisLocker(client *redis.Client, expiry time.Duration) *RedisLocker {
	if expiry <= 0 {
		expiry = 5 * time.Minute
	}
	return &RedisLocker{client: client, expiry: expiry, prefix: "dbaccountsync:lock:"}
}

// NewRedisLockerFromURL parses a redis:// URL.
func NewRedisLockerFromURL(url string, expiry time.Duration) (*RedisLocker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return NewRedisLocker(redis.NewClient(opt), expiry), nil
}

func (l *RedisLocker) TryLock(ctx context.Context, key string) (Handle, bool, error) {
	rl := &RedisLock{
		client: l.client,
		key:    l.prefix + key,
		value:  uuid.New().String(),
		expiry: l.expiry,
	}
	ok, err := rl.tryLock(ctx)
	if err != nil || !ok {
		return nil, false, err
	}
	return rl, true, nil
}

// RedisLock is a SET NX lock owned by a random token and renewed every expiry/3.
type RedisLock struct {
	client   *redis.Client
	key      string
	value    string
	expiry   time.Duration
	cancelFn context.CancelFunc
}

func (l *RedisLock) tryLock(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.value, l.expiry).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}
	if ok {
		renewCtx, cancel := context.WithCancel(context.Background())
		l.cancelFn = cancel
		go l.autoRenew(renewCtx)
	}
	return ok, nil
}

// Unlock releases the lock if this handle still owns it.
func (l *RedisLock) Unlock() error {
	if l.cancelFn != nil {
		l.cancelFn()
	}
	result, err := l.client.Eval(context.Background(), unlockScript, []string{l.key}, l.value).Result()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	if result == int64(0) {
		logger.Warnf("Lock %s was no longer held by this owner", l.key)
	}
	return nil
}

func (l *RedisLock) autoRenew(ctx context.Context) {
	ticker := time.NewTicker(l.expiry / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			result, err := l.client.Eval(ctx, renewScript, []string{l.key}, l.value, l.expiry.Milliseconds()).Result()
			if err != nil {
				if ctx.Err() == nil {
					logger.Warnf("Failed to renew lock %s: %v", l.key, err)
				}
				return
			}
			if result == int64(0) {
				logger.Warnf("Lost lock %s, stopping renewal", l.key)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// LocalLocker serializes scopes within this process only.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalLocker creates an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) TryLock(_ context.Context, key string) (Handle, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, false, nil
	}
	l.held[key] = struct{}{}
	return &localHandle{owner: l, key: key}, true, nil
}

type localHandle struct {
	owner *LocalLocker
	key   string
	once  sync.Once
}

func (h *localHandle) Unlock() error {
	h.once.Do(func() {
		h.owner.mu.Lock()
		delete(h.owner.held, h.key)
		h.owner.mu.Unlock()
	})
	return nil
}

// New returns a RedisLocker when url is set and a LocalLocker otherwise. An
// unparsable url falls back to the local locker.
func New(url string, expiry time.Duration) Locker {
	if url == "" {
		return NewLocalLocker()
	}
	l, err := NewRedisLockerFromURL(url, expiry)
	if err != nil {
		logger.Warnf("Using in-process scope lock: %v", err)
		return NewLocalLocker()
	}
	return l
}
