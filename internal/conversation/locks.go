package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serializes mutations per conversation id. Every turn and every
// webhook reconciliation for the same conversation runs under this lock so
// state transitions, context merges and draft field merges cannot interleave.
type Locker interface {
	// Acquire blocks until the conversation lock is held or ctx ends.
	// The returned release function is safe to call exactly once.
	Acquire(ctx context.Context, conversationID uuid.UUID) (release func(), err error)
}

// RedisLocker implements Locker with SET NX PX, which also serializes
// writers across API instances. The lock value is a per-acquisition token
// so an expired lock is never released by a stale holder.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisLocker creates a distributed per-conversation locker.
func NewRedisLocker(client *redis.Client, ttl, retry time.Duration) *RedisLocker {
	if client == nil {
		panic("conversation: redis client required")
	}
	if ttl <= 0 {
		ttl = 45 * time.Second
	}
	if retry <= 0 {
		retry = 100 * time.Millisecond
	}
	return &RedisLocker{client: client, ttl: ttl, retry: retry}
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

func lockKey(id uuid.UUID) string {
	return "conv:lock:" + id.String()
}

// Acquire spins with a fixed retry interval until the key is set or ctx ends.
func (l *RedisLocker) Acquire(ctx context.Context, conversationID uuid.UUID) (func(), error) {
	key := lockKey(conversationID)
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ErrLockTimeout
		case <-time.After(l.retry):
		}
	}
}

// MemoryLocker is a single-process Locker used in tests and development.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewMemoryLocker creates an in-process keyed locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[uuid.UUID]*sync.Mutex)}
}

// Acquire locks the per-conversation mutex, creating it on first use.
func (l *MemoryLocker) Acquire(ctx context.Context, conversationID uuid.UUID) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[conversationID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[conversationID] = m
	}
	l.mu.Unlock()

	acquired := make(chan struct{})
	go func() {
		m.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		return m.Unlock, nil
	case <-ctx.Done():
		// The goroutine will still take the mutex; release it once it does.
		go func() {
			<-acquired
			m.Unlock()
		}()
		return nil, ErrLockTimeout
	}
}
