package cleanup

import (
	"context"
	"sync"
	"time"

	errors "github.com/Laisky/errors/v2"

	rlib "github.com/Laisky/campus-portal/library/db/redis"
)

// Locker grants one holder of key at a time until ttl passes or the lease is released.
// lease is only set when ok is true.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (lease *rlib.Lease, ok bool, err error)
}

// MemoryLocker is a Locker scoped to the current process.
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]memoryLock
	seq   uint64
	clock func() time.Time
}

type memoryLock struct {
	token   uint64
	expires time.Time
}

// NewMemoryLocker constructs an in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		held:  map[string]memoryLock{},
		clock: time.Now,
	}
}

// TryLock takes key unless another unexpired holder has it.
func (l *MemoryLocker) TryLock(_ context.Context, key string, ttl time.Duration) (*rlib.Lease, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if cur, ok := l.held[key]; ok && now.Before(cur.expires) {
		return nil, false, nil
	}

	l.seq++
	token := l.seq
	l.held[key] = memoryLock{token: token, expires: now.Add(ttl)}

	return &rlib.Lease{
		Refresh: func(_ context.Context, ttl time.Duration) error {
			l.mu.Lock()
			defer l.mu.Unlock()
			now := l.clock()
			cur, ok := l.held[key]
			if !ok || cur.token != token || !now.Before(cur.expires) {
				return errors.Wrapf(rlib.ErrLockLost, "%s", key)
			}
			l.held[key] = memoryLock{token: token, expires: now.Add(ttl)}
			return nil
		},
		Release: func(context.Context) error {
			l.mu.Lock()
			defer l.mu.Unlock()
			if cur, ok := l.held[key]; ok && cur.token == token {
				delete(l.held, key)
			}
			return nil
		},
	}, true, nil
}
