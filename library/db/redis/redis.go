package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Laisky/errors/v2"
	gredis "github.com/Laisky/go-redis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned when a key does not exist
	ErrNotFound = errors.New("redis key not found")
	// ErrLockLost is returned by Lease.Refresh once the lock expired or went to another holder
	ErrLockLost = errors.New("lock lost")
)

// releaseLockScript deletes the lock only if it is still held by the caller's token.
const releaseLockScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// refreshLockScript extends the lock only if it is still held by the caller's token.
const refreshLockScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`

// Lease is a held lock.
type Lease struct {
	// Refresh extends the lock to ttl from now, or returns ErrLockLost.
	Refresh func(ctx context.Context, ttl time.Duration) error
	// Release gives the lock up. Releasing a lost lock is a no-op.
	Release func(ctx context.Context) error
}

// DB is a wrapper for go-redis
type DB struct {
	client *redis.Client
	db     *gredis.Utils
}

// NewDB creates a new DB instance
func NewDB(opt *redis.Options) *DB {
	rdb := redis.NewClient(opt)
	rutils := gredis.NewRedisUtils(rdb)

	return &DB{
		client: rdb,
		db:     rutils,
	}
}

// Ping checks the connection
func (db *DB) Ping(ctx context.Context) error {
	return errors.Wrap(db.client.Ping(ctx).Err(), "ping redis")
}

// TryLock sets key to a random token if it does not exist yet.
// ok is false when the lock is held by someone else; lease is only set when ok.
func (db *DB) TryLock(ctx context.Context, key string, ttl time.Duration) (lease *Lease, ok bool, err error) {
	token := uuid.NewString()
	ok, err = db.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, errors.Wrapf(err, "setnx %s", key)
	}
	if !ok {
		return nil, false, nil
	}

	return &Lease{
		Refresh: func(ctx context.Context, ttl time.Duration) error {
			n, err := db.client.Eval(ctx, refreshLockScript, []string{key}, token, ttl.Milliseconds()).Int()
			if err != nil {
				return errors.Wrapf(err, "refresh lock %s", key)
			}
			if n == 0 {
				return errors.Wrapf(ErrLockLost, "%s", key)
			}
			return nil
		},
		Release: func(ctx context.Context) error {
			if err := db.client.Eval(ctx, releaseLockScript, []string{key}, token).Err(); err != nil {
				return errors.Wrapf(err, "release lock %s", key)
			}
			return nil
		},
	}, true, nil
}

// SetJSON stores v as json under key
func (db *DB) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal")
	}

	if err = db.db.SetItem(ctx, key, string(payload), ttl); err != nil {
		return errors.Wrapf(err, "set %s", key)
	}
	return nil
}

// GetJSON loads the json value under key into v, returns ErrNotFound if missing
func (db *DB) GetJSON(ctx context.Context, key string, v any) error {
	payload, err := db.db.GetItem(ctx, key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return errors.Wrapf(err, "get %s", key)
	}

	if err = json.Unmarshal([]byte(payload), v); err != nil {
		return errors.Wrapf(err, "unmarshal %s", key)
	}
	return nil
}
