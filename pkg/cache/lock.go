package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotAcquired is returned when another holder owns the key.
var ErrLockNotAcquired = errors.New("cache: lock not acquired")

const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// Locker hands out short-lived advisory locks stored in Redis.
type Locker struct {
	client redis.Cmdable
}

// NewLocker builds a locker on top of the given client.
func NewLocker(client redis.Cmdable) *Locker {
	return &Locker{client: client}
}

// Lock is a held advisory lock. Release only deletes the key while the token still matches, so an
// expired lock taken over by another worker is left alone.
type Lock struct {
	client redis.Cmdable
	key    string
	token  string
}

// Acquire sets key with NX and the given TTL.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}
	return &Lock{client: l.client, key: key, token: token}, nil
}

// Release drops the lock if this holder still owns it.
func (lk *Lock) Release(ctx context.Context) error {
	if lk == nil {
		return nil
	}
	return lk.client.Eval(ctx, releaseScript, []string{lk.key}, lk.token).Err()
}

// Token exposes the owner token.
func (lk *Lock) Token() string {
	return lk.token
}
