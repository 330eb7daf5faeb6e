package reaper

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// DefaultLockKey is shared by every replica of the service.
const DefaultLockKey = "usertokens:reaper:lock"

// DefaultLockTTL is used when NewRedisLocker gets a non-positive ttl.
const DefaultLockTTL = time.Minute

// ErrLockLost means the lock expired or was taken over before release.
var ErrLockLost = errors.New("reaper lock lost before release")

// releaseScript deletes the key only if it still holds our owner id.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// RedisLocker is a single instance Redis lock: SET NX with an expiry,
// released with a compare-and-delete script.
type RedisLocker struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
	newID  func() string
}

func NewRedisLocker(client redis.Cmdable, key string, ttl time.Duration) *RedisLocker {
	if key == "" {
		key = DefaultLockKey
	}
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RedisLocker{client: client, key: key, ttl: ttl, newID: uuid.NewString}
}

func (l *RedisLocker) TryLock(ctx context.Context) (func(context.Context) error, bool, error) {
	id := l.newID()

	ok, err := l.client.SetNX(ctx, l.key, id, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	unlock := func(ctx context.Context) error {
		n, err := l.client.Eval(ctx, releaseScript, []string{l.key}, id).Int64()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrLockLost
		}
		return nil
	}
	return unlock, true, nil
}
