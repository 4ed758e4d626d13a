package lock

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "satsfox:lock:"

// releaseScript deletes the key only if it still holds our token, so an
// expired lock re-acquired by another replica is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker layers a Redis SET NX lock on top of a KeyedMutex. If Redis is
// unreachable the lock is reported as held elsewhere; callers retry later.
type RedisLocker struct {
	client *redis.Client
	local  *KeyedMutex
}

// NewRedisLocker creates a distributed locker. A nil client yields a
// process-local locker.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, local: NewKeyedMutex()}
}

// TryLock implements Locker.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	unlockLocal, ok, _ := l.local.TryLock(ctx, key, ttl)
	if !ok {
		return nil, false, nil
	}
	if l.client == nil {
		return unlockLocal, true, nil
	}

	token := uuid.NewString()
	redisKey := redisKeyPrefix + key
	acquired, err := l.client.SetNX(ctx, redisKey, token, ttl).Result()
	if err != nil {
		log.Warnf("[Lock] Redis unavailable for %s, refusing lock: %v", key, err)
		unlockLocal()
		return nil, false, nil
	}
	if !acquired {
		unlockLocal()
		return nil, false, nil
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err(); err != nil {
			log.Warnf("[Lock] Failed to release %s: %v", key, err)
		}
		unlockLocal()
	}, true, nil
}
