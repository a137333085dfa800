package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Compare-and-delete: a holder whose lock expired must not remove the lock
// somebody else acquired since.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

type RedisLocker struct {
	client        redis.UniversalClient
	ttl           time.Duration
	retryInterval time.Duration
	maxRetries    int
	logger        *zap.Logger
}

func NewRedisLocker(client redis.UniversalClient, ttl, retryInterval time.Duration, maxRetries int, logger *zap.Logger) *RedisLocker {
	return &RedisLocker{
		client:        client,
		ttl:           ttl,
		retryInterval: retryInterval,
		maxRetries:    maxRetries,
		logger:        logger.Named("lock"),
	}
}

func (l *RedisLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	token := uuid.NewString()
	keys = normalize(keys)
	held := make([]string, 0, len(keys))
	for _, key := range keys {
		if err := l.acquire(ctx, key, token); err != nil {
			l.release(held, token)
			return nil, err
		}
		held = append(held, key)
	}
	return once(func() { l.release(held, token) }), nil
}

func (l *RedisLocker) acquire(ctx context.Context, key, token string) error {
	for i := 0; i < l.maxRetries; i++ {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retryInterval):
		}
	}
	return ErrLockFailed
}

// release runs on a fresh context so a cancelled request still frees its
// keys.
func (l *RedisLocker) release(keys []string, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := len(keys) - 1; i >= 0; i-- {
		if err := unlockScript.Run(ctx, l.client, []string{keys[i]}, token).Err(); err != nil {
			l.logger.Warn("releasing lock failed", zap.String("key", keys[i]), zap.Error(err))
		}
	}
}
