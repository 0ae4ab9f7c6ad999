package coord

import (
	"context"
	"errors"
	"github.com/redis/go-redis/v9"
	"herald_bot/shared"
	"time"
)

// Compare the stored token with ours, then act. Atomic on the server.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type redisLock struct {
	rdb    redis.UniversalClient
	logger shared.ILogger
	token  string
}

func NewRedisLock(url string, logger shared.ILogger) (ILock, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return NewRedisLockWithClient(redis.NewClient(opt), logger), nil
}

func NewRedisLockWithClient(rdb redis.UniversalClient, logger shared.ILogger) ILock {
	return &redisLock{
		rdb:    rdb,
		logger: logger,
		token:  newToken(),
	}
}

func (rl *redisLock) Token() string {
	return rl.token
}

func (rl *redisLock) Acquire(ctx context.Context, key string, ttl time.Duration) bool {
	ok, err := rl.rdb.SetNX(ctx, key, rl.token, ttl).Result()
	if err != nil {
		rl.logger.Warnf("Lock acquire failed for %s: %v", key, err)
		return false
	}
	return ok
}

func (rl *redisLock) Renew(ctx context.Context, key string, ttl time.Duration) bool {
	res, err := renewScript.Run(ctx, rl.rdb, []string{key}, rl.token, ttl.Milliseconds()).Int64()
	if err != nil {
		rl.logger.Warnf("Lock renew failed for %s: %v", key, err)
		return false
	}
	return res == 1
}

func (rl *redisLock) Release(ctx context.Context, key string) bool {
	res, err := releaseScript.Run(ctx, rl.rdb, []string{key}, rl.token).Int64()
	if err != nil {
		rl.logger.Warnf("Lock release failed for %s: %v", key, err)
		return false
	}
	return res == 1
}

func (rl *redisLock) Holder(ctx context.Context, key string) string {
	val, err := rl.rdb.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			rl.logger.Warnf("Lock holder lookup failed for %s: %v", key, err)
		}
		return ""
	}
	return val
}

func (rl *redisLock) Available(ctx context.Context) bool {
	if err := rl.rdb.Ping(ctx).Err(); err != nil {
		rl.logger.Warnf("Lock store unavailable: %v", err)
		return false
	}
	return true
}
