package locker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const retryInterval = 50 * time.Millisecond

// Redis serializes across service instances. The TTL bounds how long a crashed
// holder can block others; callers wait up to the same TTL to obtain a key.
type Redis struct {
	client *redislock.Client
	ttl    time.Duration
	logger logrus.FieldLogger
}

func NewRedis(rdb redis.UniversalClient, ttl time.Duration, logger logrus.FieldLogger) *Redis {
	return &Redis{client: redislock.New(rdb), ttl: ttl, logger: logger}
}

// DialRedis connects and pings once; startup fails fast instead of retrying forever.
func DialRedis(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		PoolSize: 50,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

func (r *Redis) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = normalize(keys)
	opts := &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(retryInterval), int(r.ttl/retryInterval)),
	}

	held := make([]*redislock.Lock, 0, len(keys))
	for _, k := range keys {
		lock, err := r.client.Obtain(ctx, "lock:"+k, r.ttl, opts)
		if err != nil {
			r.releaseAll(held)
			if errors.Is(err, redislock.ErrNotObtained) {
				return nil, fmt.Errorf("lock %s busy: %w", k, err)
			}
			return nil, fmt.Errorf("lock %s: %w", k, err)
		}
		held = append(held, lock)
	}

	var once sync.Once
	return func() { once.Do(func() { r.releaseAll(held) }) }, nil
}

func (r *Redis) releaseAll(locks []*redislock.Lock) {
	// the caller's ctx may already be cancelled, release must still go out
	ctx := context.Background()
	for i := len(locks) - 1; i >= 0; i-- {
		if err := locks[i].Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			r.logger.WithFields(logrus.Fields{
				"module": "locker",
				"key":    locks[i].Key(),
			}).Warn("failed to release redis lock: " + err.Error())
		}
	}
}
