package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "chatkeep:sweep:"

// RedisThrottle shares admissions between server instances through SET NX with a TTL.
type RedisThrottle struct {
	client *redis.Client
	config *Config
}

func NewRedisThrottle(client *redis.Client, config *Config) (*RedisThrottle, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &RedisThrottle{client: client, config: config}, nil
}

// Allow admits key if no admission is recorded in Redis. The record expires after the interval.
func (t *RedisThrottle) Allow(ctx context.Context, key string) (bool, error) {
	ok, err := t.client.SetNX(ctx, redisKeyPrefix+key, 1, t.config.Interval).Result()
	if err != nil {
		return false, fmt.Errorf("redis throttle: %w", err)
	}
	return ok, nil
}
