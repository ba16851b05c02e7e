package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisMarkers keeps markers in Redis with native expiry.
type RedisMarkers struct {
	client *redis.Client
}

func NewRedisMarkers(client *redis.Client) *RedisMarkers {
	return &RedisMarkers{client: client}
}

func (r *RedisMarkers) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}
