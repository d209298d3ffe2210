// Package health provides readiness checks for the audit service's
// dependencies: Postgres, Redis and the change-stream connection.
package health

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// redisPinger is the subset of *redis.Client used by RedisChecker.
type redisPinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisChecker implements health checking for Redis.
type RedisChecker struct {
	client redisPinger
}

// NewRedisChecker creates a new Redis health checker.
func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

// HealthCheck sends a PING.
func (r *RedisChecker) HealthCheck(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
