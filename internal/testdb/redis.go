//go:build integration

package testdb

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const redisImage = "redis:7-alpine"

// OpenRedis returns a client for REDIS_URL, or for a disposable Redis
// container when it is unset.
func OpenRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	var opts *redis.Options
	if url := os.Getenv("REDIS_URL"); url != "" {
		var err error
		if opts, err = redis.ParseURL(url); err != nil {
			t.Fatalf("invalid REDIS_URL: %v", err)
		}
	} else {
		ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        redisImage,
				ExposedPorts: []string{"6379/tcp"},
				WaitingFor:   wait.ForLog("Ready to accept connections"),
			},
			Started: true,
		})
		t.Cleanup(func() {
			if err := testcontainers.TerminateContainer(ctr); err != nil {
				t.Logf("failed to terminate redis container: %v", err)
			}
		})
		if err != nil {
			t.Skipf("redis container unavailable: %v", err)
		}
		endpoint, err := ctr.Endpoint(ctx, "")
		if err != nil {
			t.Fatalf("failed to get redis endpoint: %v", err)
		}
		opts = &redis.Options{Addr: endpoint}
	}

	client := redis.NewClient(opts)
	t.Cleanup(func() { client.Close() })
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("failed to ping redis: %v", err)
	}
	return client
}
