// README: Test helper for Redis-backed tests (skip when CARPOOL_TEST_REDIS is unset).
package redistest

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
)

// Setup connects to CARPOOL_TEST_REDIS and returns a client whose keys are
// removed when the test ends.
func Setup(t *testing.T, keys ...string) *redis.Client {
	t.Helper()

	addr := os.Getenv("CARPOOL_TEST_REDIS")
	if addr == "" {
		t.Skip("CARPOOL_TEST_REDIS not set; skipping Redis-backed test")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("redis ping: %v", err)
	}
	if len(keys) > 0 {
		client.Del(ctx, keys...)
	}
	t.Cleanup(func() {
		if len(keys) > 0 {
			client.Del(context.Background(), keys...)
		}
		_ = client.Close()
	})
	return client
}
