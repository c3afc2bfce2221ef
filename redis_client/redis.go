package redis_client

import (
	"context"
	"time"

	"github.com/Strum355/log"
	"github.com/redis/go-redis/v9"
)

// New creates a client for addr and checks that the server answers.
// An unreachable server is logged, not fatal; callers degrade to uncached lookups.
func New(ctx context.Context, addr string) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.WithError(err).Warn("Redis is not reachable at " + addr)
	}
	return rdb
}
