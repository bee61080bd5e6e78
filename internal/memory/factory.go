package memory

import (
	"context"
	"strings"
	"time"
)

// NewStore picks a backend from configured URLs: Redis when REDIS_URL is
// set, otherwise Postgres when DATABASE_URL is set, otherwise in-memory.
func NewStore(ctx context.Context, redisURL, databaseURL string, ttl time.Duration) (Store, error) {
	if strings.TrimSpace(redisURL) != "" {
		return NewRedisStore(redisURL, ttl)
	}
	if strings.TrimSpace(databaseURL) != "" {
		return NewPostgresStore(ctx, databaseURL, ttl)
	}
	return NewInMemoryStore(ttl), nil
}
