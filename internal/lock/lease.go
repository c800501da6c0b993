package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Lease is a named mutual-exclusion lease for background jobs, so only one
// sweeper instance runs a given job at a time across the deployment.
type Lease struct {
	client *redis.Client
	logger *zap.Logger
}

func NewLease(client *redis.Client, logger *zap.Logger) *Lease {
	return &Lease{client: client, logger: logger}
}

func leaseKey(name string) string {
	return fmt.Sprintf("checkout:lease:%s", name)
}

// TryAcquire attempts to take the named lease for ttl without blocking.
// A Redis fault reads as "not acquired": a missed sweep is cheaper than two
// concurrent ones, and correctness never depends on the sweeper anyway.
func (l *Lease) TryAcquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context), bool) {
	key := leaseKey(name)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		l.logger.Warn("lease acquire failed", zap.String("name", name), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	release := func(ctx context.Context) {
		if err := l.client.Eval(ctx, luaReleaseIfMatch, []string{key}, token).Err(); err != nil {
			l.logger.Warn("lease release failed, key will expire",
				zap.String("name", name), zap.Error(err))
		}
	}
	return release, true
}
