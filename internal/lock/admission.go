package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/dropkit/checkout/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// luaReleaseIfMatch deletes the lock only when its value still matches our
// token, so a lock that timed out and was re-acquired is never stolen back.
const luaReleaseIfMatch = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`

const acquirePollInterval = 25 * time.Millisecond

// AdmissionLock is the advisory per-product lock taken in front of hold
// creation. It serializes the burst so most contenders queue here instead of
// on the product row. It is not a correctness gate: the DB row lock is. When
// failOpen is set, Redis faults log and fall through to DB-level locking.
type AdmissionLock struct {
	client   *redis.Client
	timeout  time.Duration
	wait     time.Duration
	failOpen bool
	logger   *zap.Logger
}

func NewAdmissionLock(client *redis.Client, timeout, wait time.Duration, failOpen bool, logger *zap.Logger) *AdmissionLock {
	return &AdmissionLock{
		client:   client,
		timeout:  timeout,
		wait:     wait,
		failOpen: failOpen,
		logger:   logger,
	}
}

func admissionKey(productID int64) string {
	return fmt.Sprintf("checkout:hold_lock:product:%d", productID)
}

func noopRelease(context.Context) {}

// Acquire blocks up to the configured wait for the per-product lock and
// returns a release func. Overrunning the wait surfaces ErrSystemBusy. The
// lock key expires after the hard timeout so a crashed holder cannot wedge
// the product.
func (l *AdmissionLock) Acquire(ctx context.Context, productID int64) (func(context.Context), error) {
	key := admissionKey(productID)
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.timeout).Result()
		if err != nil {
			if l.failOpen {
				l.logger.Warn("admission lock unavailable, proceeding on db locks only",
					zap.Int64("product_id", productID), zap.Error(err))
				return noopRelease, nil
			}
			return nil, domain.ErrSystemBusy
		}
		if ok {
			return l.releaseFunc(key, token, productID), nil
		}
		if time.Now().After(deadline) {
			return nil, domain.ErrSystemBusy
		}

		timer := time.NewTimer(acquirePollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *AdmissionLock) releaseFunc(key, token string, productID int64) func(context.Context) {
	return func(ctx context.Context) {
		if err := l.client.Eval(ctx, luaReleaseIfMatch, []string{key}, token).Err(); err != nil {
			l.logger.Warn("admission lock release failed, key will expire",
				zap.Int64("product_id", productID), zap.Error(err))
		}
	}
}
