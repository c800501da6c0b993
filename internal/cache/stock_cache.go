package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dropkit/checkout/internal/clock"
	"github.com/dropkit/checkout/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// AvailableStockSource computes available stock from the authoritative
// store: physical stock minus active, unexpired hold quantities.
type AvailableStockSource interface {
	AvailableStock(ctx context.Context, productID int64, now time.Time) (int, error)
}

// StockCache is a short-TTL read-through cache of available stock per
// product. It serves public reads only; admission decisions always recompute
// under row locks. Cache faults are logged and answered from the store, so
// the cache can degrade but never lie for longer than the TTL window.
type StockCache struct {
	client *redis.Client
	source AvailableStockSource
	clock  clock.Clock
	ttl    time.Duration
	logger *zap.Logger
}

const defaultTTL = 5 * time.Second

func NewStockCache(client *redis.Client, source AvailableStockSource, clk clock.Clock, ttl time.Duration, logger *zap.Logger) *StockCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &StockCache{
		client: client,
		source: source,
		clock:  clk,
		ttl:    ttl,
		logger: logger,
	}
}

func stockKey(productID int64) string {
	return fmt.Sprintf("checkout:stock:available:%d", productID)
}

// Get returns a possibly stale available-stock value. On a miss or cache
// fault it computes from the store and repopulates. A missing product reads
// as zero availability.
func (c *StockCache) Get(ctx context.Context, productID int64) (int, error) {
	key := stockKey(productID)

	val, err := c.client.Get(ctx, key).Result()
	if err == nil {
		if n, perr := strconv.Atoi(val); perr == nil && n >= 0 {
			return n, nil
		}
		c.logger.Warn("stock cache holds malformed value, recomputing",
			zap.Int64("product_id", productID), zap.String("value", val))
	} else if err != redis.Nil {
		c.logger.Warn("stock cache read failed, falling back to store",
			zap.Int64("product_id", productID), zap.Error(err))
	}

	available, err := c.source.AvailableStock(ctx, productID, c.clock.Now())
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if available < 0 {
		available = 0
	}

	if err := c.client.Set(ctx, key, strconv.Itoa(available), c.ttl).Err(); err != nil {
		c.logger.Warn("stock cache populate failed",
			zap.Int64("product_id", productID), zap.Error(err))
	}
	return available, nil
}

// Invalidate drops the cached value for a product. Best-effort and
// idempotent: a fault is logged and the TTL self-heals.
func (c *StockCache) Invalidate(ctx context.Context, productID int64) {
	if err := c.client.Del(ctx, stockKey(productID)).Err(); err != nil {
		c.logger.Warn("stock cache invalidate failed",
			zap.Int64("product_id", productID), zap.Error(err))
	}
}
