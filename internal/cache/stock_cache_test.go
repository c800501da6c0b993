package cache

import (
	"context"
	"testing"
	"time"

	"github.com/dropkit/checkout/internal/clock"
	"github.com/dropkit/checkout/internal/domain"
	"github.com/dropkit/checkout/internal/testutil"
	"go.uber.org/zap"
)

type fakeSource struct {
	available map[int64]int
	err       error
	calls     int
}

func (f *fakeSource) AvailableStock(ctx context.Context, productID int64, now time.Time) (int, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	n, ok := f.available[productID]
	if !ok {
		return 0, domain.ErrProductNotFound
	}
	return n, nil
}

func newTestCache(t *testing.T, source *fakeSource) *StockCache {
	t.Helper()
	client := testutil.NewTestRedis(t)
	clk := clock.NewFixed(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	return NewStockCache(client, source, clk, 5*time.Second, zap.NewNop())
}

func TestStockCache_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("miss computes and caches", func(t *testing.T) {
		source := &fakeSource{available: map[int64]int{1: 7}}
		cache := newTestCache(t, source)

		got, err := cache.Get(ctx, 1)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got != 7 {
			t.Fatalf("expected 7, got %d", got)
		}

		// The store changes underneath; the cached value is served until
		// the TTL or an invalidation.
		source.available[1] = 3
		got, err = cache.Get(ctx, 1)
		if err != nil {
			t.Fatalf("Get cached: %v", err)
		}
		if got != 7 {
			t.Fatalf("expected cached 7, got %d", got)
		}
		if source.calls != 1 {
			t.Fatalf("expected one source call, got %d", source.calls)
		}
	})

	t.Run("invalidate forces recompute", func(t *testing.T) {
		source := &fakeSource{available: map[int64]int{1: 7}}
		cache := newTestCache(t, source)

		if _, err := cache.Get(ctx, 1); err != nil {
			t.Fatalf("Get: %v", err)
		}
		source.available[1] = 3
		cache.Invalidate(ctx, 1)

		got, err := cache.Get(ctx, 1)
		if err != nil {
			t.Fatalf("Get after invalidate: %v", err)
		}
		if got != 3 {
			t.Fatalf("expected recomputed 3, got %d", got)
		}
	})

	t.Run("unknown product reads as zero", func(t *testing.T) {
		source := &fakeSource{available: map[int64]int{}}
		cache := newTestCache(t, source)

		got, err := cache.Get(ctx, 42)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got != 0 {
			t.Fatalf("expected 0, got %d", got)
		}
	})

	t.Run("negative availability clamps to zero", func(t *testing.T) {
		source := &fakeSource{available: map[int64]int{1: -2}}
		cache := newTestCache(t, source)

		got, err := cache.Get(ctx, 1)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got != 0 {
			t.Fatalf("expected clamp to 0, got %d", got)
		}
	})
}
