package app

import (
	"context"
	"time"

	"github.com/dropkit/checkout/internal/clock"
	"github.com/dropkit/checkout/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type HoldRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetProductForUpdate(ctx context.Context, productID int64) (domain.Product, error)
	SumActiveHoldsForUpdate(ctx context.Context, productID int64, now time.Time) (int, error)
	CreateHold(ctx context.Context, hold domain.Hold) error
	GetHoldForUpdate(ctx context.Context, holdID string) (domain.Hold, error)
	UpdateHoldStatus(ctx context.Context, holdID string, status domain.HoldStatus) error
	ListDueHolds(ctx context.Context, now time.Time, limit int) ([]domain.Hold, error)
}

// StockInvalidator drops the cached available-stock view after any commit
// that changes availability.
type StockInvalidator interface {
	Invalidate(ctx context.Context, productID int64)
}

// AdmissionLocker serializes hold creation per product ahead of the DB row
// lock. Implementations may fail open; the returned release func must always
// be safe to call.
type AdmissionLocker interface {
	Acquire(ctx context.Context, productID int64) (func(context.Context), error)
}

type HoldService struct {
	repo     HoldRepository
	cache    StockInvalidator
	locker   AdmissionLocker
	clock    clock.Clock
	logger   *zap.Logger
	holdTTL  time.Duration
	maxQty   int
	pageSize int
}

const (
	defaultHoldTTL        = 2 * time.Minute
	defaultMaxHoldQty     = 100
	defaultExpirePageSize = 100
)

type HoldServiceOption func(*HoldService)

// WithHoldTTL overrides the default reservation window for new holds.
func WithHoldTTL(d time.Duration) HoldServiceOption {
	return func(s *HoldService) {
		if d > 0 {
			s.holdTTL = d
		}
	}
}

// WithMaxHoldQty overrides the per-hold quantity ceiling.
func WithMaxHoldQty(n int) HoldServiceOption {
	return func(s *HoldService) {
		if n > 0 {
			s.maxQty = n
		}
	}
}

func NewHoldService(repo HoldRepository, cache StockInvalidator, locker AdmissionLocker, clk clock.Clock, logger *zap.Logger, opts ...HoldServiceOption) *HoldService {
	svc := &HoldService{
		repo:     repo,
		cache:    cache,
		locker:   locker,
		clock:    clk,
		logger:   logger,
		holdTTL:  defaultHoldTTL,
		maxQty:   defaultMaxHoldQty,
		pageSize: defaultExpirePageSize,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type CreateHoldInput struct {
	ProductID int64
	Quantity  int
}

// CreateHold reserves quantity units against the product's available stock.
// The admission lock thins the burst; the authoritative gate is the product
// row lock plus the aggregate lock over that product's active holds, under
// which availability is recomputed before the insert.
func (s *HoldService) CreateHold(ctx context.Context, in CreateHoldInput) (domain.Hold, error) {
	if in.Quantity < 1 || in.Quantity > s.maxQty {
		return domain.Hold{}, domain.ErrInvalidQuantity
	}

	release, err := s.locker.Acquire(ctx, in.ProductID)
	if err != nil {
		return domain.Hold{}, err
	}
	defer release(context.WithoutCancel(ctx))

	now := s.clock.Now()
	var result domain.Hold

	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		product, err := s.repo.GetProductForUpdate(txCtx, in.ProductID)
		if err != nil {
			return err
		}

		heldQty, err := s.repo.SumActiveHoldsForUpdate(txCtx, in.ProductID, now)
		if err != nil {
			return err
		}

		available := product.Stock - heldQty
		if in.Quantity > available {
			return domain.ErrInsufficientStock
		}

		hold := domain.Hold{
			ID:        uuid.NewString(),
			ProductID: in.ProductID,
			Quantity:  in.Quantity,
			Status:    domain.HoldStatusActive,
			ExpiresAt: now.Add(s.holdTTL),
			CreatedAt: now,
		}
		if err := s.repo.CreateHold(txCtx, hold); err != nil {
			return err
		}

		result = hold
		return nil
	})
	if err != nil {
		return domain.Hold{}, err
	}

	s.cache.Invalidate(ctx, in.ProductID)
	return result, nil
}

// ReleaseHold moves an active hold to released, freeing its quantity for new
// admissions. Releasing a hold that already left active is a no-op.
func (s *HoldService) ReleaseHold(ctx context.Context, holdID string) error {
	var productID int64
	released := false

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		hold, err := s.repo.GetHoldForUpdate(txCtx, holdID)
		if err != nil {
			return err
		}
		if hold.Status != domain.HoldStatusActive {
			return nil
		}
		if err := s.repo.UpdateHoldStatus(txCtx, holdID, domain.HoldStatusReleased); err != nil {
			return err
		}
		productID = hold.ProductID
		released = true
		return nil
	})
	if err != nil {
		return err
	}

	if released {
		s.cache.Invalidate(ctx, productID)
	}
	return nil
}

// ExpireDue sweeps active holds whose window has passed. Each hold is
// re-verified under its row lock in its own transaction, so the sweep is
// safe to run concurrently with hold creation and conversion.
func (s *HoldService) ExpireDue(ctx context.Context) (int, error) {
	now := s.clock.Now()
	count := 0

	for {
		page, err := s.repo.ListDueHolds(ctx, now, s.pageSize)
		if err != nil {
			return count, err
		}
		if len(page) == 0 {
			return count, nil
		}

		progress := 0
		for _, due := range page {
			expired, err := s.expireOne(ctx, due.ID, now)
			if err != nil {
				s.logger.Error("expire hold failed",
					zap.String("hold_id", due.ID), zap.Error(err))
				continue
			}
			if expired {
				progress++
				count++
			}
		}

		// Holds that failed re-verification left the predicate through
		// another path; stop once a full page yields nothing.
		if progress == 0 || len(page) < s.pageSize {
			return count, nil
		}
	}
}

func (s *HoldService) expireOne(ctx context.Context, holdID string, now time.Time) (bool, error) {
	expired := false
	var productID int64

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		hold, err := s.repo.GetHoldForUpdate(txCtx, holdID)
		if err != nil {
			return err
		}
		if hold.Status != domain.HoldStatusActive || !hold.Expired(now) {
			return nil
		}
		if err := s.repo.UpdateHoldStatus(txCtx, holdID, domain.HoldStatusExpired); err != nil {
			return err
		}
		productID = hold.ProductID
		expired = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if expired {
		s.cache.Invalidate(ctx, productID)
	}
	return expired, nil
}
