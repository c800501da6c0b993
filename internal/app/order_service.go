package app

import (
	"context"
	"errors"

	"github.com/dropkit/checkout/internal/clock"
	"github.com/dropkit/checkout/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type OrderRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetHoldForUpdate(ctx context.Context, holdID string) (domain.Hold, error)
	UpdateHoldStatus(ctx context.Context, holdID string, status domain.HoldStatus) error
	GetProduct(ctx context.Context, productID int64) (domain.Product, error)
	GetProductForUpdate(ctx context.Context, productID int64) (domain.Product, error)
	DecrementStock(ctx context.Context, productID int64, quantity int) error
	GetOrderByHoldID(ctx context.Context, holdID string) (*domain.Order, error)
	GetOrderForUpdate(ctx context.Context, orderID string) (domain.Order, error)
	CreateOrder(ctx context.Context, order domain.Order) error
	UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) error
}

type OrderService struct {
	repo   OrderRepository
	cache  StockInvalidator
	clock  clock.Clock
	logger *zap.Logger
}

func NewOrderService(repo OrderRepository, cache StockInvalidator, clk clock.Clock, logger *zap.Logger) *OrderService {
	return &OrderService{
		repo:   repo,
		cache:  cache,
		clock:  clk,
		logger: logger,
	}
}

type CreateOrderResult struct {
	Order   domain.Order
	Created bool
}

// CreateOrderFromHold converts an active hold into a pending-payment order,
// snapshotting the product price. Conversion is idempotent: if an order for
// the hold already exists it is returned unchanged, so retried requests
// never double-convert. Stock is not deducted here; the hold keeps the
// quantity reserved until payment settles.
func (s *OrderService) CreateOrderFromHold(ctx context.Context, holdID string) (CreateOrderResult, error) {
	now := s.clock.Now()
	var result CreateOrderResult

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		hold, err := s.repo.GetHoldForUpdate(txCtx, holdID)
		if err != nil {
			return err
		}

		existing, err := s.repo.GetOrderByHoldID(txCtx, holdID)
		if err != nil {
			return err
		}
		if existing != nil {
			result = CreateOrderResult{Order: *existing, Created: false}
			return nil
		}

		if hold.Status != domain.HoldStatusActive {
			return domain.ErrHoldNotActive
		}
		if hold.Expired(now) {
			return domain.ErrHoldExpired
		}

		product, err := s.repo.GetProduct(txCtx, hold.ProductID)
		if err != nil {
			return err
		}

		unitPrice := product.Price
		order := domain.Order{
			ID:         uuid.NewString(),
			HoldID:     holdID,
			ProductID:  hold.ProductID,
			Quantity:   hold.Quantity,
			UnitPrice:  unitPrice,
			TotalPrice: unitPrice.Mul(decimal.NewFromInt(int64(hold.Quantity))),
			Status:     domain.OrderStatusPendingPayment,
			CreatedAt:  now,
			UpdatedAt:  now,
		}

		if err := s.repo.CreateOrder(txCtx, order); err != nil {
			// Re-read when a concurrent conversion wins the unique
			// hold_id race, keeping retries idempotent.
			if errors.Is(err, domain.ErrOrderExists) {
				existing, rerr := s.repo.GetOrderByHoldID(txCtx, holdID)
				if rerr != nil {
					return rerr
				}
				if existing != nil {
					result = CreateOrderResult{Order: *existing, Created: false}
					return nil
				}
			}
			return err
		}
		if err := s.repo.UpdateHoldStatus(txCtx, holdID, domain.HoldStatusConverted); err != nil {
			return err
		}

		result = CreateOrderResult{Order: order, Created: true}
		return nil
	})
	if errors.Is(err, domain.ErrHoldExpired) {
		// Lazy expiry: the failed conversion observed the hold past its
		// window, so persist the transition without waiting for the sweep.
		s.expireLazily(ctx, holdID)
		return CreateOrderResult{}, err
	}
	if err != nil {
		return CreateOrderResult{}, err
	}
	return result, nil
}

func (s *OrderService) expireLazily(ctx context.Context, holdID string) {
	now := s.clock.Now()
	var productID int64
	expired := false

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
		s.logger.Warn("lazy hold expiry failed, sweeper will catch it",
			zap.String("hold_id", holdID), zap.Error(err))
		return
	}
	if expired {
		s.cache.Invalidate(ctx, productID)
	}
}

// MarkPaid settles an order on payment success, deducting physical stock in
// the same transaction that flips the status. Already-paid orders are a
// no-op; any other terminal state is rejected.
func (s *OrderService) MarkPaid(ctx context.Context, orderID string) (domain.Order, error) {
	var result domain.Order
	settled := false

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		order, err := s.repo.GetOrderForUpdate(txCtx, orderID)
		if err != nil {
			return err
		}
		if order.Status == domain.OrderStatusPaid {
			result = order
			return nil
		}
		if order.Status != domain.OrderStatusPendingPayment {
			return domain.ErrTerminalState
		}

		product, err := s.repo.GetProductForUpdate(txCtx, order.ProductID)
		if err != nil {
			return err
		}
		if product.Stock < order.Quantity {
			// Holds should have kept enough stock reserved; reaching
			// this point means a layer above broke the admission rules.
			s.logger.Error("stock invariant violation on settlement",
				zap.String("order_id", order.ID),
				zap.Int64("product_id", order.ProductID),
				zap.Int("stock", product.Stock),
				zap.Int("quantity", order.Quantity))
			return domain.ErrStockInvariant
		}

		if err := s.repo.DecrementStock(txCtx, order.ProductID, order.Quantity); err != nil {
			return err
		}
		if err := s.repo.UpdateOrderStatus(txCtx, orderID, domain.OrderStatusPaid); err != nil {
			return err
		}

		order.Status = domain.OrderStatusPaid
		result = order
		settled = true
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	if settled {
		s.cache.Invalidate(ctx, result.ProductID)
	}
	return result, nil
}

// CancelOrder settles an order on payment failure. The converted hold is
// released so the quantity returns to availability; physical stock was never
// deducted, so it stays untouched.
func (s *OrderService) CancelOrder(ctx context.Context, orderID string) (domain.Order, error) {
	var result domain.Order
	cancelled := false

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		order, err := s.repo.GetOrderForUpdate(txCtx, orderID)
		if err != nil {
			return err
		}
		if order.Status == domain.OrderStatusCancelled {
			result = order
			return nil
		}
		if order.Status != domain.OrderStatusPendingPayment {
			return domain.ErrTerminalState
		}

		hold, err := s.repo.GetHoldForUpdate(txCtx, order.HoldID)
		if err != nil {
			return err
		}
		if hold.Status == domain.HoldStatusConverted {
			if err := s.repo.UpdateHoldStatus(txCtx, order.HoldID, domain.HoldStatusReleased); err != nil {
				return err
			}
		}
		if err := s.repo.UpdateOrderStatus(txCtx, orderID, domain.OrderStatusCancelled); err != nil {
			return err
		}

		order.Status = domain.OrderStatusCancelled
		result = order
		cancelled = true
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	if cancelled {
		s.cache.Invalidate(ctx, result.ProductID)
	}
	return result, nil
}
