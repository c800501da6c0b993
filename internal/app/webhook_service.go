package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dropkit/checkout/internal/clock"
	"github.com/dropkit/checkout/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type WebhookRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetWebhookByKeyForUpdate(ctx context.Context, key string) (*domain.PaymentWebhook, error)
	GetWebhookForUpdate(ctx context.Context, id string) (domain.PaymentWebhook, error)
	CreateWebhook(ctx context.Context, w domain.PaymentWebhook) error
	MarkWebhookProcessed(ctx context.Context, id string, processedAt time.Time) error
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	GetOrderForUpdate(ctx context.Context, orderID string) (domain.Order, error)
	ListPendingWebhooks(ctx context.Context, afterCreatedAt time.Time, afterID string, limit int) ([]domain.PaymentWebhook, error)
}

// OrderSettler applies payment outcomes to orders. Implemented by
// OrderService; its transactions join the webhook transaction already on the
// context.
type OrderSettler interface {
	MarkPaid(ctx context.Context, orderID string) (domain.Order, error)
	CancelOrder(ctx context.Context, orderID string) (domain.Order, error)
}

type WebhookService struct {
	repo   WebhookRepository
	orders OrderSettler
	clock  clock.Clock
	logger *zap.Logger

	orderWaitAttempts int
	orderWaitSleep    time.Duration
	drainPageSize     int
}

const (
	defaultOrderWaitAttempts = 3
	defaultOrderWaitSleep    = 100 * time.Millisecond
	defaultDrainPageSize     = 100
)

type WebhookServiceOption func(*WebhookService)

// WithOrderWait overrides the bounded poll for an order racing its webhook.
func WithOrderWait(attempts int, sleep time.Duration) WebhookServiceOption {
	return func(s *WebhookService) {
		if attempts > 0 {
			s.orderWaitAttempts = attempts
		}
		if sleep > 0 {
			s.orderWaitSleep = sleep
		}
	}
}

// WithDrainPageSize overrides the page size of the pending-webhook walk.
func WithDrainPageSize(n int) WebhookServiceOption {
	return func(s *WebhookService) {
		if n > 0 {
			s.drainPageSize = n
		}
	}
}

func NewWebhookService(repo WebhookRepository, orders OrderSettler, clk clock.Clock, logger *zap.Logger, opts ...WebhookServiceOption) *WebhookService {
	svc := &WebhookService{
		repo:              repo,
		orders:            orders,
		clock:             clk,
		logger:            logger,
		orderWaitAttempts: defaultOrderWaitAttempts,
		orderWaitSleep:    defaultOrderWaitSleep,
		drainPageSize:     defaultDrainPageSize,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type WebhookResultKind string

const (
	WebhookResultProcessed        WebhookResultKind = "processed"
	WebhookResultDuplicate        WebhookResultKind = "duplicate"
	WebhookResultPending          WebhookResultKind = "pending"
	WebhookResultAlreadyFinalized WebhookResultKind = "already_finalized"
)

type WebhookResult struct {
	Kind             WebhookResultKind
	WebhookID        string
	ProcessingStatus domain.ProcessingStatus
	// OrderStatus is empty when the order does not exist yet.
	OrderStatus domain.OrderStatus
}

type ProcessWebhookInput struct {
	IdempotencyKey string
	OrderID        string
	PaymentStatus  domain.PaymentStatus
	Payload        []byte
}

// ProcessWebhook applies a payment notification at most once per idempotency
// key. A webhook arriving before its order is stored as pending for the
// drain; one arriving after the order settled is stored as processed without
// touching the order. The unique index on the key is the backstop: a racing
// duplicate loses the insert, which aborts its transaction, and is answered
// from the winner's committed row in a fresh one.
func (s *WebhookService) ProcessWebhook(ctx context.Context, in ProcessWebhookInput) (WebhookResult, error) {
	now := s.clock.Now()
	var result WebhookResult

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		existing, err := s.repo.GetWebhookByKeyForUpdate(txCtx, in.IdempotencyKey)
		if err != nil {
			return err
		}
		if existing != nil {
			result = s.duplicateResult(txCtx, *existing)
			return nil
		}

		order, err := s.waitForOrder(txCtx, in.OrderID)
		if err != nil && !errors.Is(err, domain.ErrOrderNotFound) {
			return err
		}

		if errors.Is(err, domain.ErrOrderNotFound) {
			webhook := s.newWebhook(in, domain.ProcessingStatusPending, now, nil)
			if err := s.repo.CreateWebhook(txCtx, webhook); err != nil {
				return err
			}
			result = WebhookResult{
				Kind:             WebhookResultPending,
				WebhookID:        webhook.ID,
				ProcessingStatus: domain.ProcessingStatusPending,
			}
			return nil
		}

		if order.IsFinalized() {
			processedAt := now
			webhook := s.newWebhook(in, domain.ProcessingStatusProcessed, now, &processedAt)
			if err := s.repo.CreateWebhook(txCtx, webhook); err != nil {
				return err
			}
			result = WebhookResult{
				Kind:             WebhookResultAlreadyFinalized,
				WebhookID:        webhook.ID,
				ProcessingStatus: domain.ProcessingStatusProcessed,
				OrderStatus:      order.Status,
			}
			return nil
		}

		webhook := s.newWebhook(in, domain.ProcessingStatusPending, now, nil)
		if err := s.repo.CreateWebhook(txCtx, webhook); err != nil {
			return err
		}

		settled, err := s.applyEffect(txCtx, in.OrderID, in.PaymentStatus)
		if err != nil {
			return err
		}
		if err := s.repo.MarkWebhookProcessed(txCtx, webhook.ID, s.clock.Now()); err != nil {
			return err
		}

		result = WebhookResult{
			Kind:             WebhookResultProcessed,
			WebhookID:        webhook.ID,
			ProcessingStatus: domain.ProcessingStatusProcessed,
			OrderStatus:      settled.Status,
		}
		return nil
	})
	if errors.Is(err, domain.ErrDuplicateWebhook) {
		// Losing the insert race poisons the transaction in Postgres, so
		// the winning row can only be observed after rolling back.
		return s.duplicateFromStored(ctx, in.IdempotencyKey, err)
	}
	if err != nil {
		return WebhookResult{}, err
	}
	return result, nil
}

func (s *WebhookService) newWebhook(in ProcessWebhookInput, status domain.ProcessingStatus, now time.Time, processedAt *time.Time) domain.PaymentWebhook {
	return domain.PaymentWebhook{
		ID:               uuid.NewString(),
		IdempotencyKey:   in.IdempotencyKey,
		OrderID:          in.OrderID,
		PaymentStatus:    in.PaymentStatus,
		ProcessingStatus: status,
		Payload:          in.Payload,
		CreatedAt:        now,
		ProcessedAt:      processedAt,
	}
}

// waitForOrder lock-reads the order with a short bounded poll, absorbing the
// race where the order's creating transaction has not committed yet.
func (s *WebhookService) waitForOrder(ctx context.Context, orderID string) (domain.Order, error) {
	var order domain.Order
	var err error

	for attempt := 1; attempt <= s.orderWaitAttempts; attempt++ {
		order, err = s.repo.GetOrderForUpdate(ctx, orderID)
		if err == nil || !errors.Is(err, domain.ErrOrderNotFound) {
			return order, err
		}
		if attempt == s.orderWaitAttempts {
			break
		}

		timer := time.NewTimer(s.orderWaitSleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.Order{}, ctx.Err()
		case <-timer.C:
		}
	}
	return domain.Order{}, err
}

// duplicateFromStored turns a lost insert race on the idempotency key into a
// duplicate result, re-reading the winning row in its own transaction.
func (s *WebhookService) duplicateFromStored(ctx context.Context, key string, cause error) (WebhookResult, error) {
	var result WebhookResult

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		existing, err := s.repo.GetWebhookByKeyForUpdate(txCtx, key)
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("webhook vanished after duplicate key conflict: %w", cause)
		}
		result = s.duplicateResult(txCtx, *existing)
		return nil
	})
	if err != nil {
		return WebhookResult{}, err
	}
	return result, nil
}

func (s *WebhookService) duplicateResult(ctx context.Context, existing domain.PaymentWebhook) WebhookResult {
	result := WebhookResult{
		Kind:             WebhookResultDuplicate,
		WebhookID:        existing.ID,
		ProcessingStatus: existing.ProcessingStatus,
	}
	if order, err := s.repo.GetOrder(ctx, existing.OrderID); err == nil {
		result.OrderStatus = order.Status
	}
	return result
}

func (s *WebhookService) applyEffect(ctx context.Context, orderID string, status domain.PaymentStatus) (domain.Order, error) {
	switch status {
	case domain.PaymentStatusSuccess:
		return s.orders.MarkPaid(ctx, orderID)
	case domain.PaymentStatusFailed:
		return s.orders.CancelOrder(ctx, orderID)
	default:
		return domain.Order{}, fmt.Errorf("unknown payment status %q", status)
	}
}

// DrainPending settles webhooks whose orders did not exist on arrival. Each
// webhook is re-verified under its row lock in its own transaction; rows
// whose orders are still absent stay pending for the next sweep. The walk
// is keyset-paginated so a row left pending is stepped over rather than
// refetched, and younger drainable rows behind it are always reached.
func (s *WebhookService) DrainPending(ctx context.Context) (int, error) {
	count := 0
	var afterCreatedAt time.Time
	afterID := uuid.Nil.String()

	for {
		page, err := s.repo.ListPendingWebhooks(ctx, afterCreatedAt, afterID, s.drainPageSize)
		if err != nil {
			return count, err
		}
		if len(page) == 0 {
			return count, nil
		}

		for _, pending := range page {
			processed, err := s.drainOne(ctx, pending.ID)
			if err != nil {
				s.logger.Error("drain webhook failed",
					zap.String("webhook_id", pending.ID), zap.Error(err))
				continue
			}
			if processed {
				count++
			}
		}

		last := page[len(page)-1]
		afterCreatedAt, afterID = last.CreatedAt, last.ID

		if len(page) < s.drainPageSize {
			return count, nil
		}
	}
}

func (s *WebhookService) drainOne(ctx context.Context, webhookID string) (bool, error) {
	processed := false

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		webhook, err := s.repo.GetWebhookForUpdate(txCtx, webhookID)
		if err != nil {
			return err
		}
		if webhook.ProcessingStatus == domain.ProcessingStatusProcessed {
			return nil
		}

		order, err := s.repo.GetOrderForUpdate(txCtx, webhook.OrderID)
		if errors.Is(err, domain.ErrOrderNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		if !order.IsFinalized() {
			if _, err := s.applyEffect(txCtx, webhook.OrderID, webhook.PaymentStatus); err != nil {
				return err
			}
		}
		if err := s.repo.MarkWebhookProcessed(txCtx, webhookID, s.clock.Now()); err != nil {
			return err
		}
		processed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return processed, nil
}
