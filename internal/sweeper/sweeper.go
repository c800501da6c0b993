package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// HoldExpirer sweeps active holds past their window.
type HoldExpirer interface {
	ExpireDue(ctx context.Context) (int, error)
}

// WebhookDrainer settles webhooks that arrived before their orders.
type WebhookDrainer interface {
	DrainPending(ctx context.Context) (int, error)
}

// Leaser grants a named lease so only one sweeper instance runs per
// deployment. The lease ttl must cover the sweep period.
type Leaser interface {
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context), bool)
}

// Sweeper periodically drives hold expiry and pending-webhook settlement.
// Every invariant holds without it; it exists so expired holds free
// availability and out-of-order webhooks settle in bounded time.
type Sweeper struct {
	holds    HoldExpirer
	webhooks WebhookDrainer
	lease    Leaser
	period   time.Duration
	logger   *zap.Logger
}

const leaseName = "sweeper"

func New(holds HoldExpirer, webhooks WebhookDrainer, lease Leaser, period time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		holds:    holds,
		webhooks: webhooks,
		lease:    lease,
		period:   period,
		logger:   logger,
	}
}

// Run sweeps on the configured cadence until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	release, ok := s.lease.TryAcquire(ctx, leaseName, s.period)
	if !ok {
		return
	}
	defer release(context.WithoutCancel(ctx))

	start := time.Now()

	expired, err := s.holds.ExpireDue(ctx)
	if err != nil {
		s.logger.Error("hold expiry sweep failed", zap.Error(err))
	}
	drained, err := s.webhooks.DrainPending(ctx)
	if err != nil {
		s.logger.Error("webhook drain failed", zap.Error(err))
	}

	if expired > 0 || drained > 0 {
		s.logger.Info("sweep complete",
			zap.Int("holds_expired", expired),
			zap.Int("webhooks_drained", drained),
			zap.Duration("duration", time.Since(start)))
	}
}
