package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/dropkit/checkout/internal/domain"
	"github.com/jackc/pgx/v5"
)

type WebhookRepository struct {
	db *DB
}

func NewWebhookRepository(db *DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

func (r *WebhookRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithTx(ctx, fn)
}

const webhookColumns = `id, idempotency_key, order_id, payment_status, processing_status, payload, created_at, processed_at`

func scanWebhook(row pgx.Row) (domain.PaymentWebhook, error) {
	var w domain.PaymentWebhook
	err := row.Scan(&w.ID, &w.IdempotencyKey, &w.OrderID, &w.PaymentStatus, &w.ProcessingStatus, &w.Payload, &w.CreatedAt, &w.ProcessedAt)
	return w, err
}

// GetWebhookByKeyForUpdate lock-reads the dedup row for an idempotency key,
// returning nil when no webhook with that key has been stored yet.
func (r *WebhookRepository) GetWebhookByKeyForUpdate(ctx context.Context, key string) (*domain.PaymentWebhook, error) {
	const query = `SELECT ` + webhookColumns + ` FROM payment_webhooks WHERE idempotency_key = $1 FOR UPDATE`

	w, err := scanWebhook(r.db.queryRow(ctx, query, key))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get webhook by key: %w", err)
	}
	return &w, nil
}

func (r *WebhookRepository) GetWebhookForUpdate(ctx context.Context, id string) (domain.PaymentWebhook, error) {
	const query = `SELECT ` + webhookColumns + ` FROM payment_webhooks WHERE id = $1 FOR UPDATE`

	w, err := scanWebhook(r.db.queryRow(ctx, query, id))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.PaymentWebhook{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.PaymentWebhook{}, fmt.Errorf("get webhook: %w", pgx.ErrNoRows)
		}
		return domain.PaymentWebhook{}, fmt.Errorf("get webhook: %w", err)
	}
	return w, nil
}

func (r *WebhookRepository) CreateWebhook(ctx context.Context, w domain.PaymentWebhook) error {
	const stmt = `
INSERT INTO payment_webhooks (id, idempotency_key, order_id, payment_status, processing_status, payload, created_at, processed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.exec(ctx, stmt,
		w.ID,
		w.IdempotencyKey,
		w.OrderID,
		w.PaymentStatus,
		w.ProcessingStatus,
		w.Payload,
		w.CreatedAt,
		w.ProcessedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateWebhook
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create webhook: %w", err)
	}
	return nil
}

func (r *WebhookRepository) MarkWebhookProcessed(ctx context.Context, id string, processedAt time.Time) error {
	const stmt = `
UPDATE payment_webhooks
SET processing_status = 'processed', processed_at = $2
WHERE id = $1`

	tag, err := r.db.exec(ctx, stmt, id, processedAt)
	if err != nil {
		return fmt.Errorf("mark webhook processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark webhook processed: no row for id %s", id)
	}
	return nil
}

func (r *WebhookRepository) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	o, err := scanOrder(r.db.queryRow(ctx, query, orderID))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Order{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func (r *WebhookRepository) GetOrderForUpdate(ctx context.Context, orderID string) (domain.Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	o, err := scanOrder(r.db.queryRow(ctx, query, orderID))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Order{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("get order for update: %w", err)
	}
	return o, nil
}

// ListPendingWebhooks returns a page of webhooks still awaiting their order,
// starting strictly after the (created_at, id) cursor so callers never
// refetch rows they already visited. Reads take no locks; the drain
// re-verifies each row under a row lock.
func (r *WebhookRepository) ListPendingWebhooks(ctx context.Context, afterCreatedAt time.Time, afterID string, limit int) ([]domain.PaymentWebhook, error) {
	const query = `
SELECT ` + webhookColumns + `
FROM payment_webhooks
WHERE processing_status = 'pending' AND (created_at, id) > ($1::timestamptz, $2::uuid)
ORDER BY created_at ASC, id ASC
LIMIT $3`

	rows, err := r.db.query(ctx, query, afterCreatedAt, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending webhooks: %w", err)
	}
	defer rows.Close()

	var webhooks []domain.PaymentWebhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		webhooks = append(webhooks, w)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate pending webhooks: %w", rows.Err())
	}
	return webhooks, nil
}
