package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/dropkit/checkout/internal/domain"
	"github.com/jackc/pgx/v5"
)

type HoldRepository struct {
	db *DB
}

func NewHoldRepository(db *DB) *HoldRepository {
	return &HoldRepository{db: db}
}

func (r *HoldRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithTx(ctx, fn)
}

func (r *HoldRepository) GetProductForUpdate(ctx context.Context, id int64) (domain.Product, error) {
	const query = `SELECT ` + productColumns + ` FROM products WHERE id = $1 FOR UPDATE`
	p, err := scanProduct(r.db.queryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("get product for update: %w", err)
	}
	return p, nil
}

// SumActiveHoldsForUpdate locks every active, unexpired hold of the product
// and returns the sum of their quantities. FOR UPDATE cannot be combined
// with an aggregate, so the rows are summed here; the point of the query is
// the locks, which freeze the active set for the rest of the transaction.
func (r *HoldRepository) SumActiveHoldsForUpdate(ctx context.Context, productID int64, now time.Time) (int, error) {
	const query = `
SELECT quantity
FROM holds
WHERE product_id = $1 AND status = 'active' AND expires_at > $2
ORDER BY id
FOR UPDATE`

	rows, err := r.db.query(ctx, query, productID, now)
	if err != nil {
		return 0, fmt.Errorf("lock active holds: %w", err)
	}
	defer rows.Close()

	total := 0
	for rows.Next() {
		var qty int
		if err := rows.Scan(&qty); err != nil {
			return 0, fmt.Errorf("scan hold quantity: %w", err)
		}
		total += qty
	}
	if rows.Err() != nil {
		return 0, fmt.Errorf("iterate active holds: %w", rows.Err())
	}
	return total, nil
}

func (r *HoldRepository) CreateHold(ctx context.Context, hold domain.Hold) error {
	const stmt = `
INSERT INTO holds (id, product_id, quantity, status, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.exec(ctx, stmt,
		hold.ID,
		hold.ProductID,
		hold.Quantity,
		hold.Status,
		hold.ExpiresAt,
		hold.CreatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrProductNotFound
		}
		return fmt.Errorf("create hold: %w", err)
	}
	return nil
}

func (r *HoldRepository) GetHoldForUpdate(ctx context.Context, holdID string) (domain.Hold, error) {
	const query = `
SELECT id, product_id, quantity, status, expires_at, created_at
FROM holds
WHERE id = $1
FOR UPDATE`

	var h domain.Hold
	err := r.db.queryRow(ctx, query, holdID).
		Scan(&h.ID, &h.ProductID, &h.Quantity, &h.Status, &h.ExpiresAt, &h.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Hold{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Hold{}, domain.ErrHoldNotFound
		}
		return domain.Hold{}, fmt.Errorf("get hold: %w", err)
	}
	return h, nil
}

func (r *HoldRepository) UpdateHoldStatus(ctx context.Context, holdID string, status domain.HoldStatus) error {
	const stmt = `UPDATE holds SET status = $2 WHERE id = $1`

	tag, err := r.db.exec(ctx, stmt, holdID, status)
	if err != nil {
		return fmt.Errorf("update hold status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrHoldNotFound
	}
	return nil
}

// ListDueHolds returns a page of active holds whose expiry has passed. It
// reads without locks; the sweeper re-verifies each hold under a row lock
// before transitioning it.
func (r *HoldRepository) ListDueHolds(ctx context.Context, now time.Time, limit int) ([]domain.Hold, error) {
	const query = `
SELECT id, product_id, quantity, status, expires_at, created_at
FROM holds
WHERE status = 'active' AND expires_at <= $1
ORDER BY expires_at ASC
LIMIT $2`

	rows, err := r.db.query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due holds: %w", err)
	}
	defer rows.Close()

	var holds []domain.Hold
	for rows.Next() {
		var h domain.Hold
		if err := rows.Scan(&h.ID, &h.ProductID, &h.Quantity, &h.Status, &h.ExpiresAt, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan hold: %w", err)
		}
		holds = append(holds, h)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate due holds: %w", rows.Err())
	}
	return holds, nil
}
