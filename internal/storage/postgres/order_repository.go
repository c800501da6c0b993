package postgres

import (
	"context"
	"fmt"

	"github.com/dropkit/checkout/internal/domain"
	"github.com/jackc/pgx/v5"
)

type OrderRepository struct {
	db *DB
}

func NewOrderRepository(db *DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithTx(ctx, fn)
}

const orderColumns = `id, hold_id, product_id, quantity, unit_price, total_price, status, created_at, updated_at`

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.ID, &o.HoldID, &o.ProductID, &o.Quantity, &o.UnitPrice, &o.TotalPrice, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func (r *OrderRepository) GetHoldForUpdate(ctx context.Context, holdID string) (domain.Hold, error) {
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

func (r *OrderRepository) UpdateHoldStatus(ctx context.Context, holdID string, status domain.HoldStatus) error {
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

func (r *OrderRepository) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	const query = `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	p, err := scanProduct(r.db.queryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (r *OrderRepository) GetProductForUpdate(ctx context.Context, id int64) (domain.Product, error) {
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

// DecrementStock deducts quantity from the product's physical stock and
// bumps its version tag. The guard clause repeats the stock check so a
// violation can never commit even if a caller skipped the locked read.
func (r *OrderRepository) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	const stmt = `
UPDATE products
SET stock = stock - $2, version = version + 1, updated_at = NOW()
WHERE id = $1 AND stock >= $2`

	tag, err := r.db.exec(ctx, stmt, productID, quantity)
	if err != nil {
		if isCheckViolation(err) {
			return domain.ErrStockInvariant
		}
		return fmt.Errorf("decrement stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStockInvariant
	}
	return nil
}

func (r *OrderRepository) GetOrderByHoldID(ctx context.Context, holdID string) (*domain.Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE hold_id = $1`

	o, err := scanOrder(r.db.queryRow(ctx, query, holdID))
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get order by hold: %w", err)
	}
	return &o, nil
}

func (r *OrderRepository) GetOrderForUpdate(ctx context.Context, orderID string) (domain.Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

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

func (r *OrderRepository) CreateOrder(ctx context.Context, order domain.Order) error {
	const stmt = `
INSERT INTO orders (id, hold_id, product_id, quantity, unit_price, total_price, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`

	_, err := r.db.exec(ctx, stmt,
		order.ID,
		order.HoldID,
		order.ProductID,
		order.Quantity,
		order.UnitPrice,
		order.TotalPrice,
		order.Status,
		order.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderExists
		}
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (r *OrderRepository) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) error {
	const stmt = `UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`

	tag, err := r.db.exec(ctx, stmt, orderID, status)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}
