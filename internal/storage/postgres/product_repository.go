package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/dropkit/checkout/internal/domain"
	"github.com/jackc/pgx/v5"
)

type ProductRepository struct {
	db *DB
}

func NewProductRepository(db *DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithTx(ctx, fn)
}

const productColumns = `id, name, description, price, stock, version, created_at, updated_at`

func scanProduct(row pgx.Row) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *ProductRepository) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
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

// AvailableStock computes physical stock minus the quantities of active,
// unexpired holds. It takes no locks; callers needing an admission decision
// must go through the locking path instead.
func (r *ProductRepository) AvailableStock(ctx context.Context, id int64, now time.Time) (int, error) {
	const query = `
SELECT p.stock - COALESCE((
	SELECT SUM(h.quantity)
	FROM holds h
	WHERE h.product_id = p.id AND h.status = 'active' AND h.expires_at > $2
), 0)
FROM products p
WHERE p.id = $1`

	var available int
	if err := r.db.queryRow(ctx, query, id, now).Scan(&available); err != nil {
		if err == pgx.ErrNoRows {
			return 0, domain.ErrProductNotFound
		}
		return 0, fmt.Errorf("available stock: %w", err)
	}
	return available, nil
}

func (r *ProductRepository) CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	const stmt = `
INSERT INTO products (name, description, price, stock)
VALUES ($1, $2, $3, $4)
RETURNING ` + productColumns

	created, err := scanProduct(r.db.queryRow(ctx, stmt, p.Name, p.Description, p.Price, p.Stock))
	if err != nil {
		if isCheckViolation(err) {
			return domain.Product{}, domain.ErrInvalidStock
		}
		return domain.Product{}, fmt.Errorf("create product: %w", err)
	}
	return created, nil
}

func (r *ProductRepository) ListProducts(ctx context.Context) ([]domain.Product, error) {
	const query = `SELECT ` + productColumns + ` FROM products ORDER BY id ASC`
	rows, err := r.db.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate products: %w", rows.Err())
	}
	return products, nil
}
