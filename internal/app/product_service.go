package app

import (
	"context"

	"github.com/dropkit/checkout/internal/domain"
)

type ProductRepository interface {
	GetProduct(ctx context.Context, id int64) (domain.Product, error)
}

// AvailableStockReader serves the cached available-stock view for public
// reads. It may transiently over-report within the cache TTL; it is never
// consulted for admission.
type AvailableStockReader interface {
	Get(ctx context.Context, productID int64) (int, error)
}

type ProductService struct {
	repo  ProductRepository
	stock AvailableStockReader
}

func NewProductService(repo ProductRepository, stock AvailableStockReader) *ProductService {
	return &ProductService{repo: repo, stock: stock}
}

type ProductView struct {
	Product        domain.Product
	AvailableStock int
}

func (s *ProductService) GetProduct(ctx context.Context, id int64) (ProductView, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return ProductView{}, err
	}
	available, err := s.stock.Get(ctx, id)
	if err != nil {
		return ProductView{}, err
	}
	return ProductView{Product: product, AvailableStock: available}, nil
}
