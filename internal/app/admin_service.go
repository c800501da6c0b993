package app

import (
	"context"

	"github.com/dropkit/checkout/internal/domain"
	"github.com/shopspring/decimal"
)

type AdminRepository interface {
	CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
}

type AdminService struct {
	repo AdminRepository
}

func NewAdminService(repo AdminRepository) *AdminService {
	return &AdminService{repo: repo}
}

type CreateProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
}

func (s *AdminService) CreateProduct(ctx context.Context, in CreateProductInput) (domain.Product, error) {
	if in.Name == "" {
		return domain.Product{}, domain.ErrProductNameRequired
	}
	if !in.Price.IsPositive() {
		return domain.Product{}, domain.ErrInvalidPrice
	}
	if in.Stock < 0 {
		return domain.Product{}, domain.ErrInvalidStock
	}

	return s.repo.CreateProduct(ctx, domain.Product{
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
	})
}

func (s *AdminService) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}
