package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dropkit/checkout/internal/app"
	"github.com/dropkit/checkout/internal/domain"
	"github.com/shopspring/decimal"
)

// AdminProductService is the minimal interface needed for admin product
// endpoints.
type AdminProductService interface {
	CreateProduct(ctx context.Context, in app.CreateProductInput) (domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
}

// HandleAdminProducts returns an HTTP handler for product creation/listing.
func HandleAdminProducts(svc AdminProductService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			products, err := svc.ListProducts(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
				return
			}
			resp := make([]adminProductResponse, 0, len(products))
			for _, p := range products {
				resp = append(resp, newAdminProductResponse(p))
			}
			writeJSON(w, http.StatusOK, resp)
		case http.MethodPost:
			var req createProductRequest
			dec := json.NewDecoder(r.Body)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				writeError(w, http.StatusUnprocessableEntity, codeInvalidRequestBody, "invalid request body")
				return
			}

			product, err := svc.CreateProduct(r.Context(), app.CreateProductInput{
				Name:        req.Name,
				Description: req.Description,
				Price:       req.Price,
				Stock:       req.Stock,
			})
			if err != nil {
				switch err {
				case domain.ErrProductNameRequired:
					writeError(w, http.StatusUnprocessableEntity, codeProductNameRequired, err.Error())
				case domain.ErrInvalidPrice:
					writeError(w, http.StatusUnprocessableEntity, codeInvalidPrice, err.Error())
				case domain.ErrInvalidStock:
					writeError(w, http.StatusUnprocessableEntity, codeInvalidStock, err.Error())
				default:
					writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
				}
				return
			}

			writeJSON(w, http.StatusCreated, newAdminProductResponse(product))
		default:
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		}
	}
}

type createProductRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
}

type adminProductResponse struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Version     int64           `json:"version"`
}

func newAdminProductResponse(p domain.Product) adminProductResponse {
	return adminProductResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Stock:       p.Stock,
		Version:     p.Version,
	}
}
