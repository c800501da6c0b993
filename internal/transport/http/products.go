package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dropkit/checkout/internal/app"
	"github.com/shopspring/decimal"
)

// ProductGetter is the minimal interface needed to serve product reads.
type ProductGetter interface {
	GetProduct(ctx context.Context, id int64) (app.ProductView, error)
}

// HandleGetProduct returns an HTTP handler for the public product view,
// including cached available stock.
func HandleGetProduct(svc ProductGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		id, ok := parseProductPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		view, err := svc.GetProduct(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, productResponse{
			ID:             view.Product.ID,
			Name:           view.Product.Name,
			Description:    view.Product.Description,
			Price:          view.Product.Price,
			AvailableStock: view.AvailableStock,
			UpdatedAt:      view.Product.UpdatedAt,
		})
	}
}

func parseProductPath(path string) (int64, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 {
		return 0, false
	}
	if parts[0] != "api" || parts[1] != "products" {
		return 0, false
	}
	id, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

type productResponse struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Price          decimal.Decimal `json:"price"`
	AvailableStock int             `json:"available_stock"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
