package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dropkit/checkout/internal/app"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderCreator is the minimal interface needed to convert holds to orders.
type OrderCreator interface {
	CreateOrderFromHold(ctx context.Context, holdID string) (app.CreateOrderResult, error)
}

// HandleCreateOrder returns an HTTP handler for hold conversion. Retried
// requests for an already-converted hold answer 200 with the existing order.
func HandleCreateOrder(svc OrderCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req createOrderRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, codeInvalidRequestBody, "invalid request body")
			return
		}
		if _, err := uuid.Parse(req.HoldID); err != nil {
			writeError(w, http.StatusUnprocessableEntity, codeInvalidID, "hold_id must be a uuid")
			return
		}

		res, err := svc.CreateOrderFromHold(r.Context(), req.HoldID)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		status := http.StatusOK
		if res.Created {
			status = http.StatusCreated
		}
		writeJSON(w, status, orderResponse{
			OrderID:    res.Order.ID,
			HoldID:     res.Order.HoldID,
			ProductID:  res.Order.ProductID,
			Quantity:   res.Order.Quantity,
			UnitPrice:  res.Order.UnitPrice,
			TotalPrice: res.Order.TotalPrice,
			Status:     string(res.Order.Status),
			CreatedAt:  res.Order.CreatedAt,
		})
	}
}

type createOrderRequest struct {
	HoldID string `json:"hold_id"`
}

type orderResponse struct {
	OrderID    string          `json:"order_id"`
	HoldID     string          `json:"hold_id"`
	ProductID  int64           `json:"product_id"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Status     string          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
}
