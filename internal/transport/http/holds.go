package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/dropkit/checkout/internal/app"
	"github.com/dropkit/checkout/internal/domain"
	"github.com/google/uuid"
)

// HoldWriter is the minimal interface needed to create and release holds.
type HoldWriter interface {
	CreateHold(ctx context.Context, in app.CreateHoldInput) (domain.Hold, error)
	ReleaseHold(ctx context.Context, holdID string) error
}

// HandleCreateHold returns an HTTP handler for reserving stock.
func HandleCreateHold(svc HoldWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req createHoldRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.ProductID <= 0 {
			writeError(w, http.StatusUnprocessableEntity, codeInvalidID, "product_id must be a positive integer")
			return
		}
		if req.Qty < 1 {
			writeError(w, http.StatusUnprocessableEntity, codeInvalidQuantity, domain.ErrInvalidQuantity.Error())
			return
		}

		hold, err := svc.CreateHold(r.Context(), app.CreateHoldInput{
			ProductID: req.ProductID,
			Quantity:  req.Qty,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, holdResponse{
			HoldID:    hold.ID,
			ExpiresAt: hold.ExpiresAt,
			ProductID: hold.ProductID,
			Quantity:  hold.Quantity,
		})
	}
}

// HandleReleaseHold returns an HTTP handler for explicitly releasing a hold.
// Releasing a hold that already left active succeeds without effect.
func HandleReleaseHold(svc HoldWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		holdID, ok := parseHoldPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}
		if _, err := uuid.Parse(holdID); err != nil {
			writeError(w, http.StatusUnprocessableEntity, codeInvalidID, domain.ErrInvalidID.Error())
			return
		}

		if err := svc.ReleaseHold(r.Context(), holdID); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func parseHoldPath(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 {
		return "", false
	}
	if parts[0] != "api" || parts[1] != "holds" || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}

type createHoldRequest struct {
	ProductID int64 `json:"product_id"`
	Qty       int   `json:"qty"`
}

type holdResponse struct {
	HoldID    string    `json:"hold_id"`
	ExpiresAt time.Time `json:"expires_at"`
	ProductID int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
}
