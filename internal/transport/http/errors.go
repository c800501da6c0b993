package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dropkit/checkout/internal/domain"
)

const (
	codeMethodNotAllowed    = "method_not_allowed"
	codeNotFound            = "not_found"
	codeInvalidRequestBody  = "invalid_request_body"
	codeInvalidQuantity     = "invalid_quantity"
	codeInvalidID           = "invalid_id"
	codeProductNotFound     = "product_not_found"
	codeProductNameRequired = "product_name_required"
	codeInvalidPrice        = "invalid_price"
	codeInvalidStock        = "invalid_stock"
	codeInsufficientStock   = "insufficient_stock"
	codeHoldNotFound        = "hold_not_found"
	codeHoldExpired         = "hold_expired"
	codeHoldNotActive       = "hold_not_active"
	codeOrderNotFound       = "order_not_found"
	codeTerminalState       = "order_finalized"
	codeSystemBusy          = "system_busy"
	codeForbidden           = "forbidden"
	codeInternalError       = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeDomainError maps the shared business error kinds to HTTP statuses.
// Handlers deal with their endpoint-specific cases first and fall through
// here for the rest.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidQuantity):
		writeError(w, http.StatusUnprocessableEntity, codeInvalidQuantity, err.Error())
	case errors.Is(err, domain.ErrInvalidID):
		writeError(w, http.StatusUnprocessableEntity, codeInvalidID, err.Error())
	case errors.Is(err, domain.ErrProductNotFound):
		writeError(w, http.StatusNotFound, codeProductNotFound, err.Error())
	case errors.Is(err, domain.ErrHoldNotFound):
		writeError(w, http.StatusNotFound, codeHoldNotFound, err.Error())
	case errors.Is(err, domain.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, codeOrderNotFound, err.Error())
	case errors.Is(err, domain.ErrInsufficientStock):
		writeError(w, http.StatusConflict, codeInsufficientStock, err.Error())
	case errors.Is(err, domain.ErrHoldExpired):
		writeError(w, http.StatusGone, codeHoldExpired, err.Error())
	case errors.Is(err, domain.ErrHoldNotActive), errors.Is(err, domain.ErrOrderExists):
		writeError(w, http.StatusConflict, codeHoldNotActive, err.Error())
	case errors.Is(err, domain.ErrTerminalState):
		writeError(w, http.StatusConflict, codeTerminalState, err.Error())
	case errors.Is(err, domain.ErrSystemBusy):
		writeError(w, http.StatusServiceUnavailable, codeSystemBusy, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}
