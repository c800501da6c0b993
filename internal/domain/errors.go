package domain

import "errors"

var (
	ErrProductNotFound     = errors.New("product not found")
	ErrHoldNotFound        = errors.New("hold not found")
	ErrOrderNotFound       = errors.New("order not found")
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrInvalidID           = errors.New("invalid id")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrHoldExpired         = errors.New("hold expired")
	ErrHoldNotActive       = errors.New("hold not active")
	ErrOrderExists         = errors.New("order already exists for hold")
	ErrTerminalState       = errors.New("order already in terminal state")
	ErrDuplicateWebhook    = errors.New("duplicate idempotency key")
	ErrSystemBusy          = errors.New("system busy")
	ErrStockInvariant      = errors.New("stock invariant violation")
	ErrProductNameRequired = errors.New("product name required")
	ErrInvalidPrice        = errors.New("invalid price")
	ErrInvalidStock        = errors.New("invalid stock")
)
