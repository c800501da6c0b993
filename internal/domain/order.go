package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusPaid           OrderStatus = "paid"
	OrderStatusCancelled      OrderStatus = "cancelled"
	OrderStatusRefunded       OrderStatus = "refunded"
)

// Order represents a purchase derived from a hold. UnitPrice is snapshotted
// from the product at conversion time so later price changes do not affect
// settled checkouts.
type Order struct {
	ID         string
	HoldID     string
	ProductID  int64
	Quantity   int
	UnitPrice  decimal.Decimal
	TotalPrice decimal.Decimal
	Status     OrderStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsFinalized reports whether the order is in a terminal state from which no
// transition is permitted.
func (o Order) IsFinalized() bool {
	switch o.Status {
	case OrderStatusPaid, OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}
