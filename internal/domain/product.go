package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the sellable unit of a flash sale. Stock is the physical
// inventory count and is decremented only when an order is paid; holds count
// against availability without touching it.
type Product struct {
	ID          int64
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
