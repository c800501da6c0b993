package domain

import "time"

type HoldStatus string

const (
	HoldStatusActive    HoldStatus = "active"
	HoldStatusConverted HoldStatus = "converted"
	HoldStatusExpired   HoldStatus = "expired"
	HoldStatusReleased  HoldStatus = "released"
)

// Hold represents reserved inventory for a limited time. An active hold
// counts against available stock until it is converted into an order,
// released, or swept as expired.
type Hold struct {
	ID        string
	ProductID int64
	Quantity  int
	Status    HoldStatus
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the hold's reservation window has passed at now.
// Status is not consulted: an active hold past its window is treated as
// expired even before the sweeper has marked it.
func (h Hold) Expired(now time.Time) bool {
	return !h.ExpiresAt.After(now)
}
