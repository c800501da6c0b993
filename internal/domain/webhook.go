package domain

import "time"

type PaymentStatus string

const (
	PaymentStatusSuccess PaymentStatus = "success"
	PaymentStatusFailed  PaymentStatus = "failed"
)

type ProcessingStatus string

const (
	ProcessingStatusPending   ProcessingStatus = "pending"
	ProcessingStatusProcessed ProcessingStatus = "processed"
)

// PaymentWebhook records a payment notification. IdempotencyKey is unique;
// the row doubles as the dedup ledger for the at-most-once payment effect.
// OrderID is deliberately not a foreign key so a webhook arriving before its
// order can be stored as pending and drained later.
type PaymentWebhook struct {
	ID               string
	IdempotencyKey   string
	OrderID          string
	PaymentStatus    PaymentStatus
	ProcessingStatus ProcessingStatus
	Payload          []byte
	CreatedAt        time.Time
	ProcessedAt      *time.Time
}
