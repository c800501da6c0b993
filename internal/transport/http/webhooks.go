package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dropkit/checkout/internal/app"
	"github.com/dropkit/checkout/internal/domain"
	"github.com/google/uuid"
)

const maxIdempotencyKeyLen = 255

// WebhookProcessor is the minimal interface needed to apply payment
// notifications.
type WebhookProcessor interface {
	ProcessWebhook(ctx context.Context, in app.ProcessWebhookInput) (app.WebhookResult, error)
}

// HandlePaymentWebhook returns an HTTP handler for payment notifications.
// All four outcomes answer 200; the body carries the result kind.
func HandlePaymentWebhook(svc WebhookProcessor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req webhookRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.IdempotencyKey == "" || len(req.IdempotencyKey) > maxIdempotencyKeyLen {
			writeError(w, http.StatusUnprocessableEntity, codeInvalidRequestBody, "idempotency_key must be 1..255 characters")
			return
		}
		if _, err := uuid.Parse(req.OrderID); err != nil {
			writeError(w, http.StatusUnprocessableEntity, codeInvalidID, "order_id must be a uuid")
			return
		}
		paymentStatus := domain.PaymentStatus(req.Status)
		if paymentStatus != domain.PaymentStatusSuccess && paymentStatus != domain.PaymentStatusFailed {
			writeError(w, http.StatusUnprocessableEntity, codeInvalidRequestBody, `status must be "success" or "failed"`)
			return
		}

		start := time.Now()
		result, err := svc.ProcessWebhook(r.Context(), app.ProcessWebhookInput{
			IdempotencyKey: req.IdempotencyKey,
			OrderID:        req.OrderID,
			PaymentStatus:  paymentStatus,
			Payload:        req.Payload,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, webhookResponseBody(result, req.OrderID, time.Since(start)))
	}
}

func webhookResponseBody(result app.WebhookResult, orderID string, elapsed time.Duration) any {
	switch result.Kind {
	case app.WebhookResultProcessed:
		return processedWebhookResponse{
			Status:           string(result.Kind),
			OrderID:          orderID,
			OrderStatus:      string(result.OrderStatus),
			WebhookID:        result.WebhookID,
			ProcessingTimeMS: elapsed.Milliseconds(),
		}
	case app.WebhookResultDuplicate:
		return duplicateWebhookResponse{
			Status:           string(result.Kind),
			WebhookID:        result.WebhookID,
			ProcessingStatus: string(result.ProcessingStatus),
			OrderStatus:      string(result.OrderStatus),
		}
	case app.WebhookResultPending:
		return pendingWebhookResponse{
			Status:    string(result.Kind),
			WebhookID: result.WebhookID,
			Message:   "order not found yet; webhook stored for later processing",
		}
	default:
		return finalizedWebhookResponse{
			Status:      string(result.Kind),
			OrderStatus: string(result.OrderStatus),
			WebhookID:   result.WebhookID,
		}
	}
}

type webhookRequest struct {
	IdempotencyKey string          `json:"idempotency_key"`
	OrderID        string          `json:"order_id"`
	Status         string          `json:"status"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

type processedWebhookResponse struct {
	Status           string `json:"status"`
	OrderID          string `json:"order_id"`
	OrderStatus      string `json:"order_status"`
	WebhookID        string `json:"webhook_id"`
	ProcessingTimeMS int64  `json:"processing_time_ms"`
}

type duplicateWebhookResponse struct {
	Status           string `json:"status"`
	WebhookID        string `json:"webhook_id"`
	ProcessingStatus string `json:"processing_status"`
	OrderStatus      string `json:"order_status,omitempty"`
}

type pendingWebhookResponse struct {
	Status    string `json:"status"`
	WebhookID string `json:"webhook_id"`
	Message   string `json:"message"`
}

type finalizedWebhookResponse struct {
	Status      string `json:"status"`
	OrderStatus string `json:"order_status"`
	WebhookID   string `json:"webhook_id"`
}
