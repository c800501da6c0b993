package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dropkit/checkout/internal/domain"
	"github.com/dropkit/checkout/internal/storage/postgres"
	"github.com/google/uuid"
)

func newWebhook(key string) domain.PaymentWebhook {
	return domain.PaymentWebhook{
		ID:               uuid.NewString(),
		IdempotencyKey:   key,
		OrderID:          uuid.NewString(),
		PaymentStatus:    domain.PaymentStatusSuccess,
		ProcessingStatus: domain.ProcessingStatusPending,
		Payload:          []byte(`{"amount": "299.97"}`),
		CreatedAt:        time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestWebhookRepository_CreateAndGetByKey(t *testing.T) {
	db, _ := setupDB(t)
	ctx := context.Background()
	repo := postgres.NewWebhookRepository(db)

	w := newWebhook("key-1")
	if err := repo.CreateWebhook(ctx, w); err != nil {
		t.Fatalf("CreateWebhook: %v", err)
	}

	got, err := repo.GetWebhookByKeyForUpdate(ctx, "key-1")
	if err != nil {
		t.Fatalf("GetWebhookByKeyForUpdate: %v", err)
	}
	if got == nil {
		t.Fatal("expected stored webhook")
	}
	if got.ID != w.ID || got.OrderID != w.OrderID {
		t.Fatalf("unexpected webhook %+v", got)
	}
	if got.ProcessingStatus != domain.ProcessingStatusPending {
		t.Fatalf("expected pending, got %s", got.ProcessingStatus)
	}
	if got.ProcessedAt != nil {
		t.Fatal("expected processed_at unset")
	}
	if string(got.Payload) != `{"amount": "299.97"}` {
		t.Fatalf("unexpected payload %s", got.Payload)
	}

	absent, err := repo.GetWebhookByKeyForUpdate(ctx, "unseen")
	if err != nil {
		t.Fatalf("GetWebhookByKeyForUpdate absent: %v", err)
	}
	if absent != nil {
		t.Fatalf("expected nil for unseen key, got %+v", absent)
	}
}

func TestWebhookRepository_CreateWebhook_DuplicateKey(t *testing.T) {
	db, _ := setupDB(t)
	ctx := context.Background()
	repo := postgres.NewWebhookRepository(db)

	if err := repo.CreateWebhook(ctx, newWebhook("key-1")); err != nil {
		t.Fatalf("first CreateWebhook: %v", err)
	}
	if err := repo.CreateWebhook(ctx, newWebhook("key-1")); !errors.Is(err, domain.ErrDuplicateWebhook) {
		t.Fatalf("expected ErrDuplicateWebhook, got %v", err)
	}
}

func TestWebhookRepository_MarkWebhookProcessed(t *testing.T) {
	db, _ := setupDB(t)
	ctx := context.Background()
	repo := postgres.NewWebhookRepository(db)

	w := newWebhook("key-1")
	if err := repo.CreateWebhook(ctx, w); err != nil {
		t.Fatalf("CreateWebhook: %v", err)
	}

	processedAt := time.Now().UTC().Truncate(time.Microsecond)
	if err := repo.MarkWebhookProcessed(ctx, w.ID, processedAt); err != nil {
		t.Fatalf("MarkWebhookProcessed: %v", err)
	}

	got, err := repo.GetWebhookForUpdate(ctx, w.ID)
	if err != nil {
		t.Fatalf("GetWebhookForUpdate: %v", err)
	}
	if got.ProcessingStatus != domain.ProcessingStatusProcessed {
		t.Fatalf("expected processed, got %s", got.ProcessingStatus)
	}
	if got.ProcessedAt == nil || !got.ProcessedAt.Equal(processedAt) {
		t.Fatalf("expected processed_at %v, got %v", processedAt, got.ProcessedAt)
	}

	if err := repo.MarkWebhookProcessed(ctx, uuid.NewString(), processedAt); err == nil {
		t.Fatal("expected error for unknown webhook")
	}
}

func TestWebhookRepository_ListPendingWebhooks(t *testing.T) {
	db, _ := setupDB(t)
	ctx := context.Background()
	repo := postgres.NewWebhookRepository(db)

	first := newWebhook("key-1")
	first.CreatedAt = time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)
	second := newWebhook("key-2")
	done := newWebhook("key-3")
	done.ProcessingStatus = domain.ProcessingStatusProcessed
	processedAt := time.Now().UTC()
	done.ProcessedAt = &processedAt

	for _, w := range []domain.PaymentWebhook{first, second, done} {
		if err := repo.CreateWebhook(ctx, w); err != nil {
			t.Fatalf("CreateWebhook %s: %v", w.IdempotencyKey, err)
		}
	}

	pending, err := repo.ListPendingWebhooks(ctx, time.Time{}, uuid.Nil.String(), 10)
	if err != nil {
		t.Fatalf("ListPendingWebhooks: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(pending))
	}
	if pending[0].ID != first.ID {
		t.Fatalf("expected oldest first, got %s", pending[0].ID)
	}

	limited, err := repo.ListPendingWebhooks(ctx, time.Time{}, uuid.Nil.String(), 1)
	if err != nil {
		t.Fatalf("ListPendingWebhooks limited: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != first.ID {
		t.Fatalf("expected only the oldest row, got %+v", limited)
	}

	// The cursor steps strictly past the last row of the previous page.
	rest, err := repo.ListPendingWebhooks(ctx, limited[0].CreatedAt, limited[0].ID, 10)
	if err != nil {
		t.Fatalf("ListPendingWebhooks after cursor: %v", err)
	}
	if len(rest) != 1 || rest[0].ID != second.ID {
		t.Fatalf("expected only the younger row after the cursor, got %+v", rest)
	}
}
