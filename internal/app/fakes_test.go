package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dropkit/checkout/internal/domain"
)

// memStore is an in-memory stand-in for the Postgres repositories. WithTx
// runs the callback directly; the tests that need transactional semantics
// use hooks to inject conflicts instead.
type memStore struct {
	products map[int64]*domain.Product
	holds    map[string]*domain.Hold
	orders   map[string]*domain.Order
	webhooks map[string]*domain.PaymentWebhook

	// createOrderHook, when set, runs instead of the default insert so a
	// test can model a concurrent writer winning the unique hold_id race.
	createOrderHook func(order domain.Order) error

	// createWebhookHook mirrors createOrderHook for the idempotency key.
	createWebhookHook func(w domain.PaymentWebhook) error

	// getOrderForUpdateHook, when set, intercepts order lock-reads so a
	// test can model an order committing while a webhook waits for it.
	getOrderForUpdateHook func(orderID string) (domain.Order, error)
}

func newMemStore() *memStore {
	return &memStore{
		products: make(map[int64]*domain.Product),
		holds:    make(map[string]*domain.Hold),
		orders:   make(map[string]*domain.Order),
		webhooks: make(map[string]*domain.PaymentWebhook),
	}
}

func (m *memStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (m *memStore) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return *p, nil
}

func (m *memStore) GetProductForUpdate(ctx context.Context, id int64) (domain.Product, error) {
	return m.GetProduct(ctx, id)
}

func (m *memStore) CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	p.ID = int64(len(m.products) + 1)
	cp := p
	m.products[p.ID] = &cp
	return p, nil
}

func (m *memStore) ListProducts(ctx context.Context) ([]domain.Product, error) {
	out := make([]domain.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, *p)
	}
	return out, nil
}

func (m *memStore) SumActiveHoldsForUpdate(ctx context.Context, productID int64, now time.Time) (int, error) {
	sum := 0
	for _, h := range m.holds {
		if h.ProductID == productID && h.Status == domain.HoldStatusActive && h.ExpiresAt.After(now) {
			sum += h.Quantity
		}
	}
	return sum, nil
}

func (m *memStore) CreateHold(ctx context.Context, hold domain.Hold) error {
	if _, ok := m.products[hold.ProductID]; !ok {
		return domain.ErrProductNotFound
	}
	cp := hold
	m.holds[hold.ID] = &cp
	return nil
}

func (m *memStore) GetHoldForUpdate(ctx context.Context, holdID string) (domain.Hold, error) {
	h, ok := m.holds[holdID]
	if !ok {
		return domain.Hold{}, domain.ErrHoldNotFound
	}
	return *h, nil
}

func (m *memStore) UpdateHoldStatus(ctx context.Context, holdID string, status domain.HoldStatus) error {
	h, ok := m.holds[holdID]
	if !ok {
		return domain.ErrHoldNotFound
	}
	h.Status = status
	return nil
}

func (m *memStore) ListDueHolds(ctx context.Context, now time.Time, limit int) ([]domain.Hold, error) {
	var due []domain.Hold
	for _, h := range m.holds {
		if h.Status == domain.HoldStatusActive && !h.ExpiresAt.After(now) {
			due = append(due, *h)
			if len(due) == limit {
				break
			}
		}
	}
	return due, nil
}

func (m *memStore) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	p, ok := m.products[productID]
	if !ok || p.Stock < quantity {
		return domain.ErrStockInvariant
	}
	p.Stock -= quantity
	p.Version++
	return nil
}

func (m *memStore) GetOrderByHoldID(ctx context.Context, holdID string) (*domain.Order, error) {
	for _, o := range m.orders {
		if o.HoldID == holdID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	o, ok := m.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return *o, nil
}

func (m *memStore) GetOrderForUpdate(ctx context.Context, orderID string) (domain.Order, error) {
	if m.getOrderForUpdateHook != nil {
		return m.getOrderForUpdateHook(orderID)
	}
	return m.GetOrder(ctx, orderID)
}

func (m *memStore) CreateOrder(ctx context.Context, order domain.Order) error {
	if m.createOrderHook != nil {
		return m.createOrderHook(order)
	}
	return m.insertOrder(order)
}

func (m *memStore) insertOrder(order domain.Order) error {
	for _, o := range m.orders {
		if o.HoldID == order.HoldID {
			return domain.ErrOrderExists
		}
	}
	cp := order
	m.orders[order.ID] = &cp
	return nil
}

func (m *memStore) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) error {
	o, ok := m.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	o.Status = status
	return nil
}

func (m *memStore) GetWebhookByKeyForUpdate(ctx context.Context, key string) (*domain.PaymentWebhook, error) {
	for _, w := range m.webhooks {
		if w.IdempotencyKey == key {
			cp := *w
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) GetWebhookForUpdate(ctx context.Context, id string) (domain.PaymentWebhook, error) {
	w, ok := m.webhooks[id]
	if !ok {
		return domain.PaymentWebhook{}, fmt.Errorf("webhook %s not found", id)
	}
	return *w, nil
}

func (m *memStore) CreateWebhook(ctx context.Context, w domain.PaymentWebhook) error {
	if m.createWebhookHook != nil {
		return m.createWebhookHook(w)
	}
	return m.insertWebhook(w)
}

func (m *memStore) insertWebhook(w domain.PaymentWebhook) error {
	for _, existing := range m.webhooks {
		if existing.IdempotencyKey == w.IdempotencyKey {
			return domain.ErrDuplicateWebhook
		}
	}
	cp := w
	m.webhooks[w.ID] = &cp
	return nil
}

func (m *memStore) MarkWebhookProcessed(ctx context.Context, id string, processedAt time.Time) error {
	w, ok := m.webhooks[id]
	if !ok {
		return fmt.Errorf("webhook %s not found", id)
	}
	w.ProcessingStatus = domain.ProcessingStatusProcessed
	at := processedAt
	w.ProcessedAt = &at
	return nil
}

func (m *memStore) ListPendingWebhooks(ctx context.Context, afterCreatedAt time.Time, afterID string, limit int) ([]domain.PaymentWebhook, error) {
	var pending []domain.PaymentWebhook
	for _, w := range m.webhooks {
		if w.ProcessingStatus != domain.ProcessingStatusPending {
			continue
		}
		if w.CreatedAt.Before(afterCreatedAt) || (w.CreatedAt.Equal(afterCreatedAt) && w.ID <= afterID) {
			continue
		}
		pending = append(pending, *w)
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].ID < pending[j].ID
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// fakeInvalidator records cache invalidations per product.
type fakeInvalidator struct {
	invalidated []int64
}

func (f *fakeInvalidator) Invalidate(ctx context.Context, productID int64) {
	f.invalidated = append(f.invalidated, productID)
}

// fakeLocker hands out the admission lock unconditionally unless err is set,
// counting acquisitions and releases.
type fakeLocker struct {
	err      error
	acquired int
	released int
}

func (f *fakeLocker) Acquire(ctx context.Context, productID int64) (func(context.Context), error) {
	if f.err != nil {
		return nil, f.err
	}
	f.acquired++
	return func(context.Context) { f.released++ }, nil
}
