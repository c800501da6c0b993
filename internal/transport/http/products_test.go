package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dropkit/checkout/internal/app"
	"github.com/dropkit/checkout/internal/domain"
	"github.com/shopspring/decimal"
)

type stubProductGetter struct {
	view app.ProductView
	err  error
}

func (s *stubProductGetter) GetProduct(ctx context.Context, id int64) (app.ProductView, error) {
	if s.err != nil {
		return app.ProductView{}, s.err
	}
	return s.view, nil
}

func TestHandleGetProduct(t *testing.T) {
	t.Run("serves the product view", func(t *testing.T) {
		stub := &stubProductGetter{view: app.ProductView{
			Product: domain.Product{
				ID:    1,
				Name:  "limited sneaker",
				Price: decimal.NewFromFloat(129.90),
				Stock: 500,
			},
			AvailableStock: 42,
		}}
		req := httptest.NewRequest(http.MethodGet, "/api/products/1", nil)
		rec := httptest.NewRecorder()

		HandleGetProduct(stub).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		var resp map[string]any
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp["name"] != "limited sneaker" {
			t.Fatalf("unexpected name %v", resp["name"])
		}
		if resp["price"] != "129.9" {
			t.Fatalf("expected price \"129.9\", got %v", resp["price"])
		}
		if resp["available_stock"] != float64(42) {
			t.Fatalf("expected available_stock 42, got %v", resp["available_stock"])
		}
		if _, ok := resp["stock"]; ok {
			t.Fatal("physical stock must not appear in the public view")
		}
	})

	t.Run("unknown product", func(t *testing.T) {
		stub := &stubProductGetter{err: domain.ErrProductNotFound}
		req := httptest.NewRequest(http.MethodGet, "/api/products/42", nil)
		rec := httptest.NewRecorder()

		HandleGetProduct(stub).ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d", rec.Code)
		}
	})

	t.Run("path validation", func(t *testing.T) {
		for _, path := range []string{
			"/api/products/",
			"/api/products/abc",
			"/api/products/0",
			"/api/products/-1",
			"/api/products/1/extra",
		} {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			rec := httptest.NewRecorder()

			HandleGetProduct(&stubProductGetter{}).ServeHTTP(rec, req)

			if rec.Code != http.StatusNotFound {
				t.Fatalf("%s: expected status 404, got %d", path, rec.Code)
			}
		}
	})

	t.Run("method not allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/products/1", nil)
		rec := httptest.NewRecorder()

		HandleGetProduct(&stubProductGetter{}).ServeHTTP(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected status 405, got %d", rec.Code)
		}
	})
}
