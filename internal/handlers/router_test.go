package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/maplecart/api/internal/platform/auth"
	"github.com/maplecart/api/internal/services"
)

func TestNewRouterServesHealthEndpoints(t *testing.T) {
	router := NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

func TestNewRouterUnknownRouteReturnsJSON(t *testing.T) {
	router := NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}

	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("expected JSON error envelope: %v", err)
	}
	if payload["error"] != "route_not_found" {
		t.Fatalf("unexpected error code %v", payload["error"])
	}
}

func TestNewRouterUnwiredGroupReturnsNotImplemented(t *testing.T) {
	router := NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("expected status 501, got %d", rr.Code)
	}
}

func TestNewRouterMountsRegistrars(t *testing.T) {
	products := NewProductHandlers(nil, &stubCatalogService{
		listProductsFunc: func(ctx context.Context, query services.ProductQuery) ([]services.Product, error) {
			return []services.Product{{ID: "prd_1", Name: "Maple syrup"}}, nil
		},
	})

	router := NewRouter(WithProductRoutes(products.Routes))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp productsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Products) != 1 {
		t.Fatalf("expected 1 product, got %d", len(resp.Products))
	}
}

func TestNewRouterOrderMiddlewaresApply(t *testing.T) {
	applied := false
	marker := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			applied = true
			next.ServeHTTP(w, r)
		})
	}

	orders := NewOrderHandlers(nil, &stubOrderService{
		listFunc: func(ctx context.Context, query services.OrderQuery) ([]services.Order, error) {
			return nil, nil
		},
	})

	router := NewRouter(
		WithOrderRoutes(orders.Routes),
		WithOrderMiddlewares(marker),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !applied {
		t.Fatalf("expected order middleware to run")
	}
}

func TestNewRouterGeographyRoutesMountAtAPIRoot(t *testing.T) {
	geographies := NewGeographyHandlers(nil, &stubGeographyService{
		listStatesFunc: func(ctx context.Context, query services.StateQuery) ([]services.State, error) {
			return []services.State{{ID: "st_1", Name: "Ontario"}}, nil
		},
	})

	router := NewRouter(WithGeographyRoutes(geographies.Routes))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/states", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}
