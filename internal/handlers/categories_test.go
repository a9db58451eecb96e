package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/maplecart/api/internal/platform/auth"
	"github.com/maplecart/api/internal/services"
)

func TestCategoryHandlersListCategoriesPublic(t *testing.T) {
	service := &stubCatalogService{
		listCategoriesFunc: func(ctx context.Context, query services.CategoryQuery) ([]services.Category, error) {
			return []services.Category{
				{ID: "cat_1", Name: "Pantry"},
				{ID: "cat_2", Name: "Snacks", ParentID: "cat_1"},
			}, nil
		},
	}

	handler := NewCategoryHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/categories", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/categories", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp categoriesResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Categories) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(resp.Categories))
	}
	if resp.Categories[1].ParentID != "cat_1" {
		t.Fatalf("expected parent cat_1, got %q", resp.Categories[1].ParentID)
	}
}

func TestCategoryHandlersCreateCategoryRequiresStaff(t *testing.T) {
	handler := NewCategoryHandlers(nil, &stubCatalogService{})
	router := chi.NewRouter()
	router.Route("/categories", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/categories", strings.NewReader(`{"name":"Pantry"}`))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}

func TestCategoryHandlersCreateCategoryDuplicate(t *testing.T) {
	service := &stubCatalogService{
		createCategoryFunc: func(ctx context.Context, cmd services.CreateCategoryCommand) (services.Category, error) {
			return services.Category{}, services.ErrCategoryExists
		},
	}

	handler := NewCategoryHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/categories", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/categories", strings.NewReader(`{"name":"Pantry"}`))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "staff-1", Roles: []string{"staff"}}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestCategoryHandlersUpdateCategoryPartial(t *testing.T) {
	var captured services.UpdateCategoryCommand
	service := &stubCatalogService{
		updateCategoryFunc: func(ctx context.Context, cmd services.UpdateCategoryCommand) (services.Category, error) {
			captured = cmd
			return services.Category{ID: cmd.CategoryID, Name: "Pantry"}, nil
		},
	}

	handler := NewCategoryHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/categories", handler.Routes)

	req := httptest.NewRequest(http.MethodPut, "/categories/cat_1", strings.NewReader(`{"description":"Dry goods"}`))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "staff-1", Roles: []string{"staff"}}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.Description == nil || *captured.Description != "Dry goods" {
		t.Fatalf("expected description pointer, got %#v", captured.Description)
	}
	if captured.Name != nil {
		t.Fatalf("expected untouched name, got %#v", captured.Name)
	}
}

func TestCategoryHandlersDeleteCategorySuccess(t *testing.T) {
	deleted := ""
	service := &stubCatalogService{
		deleteCategoryFunc: func(ctx context.Context, categoryID string) error {
			deleted = categoryID
			return nil
		},
	}

	handler := NewCategoryHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/categories", handler.Routes)

	req := httptest.NewRequest(http.MethodDelete, "/categories/cat_1", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "staff-1", Roles: []string{"staff"}}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if deleted != "cat_1" {
		t.Fatalf("expected delete for cat_1, got %q", deleted)
	}
}
