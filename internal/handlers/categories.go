package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/maplecart/api/internal/platform/auth"
	"github.com/maplecart/api/internal/platform/httpx"
	"github.com/maplecart/api/internal/services"
)

// CategoryHandlers exposes the public category reads and staff-only mutations.
type CategoryHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
}

// NewCategoryHandlers constructs handlers for the /categories endpoints.
func NewCategoryHandlers(authn *auth.Authenticator, catalog services.CatalogService) *CategoryHandlers {
	return &CategoryHandlers{
		authn:   authn,
		catalog: catalog,
	}
}

// Routes wires the /categories endpoints onto the provided router.
func (h *CategoryHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listCategories)
	r.Get("/{categoryId}", h.getCategory)
	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireFirebaseAuth())
		}
		g.Post("/", h.createCategory)
		g.Put("/{categoryId}", h.updateCategory)
		g.Delete("/{categoryId}", h.deleteCategory)
	})
}

func (h *CategoryHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	categories, err := h.catalog.ListCategories(ctx, services.CategoryQuery{
		ID:   strings.TrimSpace(r.URL.Query().Get("id")),
		Name: strings.TrimSpace(r.URL.Query().Get("name")),
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	payload := categoriesResponse{Categories: make([]categoryPayload, 0, len(categories))}
	for _, category := range categories {
		payload.Categories = append(payload.Categories, buildCategoryPayload(category))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *CategoryHandlers) getCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	category, err := h.catalog.GetCategory(ctx, chi.URLParam(r, "categoryId"))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, categoryResponse{Category: buildCategoryPayload(category)})
}

func (h *CategoryHandlers) createCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := requireStaff(ctx, w); !ok {
		return
	}

	body, err := readLimitedBody(r, maxCatalogBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req createCategoryRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	category, err := h.catalog.CreateCategory(ctx, services.CreateCategoryCommand{
		Name:        req.Name,
		Description: req.Description,
		ParentID:    req.ParentID,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, categoryResponse{Category: buildCategoryPayload(category)})
}

func (h *CategoryHandlers) updateCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := requireStaff(ctx, w); !ok {
		return
	}

	body, err := readLimitedBody(r, maxCatalogBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cmd, err := parseUpdateCategoryRequest(chi.URLParam(r, "categoryId"), body)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	category, err := h.catalog.UpdateCategory(ctx, cmd)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, categoryResponse{Category: buildCategoryPayload(category)})
}

func (h *CategoryHandlers) deleteCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := requireStaff(ctx, w); !ok {
		return
	}

	if err := h.catalog.DeleteCategory(ctx, chi.URLParam(r, "categoryId")); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseUpdateCategoryRequest(categoryID string, body []byte) (services.UpdateCategoryCommand, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return services.UpdateCategoryCommand{}, errors.New("request body must be a JSON object")
	}
	if len(fields) == 0 {
		return services.UpdateCategoryCommand{}, errNoEditableFields
	}

	cmd := services.UpdateCategoryCommand{CategoryID: categoryID}
	for key, raw := range fields {
		switch key {
		case "name", "description", "parent_id":
			if isJSONNull(raw) {
				return services.UpdateCategoryCommand{}, fmt.Errorf("field %q cannot be null", key)
			}
			var value string
			if err := json.Unmarshal(raw, &value); err != nil {
				return services.UpdateCategoryCommand{}, fmt.Errorf("field %q must be a string", key)
			}
			switch key {
			case "name":
				cmd.Name = &value
			case "description":
				cmd.Description = &value
			case "parent_id":
				cmd.ParentID = &value
			}
		default:
			return services.UpdateCategoryCommand{}, fmt.Errorf("field %q is not editable", key)
		}
	}
	return cmd, nil
}

type createCategoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ParentID    string `json:"parent_id"`
}

type categoryResponse struct {
	Category categoryPayload `json:"category"`
}

type categoriesResponse struct {
	Categories []categoryPayload `json:"categories"`
}

type categoryPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ParentID    string `json:"parent_id,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
	DeletedAt   string `json:"deleted_at,omitempty"`
}

func buildCategoryPayload(category services.Category) categoryPayload {
	payload := categoryPayload{
		ID:          category.ID,
		Name:        category.Name,
		Description: category.Description,
		ParentID:    category.ParentID,
		CreatedAt:   formatTime(category.CreatedAt),
		UpdatedAt:   formatTime(category.UpdatedAt),
	}
	if category.DeletedAt != nil {
		payload.DeletedAt = formatTime(*category.DeletedAt)
	}
	return payload
}
