package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/maplecart/api/internal/platform/auth"
	"github.com/maplecart/api/internal/platform/httpx"
	"github.com/maplecart/api/internal/services"
)

const maxCatalogBodySize = 64 * 1024

// ProductHandlers exposes the public catalog reads and staff-only product mutations.
type ProductHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
}

// NewProductHandlers constructs handlers for the /products endpoints.
func NewProductHandlers(authn *auth.Authenticator, catalog services.CatalogService) *ProductHandlers {
	return &ProductHandlers{
		authn:   authn,
		catalog: catalog,
	}
}

// Routes wires the /products endpoints onto the provided router. Reads are
// public; mutations require an authenticated staff identity.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listProducts)
	r.Get("/{productId}", h.getProduct)
	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireFirebaseAuth())
		}
		g.Post("/", h.createProduct)
		g.Put("/{productId}", h.updateProduct)
		g.Delete("/{productId}", h.deleteProduct)
	})
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	query := services.ProductQuery{
		ID:         strings.TrimSpace(r.URL.Query().Get("id")),
		CategoryID: strings.TrimSpace(r.URL.Query().Get("categoryId")),
		Name:       strings.TrimSpace(r.URL.Query().Get("name")),
	}
	for _, bound := range []struct {
		param string
		dest  **int64
	}{
		{"minPrice", &query.MinPrice},
		{"maxPrice", &query.MaxPrice},
	} {
		raw := strings.TrimSpace(r.URL.Query().Get(bound.param))
		if raw == "" {
			continue
		}
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("%s must be an integer", bound.param), http.StatusBadRequest))
			return
		}
		*bound.dest = &value
	}

	products, err := h.catalog.ListProducts(ctx, query)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	payload := productsResponse{Products: make([]productPayload, 0, len(products))}
	for _, product := range products {
		payload.Products = append(payload.Products, buildProductPayload(product))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	product, err := h.catalog.GetProduct(ctx, chi.URLParam(r, "productId"))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func (h *ProductHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
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

	var req createProductRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	product, err := h.catalog.CreateProduct(ctx, services.CreateProductCommand{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		CategoryID:  req.CategoryID,
		Quantity:    req.Quantity,
		Images:      req.Images,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, productResponse{Product: buildProductPayload(product)})
}

func (h *ProductHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
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

	cmd, err := parseUpdateProductRequest(chi.URLParam(r, "productId"), body)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	product, err := h.catalog.UpdateProduct(ctx, cmd)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func (h *ProductHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := requireStaff(ctx, w); !ok {
		return
	}

	if err := h.catalog.DeleteProduct(ctx, chi.URLParam(r, "productId")); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseUpdateProductRequest(productID string, body []byte) (services.UpdateProductCommand, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return services.UpdateProductCommand{}, errors.New("request body must be a JSON object")
	}
	if len(fields) == 0 {
		return services.UpdateProductCommand{}, errNoEditableFields
	}

	cmd := services.UpdateProductCommand{ProductID: productID}
	for key, raw := range fields {
		if isJSONNull(raw) {
			return services.UpdateProductCommand{}, fmt.Errorf("field %q cannot be null", key)
		}
		switch key {
		case "name":
			var value string
			if err := json.Unmarshal(raw, &value); err != nil {
				return services.UpdateProductCommand{}, errors.New(`field "name" must be a string`)
			}
			cmd.Name = &value
		case "description":
			var value string
			if err := json.Unmarshal(raw, &value); err != nil {
				return services.UpdateProductCommand{}, errors.New(`field "description" must be a string`)
			}
			cmd.Description = &value
		case "price":
			var value int64
			if err := json.Unmarshal(raw, &value); err != nil {
				return services.UpdateProductCommand{}, errors.New(`field "price" must be an integer`)
			}
			cmd.Price = &value
		case "category_id":
			var value string
			if err := json.Unmarshal(raw, &value); err != nil {
				return services.UpdateProductCommand{}, errors.New(`field "category_id" must be a string`)
			}
			cmd.CategoryID = &value
		case "quantity":
			var value int64
			if err := json.Unmarshal(raw, &value); err != nil {
				return services.UpdateProductCommand{}, errors.New(`field "quantity" must be an integer`)
			}
			cmd.Quantity = &value
		case "images":
			var value []string
			if err := json.Unmarshal(raw, &value); err != nil {
				return services.UpdateProductCommand{}, errors.New(`field "images" must be an array of strings`)
			}
			cmd.Images = value
		default:
			return services.UpdateProductCommand{}, fmt.Errorf("field %q is not editable", key)
		}
	}
	return cmd, nil
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCategoryNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("category_not_found", "category not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCategoryExists):
		httpx.WriteError(ctx, w, httpx.NewError("category_exists", "a category with this name already exists", http.StatusConflict))
	case errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}

type createProductRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       int64    `json:"price"`
	CategoryID  string   `json:"category_id"`
	Quantity    int64    `json:"quantity"`
	Images      []string `json:"images"`
}

type productResponse struct {
	Product productPayload `json:"product"`
}

type productsResponse struct {
	Products []productPayload `json:"products"`
}

type productPayload struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Price       int64    `json:"price"`
	CategoryID  string   `json:"category_id,omitempty"`
	Quantity    int64    `json:"quantity"`
	Images      []string `json:"images,omitempty"`
	CreatedAt   string   `json:"created_at,omitempty"`
	UpdatedAt   string   `json:"updated_at,omitempty"`
	DeletedAt   string   `json:"deleted_at,omitempty"`
}

func buildProductPayload(product services.Product) productPayload {
	payload := productPayload{
		ID:          product.ID,
		Name:        product.Name,
		Description: product.Description,
		Price:       product.Price,
		CategoryID:  product.CategoryID,
		Quantity:    product.Quantity,
		Images:      product.Images,
		CreatedAt:   formatTime(product.CreatedAt),
		UpdatedAt:   formatTime(product.UpdatedAt),
	}
	if product.DeletedAt != nil {
		payload.DeletedAt = formatTime(*product.DeletedAt)
	}
	return payload
}
