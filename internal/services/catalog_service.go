package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

const (
	productIDPrefix  = "prd_"
	categoryIDPrefix = "cat_"
)

var (
	// ErrCatalogInvalidInput indicates the caller supplied invalid input parameters.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrProductNotFound indicates the requested product does not exist or is deleted.
	ErrProductNotFound = errors.New("catalog: product not found")
	// ErrCategoryNotFound indicates the requested category does not exist or is deleted.
	ErrCategoryNotFound = errors.New("catalog: category not found")
	// ErrCategoryExists indicates a live category already uses the name.
	ErrCategoryExists = errors.New("catalog: category already exists")
	// ErrCatalogUnavailable indicates catalog dependencies are currently unavailable.
	ErrCatalogUnavailable = errors.New("catalog: unavailable")
)

// CatalogServiceDeps wires the dependencies required by the catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Categories  repositories.CategoryRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	products   repositories.ProductRepository
	categories repositories.CategoryRepository
	now        func() time.Time
	newID      func() string
	logger     func(ctx context.Context, event string, fields map[string]any)
}

// NewCatalogService constructs a CatalogService validating required dependencies.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	if deps.Categories == nil {
		return nil, errors.New("catalog service: category repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &catalogService{
		products:   deps.Products,
		categories: deps.Categories,
		now:        func() time.Time { return clock().UTC() },
		newID:      idGen,
		logger:     logger,
	}, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return Product{}, fmt.Errorf("%w: product name is required", ErrCatalogInvalidInput)
	}
	if cmd.Price < 0 {
		return Product{}, fmt.Errorf("%w: price must not be negative", ErrCatalogInvalidInput)
	}
	if cmd.Quantity < 0 {
		return Product{}, fmt.Errorf("%w: quantity must not be negative", ErrCatalogInvalidInput)
	}

	if categoryID := strings.TrimSpace(cmd.CategoryID); categoryID != "" {
		if _, err := s.categories.FindByID(ctx, categoryID); err != nil {
			return Product{}, s.translateCategoryError(err)
		}
	}

	now := s.now()
	product := domain.Product{
		ID:          productIDPrefix + s.newID(),
		Name:        name,
		Description: strings.TrimSpace(cmd.Description),
		Price:       cmd.Price,
		CategoryID:  strings.TrimSpace(cmd.CategoryID),
		Quantity:    cmd.Quantity,
		Images:      trimStrings(cmd.Images),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.products.Insert(ctx, product); err != nil {
		return Product{}, s.translateProductError(err)
	}
	return product, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.translateProductError(err)
	}

	if cmd.Name != nil {
		name := strings.TrimSpace(*cmd.Name)
		if name == "" {
			return Product{}, fmt.Errorf("%w: product name must not be empty", ErrCatalogInvalidInput)
		}
		product.Name = name
	}
	if cmd.Description != nil {
		product.Description = strings.TrimSpace(*cmd.Description)
	}
	if cmd.Price != nil {
		if *cmd.Price < 0 {
			return Product{}, fmt.Errorf("%w: price must not be negative", ErrCatalogInvalidInput)
		}
		product.Price = *cmd.Price
	}
	if cmd.CategoryID != nil {
		categoryID := strings.TrimSpace(*cmd.CategoryID)
		if categoryID != "" {
			if _, err := s.categories.FindByID(ctx, categoryID); err != nil {
				return Product{}, s.translateCategoryError(err)
			}
		}
		product.CategoryID = categoryID
	}
	if cmd.Quantity != nil {
		if *cmd.Quantity < 0 {
			return Product{}, fmt.Errorf("%w: quantity must not be negative", ErrCatalogInvalidInput)
		}
		product.Quantity = *cmd.Quantity
	}
	if cmd.Images != nil {
		product.Images = trimStrings(cmd.Images)
	}
	product.UpdatedAt = s.now()

	if err := s.products.Update(ctx, product); err != nil {
		return Product{}, s.translateProductError(err)
	}
	return product, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, productID string) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	if err := s.products.SoftDelete(ctx, productID, s.now()); err != nil {
		return s.translateProductError(err)
	}
	return nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.translateProductError(err)
	}
	return product, nil
}

func (s *catalogService) ListProducts(ctx context.Context, query ProductQuery) ([]Product, error) {
	if query.MinPrice != nil && query.MaxPrice != nil && *query.MinPrice > *query.MaxPrice {
		return nil, fmt.Errorf("%w: minPrice exceeds maxPrice", ErrCatalogInvalidInput)
	}
	products, err := s.products.List(ctx, repositories.ProductListFilter{
		ID:         strings.TrimSpace(query.ID),
		CategoryID: strings.TrimSpace(query.CategoryID),
		Name:       strings.TrimSpace(query.Name),
		MinPrice:   query.MinPrice,
		MaxPrice:   query.MaxPrice,
		Deleted:    query.Deleted,
	})
	if err != nil {
		return nil, s.translateProductError(err)
	}
	return products, nil
}

func (s *catalogService) CreateCategory(ctx context.Context, cmd CreateCategoryCommand) (Category, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return Category{}, fmt.Errorf("%w: category name is required", ErrCatalogInvalidInput)
	}
	if parentID := strings.TrimSpace(cmd.ParentID); parentID != "" {
		if _, err := s.categories.FindByID(ctx, parentID); err != nil {
			return Category{}, s.translateCategoryError(err)
		}
	}

	now := s.now()
	category := domain.Category{
		ID:          categoryIDPrefix + s.newID(),
		Name:        name,
		Description: strings.TrimSpace(cmd.Description),
		ParentID:    strings.TrimSpace(cmd.ParentID),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.categories.Insert(ctx, category); err != nil {
		return Category{}, s.translateCategoryError(err)
	}
	return category, nil
}

func (s *catalogService) UpdateCategory(ctx context.Context, cmd UpdateCategoryCommand) (Category, error) {
	categoryID := strings.TrimSpace(cmd.CategoryID)
	if categoryID == "" {
		return Category{}, fmt.Errorf("%w: category id is required", ErrCatalogInvalidInput)
	}
	category, err := s.categories.FindByID(ctx, categoryID)
	if err != nil {
		return Category{}, s.translateCategoryError(err)
	}

	if cmd.Name != nil {
		name := strings.TrimSpace(*cmd.Name)
		if name == "" {
			return Category{}, fmt.Errorf("%w: category name must not be empty", ErrCatalogInvalidInput)
		}
		category.Name = name
	}
	if cmd.Description != nil {
		category.Description = strings.TrimSpace(*cmd.Description)
	}
	if cmd.ParentID != nil {
		parentID := strings.TrimSpace(*cmd.ParentID)
		if parentID == categoryID {
			return Category{}, fmt.Errorf("%w: category cannot be its own parent", ErrCatalogInvalidInput)
		}
		if parentID != "" {
			if _, err := s.categories.FindByID(ctx, parentID); err != nil {
				return Category{}, s.translateCategoryError(err)
			}
		}
		category.ParentID = parentID
	}
	category.UpdatedAt = s.now()

	if err := s.categories.Update(ctx, category); err != nil {
		return Category{}, s.translateCategoryError(err)
	}
	return category, nil
}

func (s *catalogService) DeleteCategory(ctx context.Context, categoryID string) error {
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return fmt.Errorf("%w: category id is required", ErrCatalogInvalidInput)
	}
	if err := s.categories.SoftDelete(ctx, categoryID, s.now()); err != nil {
		return s.translateCategoryError(err)
	}
	return nil
}

func (s *catalogService) GetCategory(ctx context.Context, categoryID string) (Category, error) {
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return Category{}, fmt.Errorf("%w: category id is required", ErrCatalogInvalidInput)
	}
	category, err := s.categories.FindByID(ctx, categoryID)
	if err != nil {
		return Category{}, s.translateCategoryError(err)
	}
	return category, nil
}

func (s *catalogService) ListCategories(ctx context.Context, query CategoryQuery) ([]Category, error) {
	categories, err := s.categories.List(ctx, repositories.CategoryListFilter{
		ID:      strings.TrimSpace(query.ID),
		Name:    strings.TrimSpace(query.Name),
		Deleted: query.Deleted,
	})
	if err != nil {
		return nil, s.translateCategoryError(err)
	}
	return categories, nil
}

func (s *catalogService) translateProductError(err error) error {
	var storeErr *repositories.StoreError
	if errors.As(err, &storeErr) {
		switch {
		case storeErr.IsNotFound():
			return fmt.Errorf("%w: %s", ErrProductNotFound, storeErr.Message)
		case storeErr.IsConflict():
			return fmt.Errorf("%w: %s", ErrCatalogInvalidInput, storeErr.Message)
		case storeErr.IsUnavailable():
			return fmt.Errorf("%w: %s", ErrCatalogUnavailable, storeErr.Message)
		}
	}
	return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
}

func (s *catalogService) translateCategoryError(err error) error {
	var storeErr *repositories.StoreError
	if errors.As(err, &storeErr) {
		switch {
		case storeErr.IsNotFound():
			return fmt.Errorf("%w: %s", ErrCategoryNotFound, storeErr.Message)
		case storeErr.IsConflict():
			return fmt.Errorf("%w: %s", ErrCategoryExists, storeErr.Message)
		case storeErr.IsUnavailable():
			return fmt.Errorf("%w: %s", ErrCatalogUnavailable, storeErr.Message)
		}
	}
	return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
}

func trimStrings(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
