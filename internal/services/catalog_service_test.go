package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

func strPtr(v string) *string { return &v }

func int64Ptr(v int64) *int64 { return &v }

type stubCategoryRepository struct {
	insertFunc     func(ctx context.Context, category domain.Category) error
	updateFunc     func(ctx context.Context, category domain.Category) error
	softDeleteFunc func(ctx context.Context, categoryID string, deletedAt time.Time) error
	findByIDFunc   func(ctx context.Context, categoryID string) (domain.Category, error)
	findByNameFunc func(ctx context.Context, name string) (domain.Category, error)
	listFunc       func(ctx context.Context, filter repositories.CategoryListFilter) ([]domain.Category, error)
}

func (s *stubCategoryRepository) Insert(ctx context.Context, category domain.Category) error {
	if s.insertFunc != nil {
		return s.insertFunc(ctx, category)
	}
	return nil
}

func (s *stubCategoryRepository) Update(ctx context.Context, category domain.Category) error {
	if s.updateFunc != nil {
		return s.updateFunc(ctx, category)
	}
	return nil
}

func (s *stubCategoryRepository) SoftDelete(ctx context.Context, categoryID string, deletedAt time.Time) error {
	if s.softDeleteFunc != nil {
		return s.softDeleteFunc(ctx, categoryID, deletedAt)
	}
	return nil
}

func (s *stubCategoryRepository) FindByID(ctx context.Context, categoryID string) (domain.Category, error) {
	if s.findByIDFunc != nil {
		return s.findByIDFunc(ctx, categoryID)
	}
	return domain.Category{ID: categoryID}, nil
}

func (s *stubCategoryRepository) FindByName(ctx context.Context, name string) (domain.Category, error) {
	if s.findByNameFunc != nil {
		return s.findByNameFunc(ctx, name)
	}
	return domain.Category{}, errors.New("not implemented")
}

func (s *stubCategoryRepository) List(ctx context.Context, filter repositories.CategoryListFilter) ([]domain.Category, error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, filter)
	}
	return nil, errors.New("not implemented")
}

func TestCatalogServiceCreateProduct(t *testing.T) {
	now := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	var inserted domain.Product

	products := &stubProductRepository{
		insertFunc: func(ctx context.Context, product domain.Product) error {
			inserted = product
			return nil
		},
	}
	service, err := NewCatalogService(CatalogServiceDeps{
		Products:    products,
		Categories:  &stubCategoryRepository{},
		Clock:       func() time.Time { return now },
		IDGenerator: fixedID("ABC123456789"),
	})
	if err != nil {
		t.Fatalf("unexpected error constructing catalog service: %v", err)
	}

	product, err := service.CreateProduct(context.Background(), CreateProductCommand{
		Name:       "  Maple Mug  ",
		Price:      1200,
		CategoryID: "cat_1",
		Quantity:   10,
		Images:     []string{" https://img.example.com/mug.png ", ""},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if product.ID != "prd_ABC123456789" {
		t.Fatalf("unexpected product id %q", product.ID)
	}
	if inserted.Name != "Maple Mug" {
		t.Fatalf("expected trimmed name, got %q", inserted.Name)
	}
	if len(inserted.Images) != 1 {
		t.Fatalf("expected 1 image after trimming, got %d", len(inserted.Images))
	}
	if !inserted.CreatedAt.Equal(now) || !inserted.UpdatedAt.Equal(now) {
		t.Fatalf("expected timestamps %v, got %v / %v", now, inserted.CreatedAt, inserted.UpdatedAt)
	}
}

func TestCatalogServiceCreateProductUnknownCategory(t *testing.T) {
	categories := &stubCategoryRepository{
		findByIDFunc: func(ctx context.Context, categoryID string) (domain.Category, error) {
			return domain.Category{}, repositories.NewStoreError(repositories.ErrorNotFound, "category missing", nil)
		},
	}
	service, err := NewCatalogService(CatalogServiceDeps{
		Products:   &stubProductRepository{},
		Categories: categories,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing catalog service: %v", err)
	}

	_, err = service.CreateProduct(context.Background(), CreateProductCommand{
		Name:       "Mug",
		Price:      100,
		CategoryID: "cat_missing",
	})
	if !errors.Is(err, ErrCategoryNotFound) {
		t.Fatalf("expected ErrCategoryNotFound, got %v", err)
	}
}

func TestCatalogServiceCreateProductNegativePrice(t *testing.T) {
	service, err := NewCatalogService(CatalogServiceDeps{
		Products:   &stubProductRepository{},
		Categories: &stubCategoryRepository{},
	})
	if err != nil {
		t.Fatalf("unexpected error constructing catalog service: %v", err)
	}

	_, err = service.CreateProduct(context.Background(), CreateProductCommand{Name: "Mug", Price: -1})
	if !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected ErrCatalogInvalidInput, got %v", err)
	}
}

func TestCatalogServiceUpdateProductPartialPatch(t *testing.T) {
	now := time.Date(2025, 2, 2, 9, 0, 0, 0, time.UTC)
	var updated domain.Product

	products := &stubProductRepository{
		findByIDFunc: func(ctx context.Context, productID string) (domain.Product, error) {
			return domain.Product{
				ID:          productID,
				Name:        "Maple Mug",
				Description: "A mug",
				Price:       1200,
				Quantity:    10,
				CreatedAt:   now.Add(-24 * time.Hour),
			}, nil
		},
		updateFunc: func(ctx context.Context, product domain.Product) error {
			updated = product
			return nil
		},
	}
	service, err := NewCatalogService(CatalogServiceDeps{
		Products:   products,
		Categories: &stubCategoryRepository{},
		Clock:      func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing catalog service: %v", err)
	}

	product, err := service.UpdateProduct(context.Background(), UpdateProductCommand{
		ProductID: "prd_1",
		Price:     int64Ptr(1500),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if product.Price != 1500 {
		t.Fatalf("expected price 1500, got %d", product.Price)
	}
	if updated.Name != "Maple Mug" {
		t.Fatalf("expected name untouched, got %q", updated.Name)
	}
	if !updated.UpdatedAt.Equal(now) {
		t.Fatalf("expected updatedAt %v, got %v", now, updated.UpdatedAt)
	}
}

func TestCatalogServiceDeleteProductNotFound(t *testing.T) {
	products := &stubProductRepository{
		softDeleteFunc: func(ctx context.Context, productID string, deletedAt time.Time) error {
			return repositories.NewStoreError(repositories.ErrorNotFound, "product missing", nil)
		},
	}
	service, err := NewCatalogService(CatalogServiceDeps{
		Products:   products,
		Categories: &stubCategoryRepository{},
	})
	if err != nil {
		t.Fatalf("unexpected error constructing catalog service: %v", err)
	}

	err = service.DeleteProduct(context.Background(), "prd_missing")
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestCatalogServiceListProductsPriceRange(t *testing.T) {
	service, err := NewCatalogService(CatalogServiceDeps{
		Products:   &stubProductRepository{},
		Categories: &stubCategoryRepository{},
	})
	if err != nil {
		t.Fatalf("unexpected error constructing catalog service: %v", err)
	}

	_, err = service.ListProducts(context.Background(), ProductQuery{
		MinPrice: int64Ptr(2000),
		MaxPrice: int64Ptr(1000),
	})
	if !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected ErrCatalogInvalidInput, got %v", err)
	}
}

func TestCatalogServiceCreateCategoryDuplicateName(t *testing.T) {
	categories := &stubCategoryRepository{
		insertFunc: func(ctx context.Context, category domain.Category) error {
			return repositories.NewStoreError(repositories.ErrorConflict, "category Mugs already exists", nil)
		},
	}
	service, err := NewCatalogService(CatalogServiceDeps{
		Products:   &stubProductRepository{},
		Categories: categories,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing catalog service: %v", err)
	}

	_, err = service.CreateCategory(context.Background(), CreateCategoryCommand{Name: "Mugs"})
	if !errors.Is(err, ErrCategoryExists) {
		t.Fatalf("expected ErrCategoryExists, got %v", err)
	}
}

func TestCatalogServiceUpdateCategoryRejectsSelfParent(t *testing.T) {
	categories := &stubCategoryRepository{
		findByIDFunc: func(ctx context.Context, categoryID string) (domain.Category, error) {
			return domain.Category{ID: categoryID, Name: "Mugs"}, nil
		},
	}
	service, err := NewCatalogService(CatalogServiceDeps{
		Products:   &stubProductRepository{},
		Categories: categories,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing catalog service: %v", err)
	}

	_, err = service.UpdateCategory(context.Background(), UpdateCategoryCommand{
		CategoryID: "cat_1",
		ParentID:   strPtr("cat_1"),
	})
	if !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected ErrCatalogInvalidInput, got %v", err)
	}
}

func TestCatalogServiceCreateCategoryWithParent(t *testing.T) {
	now := time.Date(2025, 2, 3, 15, 0, 0, 0, time.UTC)
	var inserted domain.Category

	categories := &stubCategoryRepository{
		findByIDFunc: func(ctx context.Context, categoryID string) (domain.Category, error) {
			if categoryID != "cat_parent" {
				t.Fatalf("unexpected parent lookup %q", categoryID)
			}
			return domain.Category{ID: categoryID, Name: "Kitchen"}, nil
		},
		insertFunc: func(ctx context.Context, category domain.Category) error {
			inserted = category
			return nil
		},
	}
	service, err := NewCatalogService(CatalogServiceDeps{
		Products:    &stubProductRepository{},
		Categories:  categories,
		Clock:       func() time.Time { return now },
		IDGenerator: fixedID("DEF123456789"),
	})
	if err != nil {
		t.Fatalf("unexpected error constructing catalog service: %v", err)
	}

	category, err := service.CreateCategory(context.Background(), CreateCategoryCommand{
		Name:     "Mugs",
		ParentID: "cat_parent",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if category.ID != "cat_DEF123456789" {
		t.Fatalf("unexpected category id %q", category.ID)
	}
	if inserted.ParentID != "cat_parent" {
		t.Fatalf("expected parent cat_parent, got %q", inserted.ParentID)
	}
}
