package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/maplecart/api/internal/domain"
	pfirestore "github.com/maplecart/api/internal/platform/firestore"
	"github.com/maplecart/api/internal/repositories"
)

const productCollection = "products"

// ProductRepository persists catalog products in Firestore.
type ProductRepository struct {
	base     *pfirestore.BaseRepository[productDocument]
	provider *pfirestore.Provider
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productCollection, nil, nil)
	return &ProductRepository{base: base, provider: provider}, nil
}

// Insert creates the product document, failing when the id is already taken.
func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	if strings.TrimSpace(product.ID) == "" {
		return errors.New("product repository: product id is required")
	}
	if _, err := r.base.Create(ctx, product.ID, newProductDocument(product)); err != nil {
		return wrapStoreError("products.insert", err)
	}
	return nil
}

// Update replaces the product document. Missing documents surface as not found.
func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	productID := strings.TrimSpace(product.ID)
	if productID == "" {
		return errors.New("product repository: product id is required")
	}
	doc := newProductDocument(product)
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, productID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var existing productDocument
		if err := snap.DataTo(&existing); err != nil {
			return fmt.Errorf("decode product %s: %w", productID, err)
		}
		if existing.DeletedAt != nil {
			return notFoundError("products.update", fmt.Sprintf("product %s not found", productID), nil)
		}
		doc.CreatedAt = existing.CreatedAt
		return tx.Set(ref, doc)
	})
	if err != nil {
		return wrapStoreError("products.update", err)
	}
	return nil
}

// SoftDelete marks the product deleted without removing the document.
func (r *ProductRepository) SoftDelete(ctx context.Context, productID string, deletedAt time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return errors.New("product repository: product id is required")
	}
	stamp := deletedAt.UTC()
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, productID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var existing productDocument
		if err := snap.DataTo(&existing); err != nil {
			return fmt.Errorf("decode product %s: %w", productID, err)
		}
		if existing.DeletedAt != nil {
			return notFoundError("products.softDelete", fmt.Sprintf("product %s not found", productID), nil)
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "deletedAt", Value: stamp},
			{Path: "updatedAt", Value: stamp},
		})
	})
	if err != nil {
		return wrapStoreError("products.softDelete", err)
	}
	return nil
}

// FindByID loads a product. Soft-deleted products are reported as not found.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, errors.New("product repository: product id is required")
	}
	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, wrapStoreError("products.findByID", err)
	}
	product := doc.Data.toDomain(doc.ID)
	if product.Deleted() {
		return domain.Product{}, notFoundError("products.findByID", fmt.Sprintf("product %s not found", productID), nil)
	}
	return product, nil
}

// List returns products matching the filter. Equality filters run in
// Firestore; name matching folds case and diacritics in memory.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) ([]domain.Product, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("product repository not initialised")
	}
	if id := strings.TrimSpace(filter.ID); id != "" {
		product, err := r.FindByID(ctx, id)
		if err != nil {
			var storeErr *repositories.StoreError
			if errors.As(err, &storeErr) && storeErr.IsNotFound() {
				return []domain.Product{}, nil
			}
			return nil, err
		}
		if !includeDeleted(filter.Deleted, product.Deleted()) || !matchesName(product.Name, filter.Name) {
			return []domain.Product{}, nil
		}
		return []domain.Product{product}, nil
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		if categoryID := strings.TrimSpace(filter.CategoryID); categoryID != "" {
			query = query.Where("categoryId", "==", categoryID)
		}
		if filter.MinPrice != nil {
			query = query.Where("price", ">=", *filter.MinPrice)
		}
		if filter.MaxPrice != nil {
			query = query.Where("price", "<=", *filter.MaxPrice)
		}
		return query
	})
	if err != nil {
		return nil, wrapStoreError("products.list", err)
	}

	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		product := doc.Data.toDomain(doc.ID)
		if !includeDeleted(filter.Deleted, product.Deleted()) {
			continue
		}
		if !matchesName(product.Name, filter.Name) {
			continue
		}
		products = append(products, product)
	}
	return products, nil
}

type productDocument struct {
	Name        string     `firestore:"name"`
	Description string     `firestore:"description,omitempty"`
	Price       int64      `firestore:"price"`
	CategoryID  string     `firestore:"categoryId,omitempty"`
	Quantity    int64      `firestore:"quantity"`
	Images      []string   `firestore:"images,omitempty"`
	CreatedAt   time.Time  `firestore:"createdAt"`
	UpdatedAt   time.Time  `firestore:"updatedAt"`
	DeletedAt   *time.Time `firestore:"deletedAt,omitempty"`
}

func newProductDocument(product domain.Product) productDocument {
	return productDocument{
		Name:        strings.TrimSpace(product.Name),
		Description: strings.TrimSpace(product.Description),
		Price:       product.Price,
		CategoryID:  strings.TrimSpace(product.CategoryID),
		Quantity:    product.Quantity,
		Images:      append([]string(nil), product.Images...),
		CreatedAt:   product.CreatedAt.UTC(),
		UpdatedAt:   product.UpdatedAt.UTC(),
		DeletedAt:   product.DeletedAt,
	}
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:          id,
		Name:        d.Name,
		Description: d.Description,
		Price:       d.Price,
		CategoryID:  d.CategoryID,
		Quantity:    d.Quantity,
		Images:      append([]string(nil), d.Images...),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		DeletedAt:   d.DeletedAt,
	}
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)
