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

const categoryCollection = "categories"

// CategoryRepository persists product categories in Firestore.
type CategoryRepository struct {
	base     *pfirestore.BaseRepository[categoryDocument]
	provider *pfirestore.Provider
}

// NewCategoryRepository constructs a Firestore-backed category repository.
func NewCategoryRepository(provider *pfirestore.Provider) (*CategoryRepository, error) {
	if provider == nil {
		return nil, errors.New("category repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[categoryDocument](provider, categoryCollection, nil, nil)
	return &CategoryRepository{base: base, provider: provider}, nil
}

// Insert creates the category after checking the name is not already in use
// by a live category. The check and write share one transaction.
func (r *CategoryRepository) Insert(ctx context.Context, category domain.Category) error {
	if r == nil || r.base == nil {
		return errors.New("category repository not initialised")
	}
	categoryID := strings.TrimSpace(category.ID)
	if categoryID == "" {
		return errors.New("category repository: category id is required")
	}
	name := strings.TrimSpace(category.Name)
	if name == "" {
		return errors.New("category repository: category name is required")
	}

	doc := newCategoryDocument(category)
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		client, err := r.provider.Client(ctx)
		if err != nil {
			return err
		}
		query := client.Collection(categoryCollection).Where("nameFolded", "==", doc.NameFolded).Limit(1)
		snaps, err := tx.Documents(query).GetAll()
		if err != nil {
			return err
		}
		for _, snap := range snaps {
			var existing categoryDocument
			if err := snap.DataTo(&existing); err != nil {
				return fmt.Errorf("decode category %s: %w", snap.Ref.ID, err)
			}
			if existing.DeletedAt == nil {
				return conflictError("categories.insert", fmt.Sprintf("category name %q already exists", name), nil)
			}
		}
		ref, err := r.base.DocumentRef(ctx, categoryID)
		if err != nil {
			return err
		}
		return tx.Create(ref, doc)
	})
	if err != nil {
		return wrapStoreError("categories.insert", err)
	}
	return nil
}

// Update replaces the category document, preserving its creation timestamp.
func (r *CategoryRepository) Update(ctx context.Context, category domain.Category) error {
	if r == nil || r.base == nil {
		return errors.New("category repository not initialised")
	}
	categoryID := strings.TrimSpace(category.ID)
	if categoryID == "" {
		return errors.New("category repository: category id is required")
	}
	doc := newCategoryDocument(category)
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, categoryID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var existing categoryDocument
		if err := snap.DataTo(&existing); err != nil {
			return fmt.Errorf("decode category %s: %w", categoryID, err)
		}
		if existing.DeletedAt != nil {
			return notFoundError("categories.update", fmt.Sprintf("category %s not found", categoryID), nil)
		}
		doc.CreatedAt = existing.CreatedAt
		return tx.Set(ref, doc)
	})
	if err != nil {
		return wrapStoreError("categories.update", err)
	}
	return nil
}

// SoftDelete marks the category deleted without removing the document.
func (r *CategoryRepository) SoftDelete(ctx context.Context, categoryID string, deletedAt time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("category repository not initialised")
	}
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return errors.New("category repository: category id is required")
	}
	stamp := deletedAt.UTC()
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, categoryID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var existing categoryDocument
		if err := snap.DataTo(&existing); err != nil {
			return fmt.Errorf("decode category %s: %w", categoryID, err)
		}
		if existing.DeletedAt != nil {
			return notFoundError("categories.softDelete", fmt.Sprintf("category %s not found", categoryID), nil)
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "deletedAt", Value: stamp},
			{Path: "updatedAt", Value: stamp},
		})
	})
	if err != nil {
		return wrapStoreError("categories.softDelete", err)
	}
	return nil
}

// FindByID loads a category. Soft-deleted categories are reported as not found.
func (r *CategoryRepository) FindByID(ctx context.Context, categoryID string) (domain.Category, error) {
	if r == nil || r.base == nil {
		return domain.Category{}, errors.New("category repository not initialised")
	}
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return domain.Category{}, errors.New("category repository: category id is required")
	}
	doc, err := r.base.Get(ctx, categoryID)
	if err != nil {
		return domain.Category{}, wrapStoreError("categories.findByID", err)
	}
	category := doc.Data.toDomain(doc.ID)
	if category.Deleted() {
		return domain.Category{}, notFoundError("categories.findByID", fmt.Sprintf("category %s not found", categoryID), nil)
	}
	return category, nil
}

// FindByName loads the live category with the given name, folding case and
// diacritics for the comparison.
func (r *CategoryRepository) FindByName(ctx context.Context, name string) (domain.Category, error) {
	if r == nil || r.base == nil {
		return domain.Category{}, errors.New("category repository not initialised")
	}
	folded := foldName(name)
	if folded == "" {
		return domain.Category{}, errors.New("category repository: category name is required")
	}
	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("nameFolded", "==", folded)
	})
	if err != nil {
		return domain.Category{}, wrapStoreError("categories.findByName", err)
	}
	for _, doc := range docs {
		category := doc.Data.toDomain(doc.ID)
		if !category.Deleted() {
			return category, nil
		}
	}
	return domain.Category{}, notFoundError("categories.findByName", fmt.Sprintf("category %q not found", strings.TrimSpace(name)), nil)
}

// List returns categories matching the filter.
func (r *CategoryRepository) List(ctx context.Context, filter repositories.CategoryListFilter) ([]domain.Category, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("category repository not initialised")
	}
	if id := strings.TrimSpace(filter.ID); id != "" {
		doc, err := r.base.Get(ctx, id)
		if err != nil {
			err = wrapStoreError("categories.list", err)
			var storeErr *repositories.StoreError
			if errors.As(err, &storeErr) && storeErr.IsNotFound() {
				return []domain.Category{}, nil
			}
			return nil, err
		}
		category := doc.Data.toDomain(doc.ID)
		if !includeDeleted(filter.Deleted, category.Deleted()) || !matchesName(category.Name, filter.Name) {
			return []domain.Category{}, nil
		}
		return []domain.Category{category}, nil
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query
	})
	if err != nil {
		return nil, wrapStoreError("categories.list", err)
	}
	categories := make([]domain.Category, 0, len(docs))
	for _, doc := range docs {
		category := doc.Data.toDomain(doc.ID)
		if !includeDeleted(filter.Deleted, category.Deleted()) {
			continue
		}
		if !matchesName(category.Name, filter.Name) {
			continue
		}
		categories = append(categories, category)
	}
	return categories, nil
}

type categoryDocument struct {
	Name        string     `firestore:"name"`
	NameFolded  string     `firestore:"nameFolded"`
	Description string     `firestore:"description,omitempty"`
	ParentID    string     `firestore:"parentId,omitempty"`
	CreatedAt   time.Time  `firestore:"createdAt"`
	UpdatedAt   time.Time  `firestore:"updatedAt"`
	DeletedAt   *time.Time `firestore:"deletedAt,omitempty"`
}

func newCategoryDocument(category domain.Category) categoryDocument {
	name := strings.TrimSpace(category.Name)
	return categoryDocument{
		Name:        name,
		NameFolded:  foldName(name),
		Description: strings.TrimSpace(category.Description),
		ParentID:    strings.TrimSpace(category.ParentID),
		CreatedAt:   category.CreatedAt.UTC(),
		UpdatedAt:   category.UpdatedAt.UTC(),
		DeletedAt:   category.DeletedAt,
	}
}

func (d categoryDocument) toDomain(id string) domain.Category {
	return domain.Category{
		ID:          id,
		Name:        d.Name,
		Description: d.Description,
		ParentID:    d.ParentID,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		DeletedAt:   d.DeletedAt,
	}
}

var _ repositories.CategoryRepository = (*CategoryRepository)(nil)
