package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/maplecart/api/internal/domain"
	pfirestore "github.com/maplecart/api/internal/platform/firestore"
	"github.com/maplecart/api/internal/repositories"
)

const cartCollection = "carts"

// CartRepository persists one cart per user, keyed by the user id.
type CartRepository struct {
	base *pfirestore.BaseRepository[cartDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartCollection, nil, nil)
	return &CartRepository{base: base}, nil
}

// Get loads the cart for the user.
func (r *CartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}
	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.Cart{}, wrapStoreError("carts.get", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

// Save upserts the cart document for the user.
func (r *CartRepository) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	userID := strings.TrimSpace(cart.UserID)
	if userID == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}
	doc := newCartDocument(cart)
	result, err := r.base.Set(ctx, userID, doc)
	if err != nil {
		return domain.Cart{}, wrapStoreError("carts.save", err)
	}
	saved := doc.toDomain(userID)
	if !result.UpdateTime.IsZero() {
		saved.UpdatedAt = result.UpdateTime
	}
	return saved, nil
}

// Delete removes the cart document. Deleting an absent cart is not an error.
func (r *CartRepository) Delete(ctx context.Context, userID string) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("cart repository: user id is required")
	}
	if err := r.base.Delete(ctx, userID); err != nil {
		err = wrapStoreError("carts.delete", err)
		var storeErr *repositories.StoreError
		if errors.As(err, &storeErr) && storeErr.IsNotFound() {
			return nil
		}
		return err
	}
	return nil
}

type cartDocument struct {
	Lines     []cartLineDocument `firestore:"lines"`
	CreatedAt time.Time          `firestore:"createdAt"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartLineDocument struct {
	ProductID string `firestore:"productId"`
	Quantity  int64  `firestore:"quantity"`
}

func newCartDocument(cart domain.Cart) cartDocument {
	lines := make([]cartLineDocument, len(cart.Lines))
	for i, line := range cart.Lines {
		lines[i] = cartLineDocument{
			ProductID: strings.TrimSpace(line.ProductID),
			Quantity:  line.Quantity,
		}
	}
	return cartDocument{
		Lines:     lines,
		CreatedAt: cart.CreatedAt.UTC(),
		UpdatedAt: cart.UpdatedAt.UTC(),
	}
}

func (d cartDocument) toDomain(userID string) domain.Cart {
	lines := make([]domain.CartLine, len(d.Lines))
	for i, line := range d.Lines {
		lines[i] = domain.CartLine{ProductID: line.ProductID, Quantity: line.Quantity}
	}
	return domain.Cart{
		UserID:    userID,
		Lines:     lines,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

var _ repositories.CartRepository = (*CartRepository)(nil)
