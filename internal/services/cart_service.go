package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

var (
	// ErrCartInvalidInput indicates the caller supplied invalid input parameters.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartProductNotFound indicates the referenced product does not exist.
	ErrCartProductNotFound = errors.New("cart: product not found")
	// ErrCartItemNotFound indicates the product is not present in the cart.
	ErrCartItemNotFound = errors.New("cart: item not found")
	// ErrCartInsufficientStock indicates the catalog cannot cover the requested quantity.
	ErrCartInsufficientStock = errors.New("cart: insufficient stock")
	// ErrCartUnavailable indicates cart dependencies are currently unavailable.
	ErrCartUnavailable = errors.New("cart: unavailable")
)

// CartServiceDeps wires the dependencies required by the cart service.
type CartServiceDeps struct {
	Carts    repositories.CartRepository
	Products repositories.ProductRepository
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type cartService struct {
	carts    repositories.CartRepository
	products repositories.ProductRepository
	now      func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewCartService constructs a CartService validating required dependencies.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("cart service: product repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &cartService{
		carts:    deps.Carts,
		products: deps.Products,
		now:      func() time.Time { return clock().UTC() },
		logger:   logger,
	}, nil
}

// GetCart returns the user's cart. A user with no saved cart gets an empty one.
func (s *cartService) GetCart(ctx context.Context, userID string) (Cart, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		var storeErr *repositories.StoreError
		if errors.As(err, &storeErr) && storeErr.IsNotFound() {
			return Cart{UserID: userID}, nil
		}
		return Cart{}, s.translateCartError(err)
	}
	return cart, nil
}

// AddItem adds the requested quantity to the product's cart line, creating the
// line when absent. The product must exist and have enough stock to cover the
// resulting line quantity.
func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error) {
	userID := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	if userID == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	if productID == "" {
		return Cart{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return Cart{}, fmt.Errorf("%w: quantity must be positive", ErrCartInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		var storeErr *repositories.StoreError
		if errors.As(err, &storeErr) && storeErr.IsNotFound() {
			return Cart{}, fmt.Errorf("%w: %s", ErrCartProductNotFound, productID)
		}
		return Cart{}, s.translateCartError(err)
	}

	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return Cart{}, err
	}

	total := cmd.Quantity
	index := -1
	for i := range cart.Lines {
		if cart.Lines[i].ProductID == productID {
			total += cart.Lines[i].Quantity
			index = i
			break
		}
	}
	if total > product.Quantity {
		return Cart{}, fmt.Errorf("%w: product %s has %d in stock", ErrCartInsufficientStock, productID, product.Quantity)
	}
	if index >= 0 {
		cart.Lines[index].Quantity = total
	} else {
		cart.Lines = append(cart.Lines, domain.CartLine{ProductID: productID, Quantity: total})
	}

	return s.save(ctx, cart)
}

// RemoveItem decrements a product line, pruning it when the quantity reaches
// zero. A command without a quantity removes the line outright.
func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error) {
	userID := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	if userID == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	if productID == "" {
		return Cart{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}

	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return Cart{}, err
	}

	kept := cart.Lines[:0]
	removed := false
	for _, line := range cart.Lines {
		if line.ProductID == productID {
			removed = true
			if cmd.Quantity > 0 && line.Quantity > cmd.Quantity {
				line.Quantity -= cmd.Quantity
				kept = append(kept, line)
			}
			continue
		}
		kept = append(kept, line)
	}
	if !removed {
		return Cart{}, fmt.Errorf("%w: %s", ErrCartItemNotFound, productID)
	}
	cart.Lines = kept

	return s.save(ctx, cart)
}

// ClearCart removes the user's cart entirely. Clearing an absent cart is a no-op.
func (s *cartService) ClearCart(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	if err := s.carts.Delete(ctx, userID); err != nil {
		return s.translateCartError(err)
	}
	return nil
}

func (s *cartService) save(ctx context.Context, cart Cart) (Cart, error) {
	now := s.now()
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	cart.UpdatedAt = now
	saved, err := s.carts.Save(ctx, cart)
	if err != nil {
		return Cart{}, s.translateCartError(err)
	}
	return saved, nil
}

func (s *cartService) translateCartError(err error) error {
	var storeErr *repositories.StoreError
	if errors.As(err, &storeErr) {
		switch {
		case storeErr.IsNotFound():
			return fmt.Errorf("%w: %s", ErrCartItemNotFound, storeErr.Message)
		case storeErr.IsUnavailable():
			return fmt.Errorf("%w: %s", ErrCartUnavailable, storeErr.Message)
		}
	}
	return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
}
