package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

func TestCartServiceGetCartReturnsEmptyForNewUser(t *testing.T) {
	service, err := NewCartService(CartServiceDeps{
		Carts:    &stubCartStore{},
		Products: &stubProductRepository{},
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	cart, err := service.GetCart(context.Background(), "usr_new")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cart.UserID != "usr_new" {
		t.Fatalf("expected user id usr_new, got %q", cart.UserID)
	}
	if len(cart.Lines) != 0 {
		t.Fatalf("expected empty cart, got %d lines", len(cart.Lines))
	}
}

func TestCartServiceAddItemAddsLine(t *testing.T) {
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	var saved domain.Cart

	carts := &stubCartStore{
		saveFunc: func(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
			saved = cart
			return cart, nil
		},
	}
	products := &stubProductRepository{
		findByIDFunc: func(ctx context.Context, productID string) (domain.Product, error) {
			return domain.Product{ID: productID, Price: 900, Quantity: 10}, nil
		},
	}
	service, err := NewCartService(CartServiceDeps{
		Carts:    carts,
		Products: products,
		Clock:    func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	cart, err := service.AddItem(context.Background(), AddCartItemCommand{
		UserID:    "usr_1",
		ProductID: "prd_1",
		Quantity:  3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cart.Lines) != 1 || cart.Lines[0].Quantity != 3 {
		t.Fatalf("unexpected lines %+v", cart.Lines)
	}
	if !saved.UpdatedAt.Equal(now) {
		t.Fatalf("expected updatedAt %v, got %v", now, saved.UpdatedAt)
	}
	if saved.CreatedAt.IsZero() {
		t.Fatalf("expected createdAt to be set")
	}
}

func TestCartServiceAddItemIncrementsQuantity(t *testing.T) {
	carts := &stubCartStore{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{
				UserID: userID,
				Lines:  []domain.CartLine{{ProductID: "prd_1", Quantity: 2}},
			}, nil
		},
	}
	products := &stubProductRepository{
		findByIDFunc: func(ctx context.Context, productID string) (domain.Product, error) {
			return domain.Product{ID: productID, Quantity: 10}, nil
		},
	}
	service, err := NewCartService(CartServiceDeps{Carts: carts, Products: products})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	cart, err := service.AddItem(context.Background(), AddCartItemCommand{
		UserID:    "usr_1",
		ProductID: "prd_1",
		Quantity:  3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cart.Lines) != 1 {
		t.Fatalf("expected quantity incremented in place, got %d lines", len(cart.Lines))
	}
	if cart.Lines[0].Quantity != 5 {
		t.Fatalf("expected quantity 5, got %d", cart.Lines[0].Quantity)
	}
}

func TestCartServiceAddItemInsufficientStock(t *testing.T) {
	carts := &stubCartStore{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{
				UserID: userID,
				Lines:  []domain.CartLine{{ProductID: "prd_1", Quantity: 4}},
			}, nil
		},
	}
	products := &stubProductRepository{
		findByIDFunc: func(ctx context.Context, productID string) (domain.Product, error) {
			return domain.Product{ID: productID, Quantity: 5}, nil
		},
	}
	service, err := NewCartService(CartServiceDeps{Carts: carts, Products: products})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	_, err = service.AddItem(context.Background(), AddCartItemCommand{
		UserID:    "usr_1",
		ProductID: "prd_1",
		Quantity:  2,
	})
	if !errors.Is(err, ErrCartInsufficientStock) {
		t.Fatalf("expected ErrCartInsufficientStock, got %v", err)
	}
}

func TestCartServiceAddItemUnknownProduct(t *testing.T) {
	products := &stubProductRepository{
		findByIDFunc: func(ctx context.Context, productID string) (domain.Product, error) {
			return domain.Product{}, repositories.NewStoreError(repositories.ErrorNotFound, "product missing", nil)
		},
	}
	service, err := NewCartService(CartServiceDeps{Carts: &stubCartStore{}, Products: products})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	_, err = service.AddItem(context.Background(), AddCartItemCommand{
		UserID:    "usr_1",
		ProductID: "prd_missing",
		Quantity:  1,
	})
	if !errors.Is(err, ErrCartProductNotFound) {
		t.Fatalf("expected ErrCartProductNotFound, got %v", err)
	}
}

func TestCartServiceAddItemRejectsZeroQuantity(t *testing.T) {
	service, err := NewCartService(CartServiceDeps{
		Carts:    &stubCartStore{},
		Products: &stubProductRepository{},
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	_, err = service.AddItem(context.Background(), AddCartItemCommand{
		UserID:    "usr_1",
		ProductID: "prd_1",
	})
	if !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected ErrCartInvalidInput, got %v", err)
	}
}

func TestCartServiceRemoveItem(t *testing.T) {
	carts := &stubCartStore{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{
				UserID: userID,
				Lines: []domain.CartLine{
					{ProductID: "prd_1", Quantity: 1},
					{ProductID: "prd_2", Quantity: 2},
				},
			}, nil
		},
	}
	service, err := NewCartService(CartServiceDeps{Carts: carts, Products: &stubProductRepository{}})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	cart, err := service.RemoveItem(context.Background(), RemoveCartItemCommand{
		UserID:    "usr_1",
		ProductID: "prd_1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cart.Lines) != 1 || cart.Lines[0].ProductID != "prd_2" {
		t.Fatalf("unexpected lines %+v", cart.Lines)
	}
}

func TestCartServiceRemoveItemDecrements(t *testing.T) {
	carts := &stubCartStore{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{
				UserID: userID,
				Lines:  []domain.CartLine{{ProductID: "prd_1", Quantity: 5}},
			}, nil
		},
	}
	service, err := NewCartService(CartServiceDeps{Carts: carts, Products: &stubProductRepository{}})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	cart, err := service.RemoveItem(context.Background(), RemoveCartItemCommand{
		UserID:    "usr_1",
		ProductID: "prd_1",
		Quantity:  2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cart.Lines) != 1 || cart.Lines[0].Quantity != 3 {
		t.Fatalf("expected decremented line, got %+v", cart.Lines)
	}

	cart, err = service.RemoveItem(context.Background(), RemoveCartItemCommand{
		UserID:    "usr_1",
		ProductID: "prd_1",
		Quantity:  7,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cart.Lines) != 0 {
		t.Fatalf("expected line pruned, got %+v", cart.Lines)
	}
}

func TestCartServiceRemoveItemMissingLine(t *testing.T) {
	carts := &stubCartStore{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{UserID: userID}, nil
		},
	}
	service, err := NewCartService(CartServiceDeps{Carts: carts, Products: &stubProductRepository{}})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	_, err = service.RemoveItem(context.Background(), RemoveCartItemCommand{
		UserID:    "usr_1",
		ProductID: "prd_gone",
	})
	if !errors.Is(err, ErrCartItemNotFound) {
		t.Fatalf("expected ErrCartItemNotFound, got %v", err)
	}
}

func TestCartServiceClearCartMissingIsNoop(t *testing.T) {
	service, err := NewCartService(CartServiceDeps{
		Carts:    &stubCartStore{},
		Products: &stubProductRepository{},
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	if err := service.ClearCart(context.Background(), "usr_1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
