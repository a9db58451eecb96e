package firestore

import (
	"errors"
	"testing"
	"time"

	"github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

func TestCoalesceOrderLinesMergesDuplicateProducts(t *testing.T) {
	lines, err := coalesceOrderLines([]domain.OrderLine{
		{ProductID: "prd_1", Quantity: 2, UnitPrice: 1500},
		{ProductID: "prd_2", Quantity: 1, UnitPrice: 500},
		{ProductID: " prd_1 ", Quantity: 3, UnitPrice: 1500},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(lines) != 2 {
		t.Fatalf("expected 2 coalesced lines, got %d", len(lines))
	}
	if lines[0].ProductID != "prd_1" || lines[0].Quantity != 5 {
		t.Fatalf("expected prd_1 quantity 5, got %s quantity %d", lines[0].ProductID, lines[0].Quantity)
	}
	if lines[1].ProductID != "prd_2" || lines[1].Quantity != 1 {
		t.Fatalf("expected prd_2 quantity 1, got %s quantity %d", lines[1].ProductID, lines[1].Quantity)
	}
}

func TestCoalesceOrderLinesRejectsConflictingPrices(t *testing.T) {
	_, err := coalesceOrderLines([]domain.OrderLine{
		{ProductID: "prd_1", Quantity: 1, UnitPrice: 1500},
		{ProductID: "prd_1", Quantity: 1, UnitPrice: 1400},
	})

	var storeErr *repositories.StoreError
	if !errors.As(err, &storeErr) || !storeErr.IsPriceMismatch() {
		t.Fatalf("expected price mismatch error, got %v", err)
	}
}

func TestCoalesceOrderLinesRejectsInvalidLines(t *testing.T) {
	_, err := coalesceOrderLines([]domain.OrderLine{
		{ProductID: "  ", Quantity: 1, UnitPrice: 100},
	})
	var storeErr *repositories.StoreError
	if !errors.As(err, &storeErr) || !storeErr.IsNotFound() {
		t.Fatalf("expected not found for blank product id, got %v", err)
	}

	if _, err := coalesceOrderLines([]domain.OrderLine{
		{ProductID: "prd_1", Quantity: 0, UnitPrice: 100},
	}); err == nil {
		t.Fatal("expected error for non-positive quantity")
	}
}

func TestReserveStockDecrementsByLineQuantity(t *testing.T) {
	now := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	product := productDocument{Name: "Widget", Price: 1500, Quantity: 5}

	reserved, priced, err := reserveStock(product, domain.OrderLine{
		ProductID: "prd_1", Quantity: 2, UnitPrice: 1500,
	}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if reserved.Quantity != 3 {
		t.Fatalf("expected remaining stock 3, got %d", reserved.Quantity)
	}
	if !reserved.UpdatedAt.Equal(now) {
		t.Fatalf("expected updatedAt %v, got %v", now, reserved.UpdatedAt)
	}
	if priced.Name != "Widget" || priced.Total != 3000 {
		t.Fatalf("unexpected priced line %+v", priced)
	}
}

func TestReserveStockRejectsCombinedDemandBeyondStock(t *testing.T) {
	// Two lines for the same product must be validated as one demand, so
	// quantities that individually fit but jointly exceed stock are rejected.
	lines, err := coalesceOrderLines([]domain.OrderLine{
		{ProductID: "prd_1", Quantity: 2, UnitPrice: 1500},
		{ProductID: "prd_1", Quantity: 3, UnitPrice: 1500},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lines) != 1 || lines[0].Quantity != 5 {
		t.Fatalf("expected a single line with quantity 5, got %+v", lines)
	}

	product := productDocument{Name: "Widget", Price: 1500, Quantity: 4}
	_, _, err = reserveStock(product, lines[0], time.Now().UTC())

	var storeErr *repositories.StoreError
	if !errors.As(err, &storeErr) || !storeErr.IsInsufficientStock() {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
}

func TestReserveStockRejectsPriceMismatch(t *testing.T) {
	product := productDocument{Name: "Widget", Price: 1500, Quantity: 5}
	_, _, err := reserveStock(product, domain.OrderLine{
		ProductID: "prd_1", Quantity: 1, UnitPrice: 1400,
	}, time.Now().UTC())

	var storeErr *repositories.StoreError
	if !errors.As(err, &storeErr) || !storeErr.IsPriceMismatch() {
		t.Fatalf("expected price mismatch, got %v", err)
	}
}

func TestReserveStockTreatsSoftDeletedAsMissing(t *testing.T) {
	deleted := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	product := productDocument{Name: "Widget", Price: 1500, Quantity: 5, DeletedAt: &deleted}
	_, _, err := reserveStock(product, domain.OrderLine{
		ProductID: "prd_1", Quantity: 1, UnitPrice: 1500,
	}, time.Now().UTC())

	var storeErr *repositories.StoreError
	if !errors.As(err, &storeErr) || !storeErr.IsNotFound() {
		t.Fatalf("expected not found for soft-deleted product, got %v", err)
	}
}
