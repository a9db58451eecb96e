//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/maplecart/api/internal/domain"
	pconfig "github.com/maplecart/api/internal/platform/config"
	pfirestore "github.com/maplecart/api/internal/platform/firestore"
	"github.com/maplecart/api/internal/repositories"
)

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

func TestOrderWorkflowIntegration(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}
	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })
	waitForEndpoint(t, endpoint, 30*time.Second)

	cfg := pconfig.FirestoreConfig{
		ProjectID:    "orders-test",
		EmulatorHost: endpoint,
	}
	provider := pfirestore.NewProvider(cfg)
	t.Cleanup(func() { _ = provider.Close() })

	orderRepo, err := NewOrderRepository(provider)
	if err != nil {
		t.Fatalf("new order repository: %v", err)
	}
	invoiceRepo, err := NewInvoiceRepository(provider)
	if err != nil {
		t.Fatalf("new invoice repository: %v", err)
	}
	productRepo, err := NewProductRepository(provider)
	if err != nil {
		t.Fatalf("new product repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Second)
	seed := domain.Product{
		ID:         "prd_widget",
		Name:       "Widget",
		Price:      1500,
		CategoryID: "cat_tools",
		Quantity:   5,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := productRepo.Insert(ctx, seed); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	placeReq := repositories.PlaceOrderRequest{
		Order: domain.Order{
			ID:     "ord_test_1",
			UserID: "usr_test",
			Lines: []domain.OrderLine{
				{ProductID: seed.ID, Quantity: 2, UnitPrice: 1500},
			},
			Status:         domain.OrderStatusPending,
			PaymentMethod:  domain.PaymentMethodBankTransfer,
			PaymentStatus:  domain.PaymentStatusUnpaid,
			TrackingNumber: domain.TrackingNumber("ord_test_1", now),
			DeliveryFee:    300,
		},
		Invoice: domain.Invoice{
			ID:            "inv_test_1",
			InvoiceNumber: domain.InvoiceNumber("ord_test_1", now),
		},
		Now: now,
	}
	placed, err := orderRepo.PlaceOrder(ctx, placeReq)
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if placed.Order.TotalAmount != 3000 {
		t.Fatalf("expected order total 3000, got %d", placed.Order.TotalAmount)
	}
	if placed.Invoice.TotalAmount != placed.Order.TotalAmount {
		t.Fatalf("expected invoice total to mirror order total %d, got %d", placed.Order.TotalAmount, placed.Invoice.TotalAmount)
	}
	if placed.Invoice.Status != domain.InvoiceStatusUnpaid {
		t.Fatalf("expected unpaid invoice, got %s", placed.Invoice.Status)
	}

	product, err := productRepo.FindByID(ctx, seed.ID)
	if err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if product.Quantity != 3 {
		t.Fatalf("expected stock 3 after placement, got %d", product.Quantity)
	}

	var storeErr *repositories.StoreError

	_, err = orderRepo.PlaceOrder(ctx, repositories.PlaceOrderRequest{
		Order: domain.Order{
			ID:     "ord_test_2",
			UserID: "usr_test",
			Lines:  []domain.OrderLine{{ProductID: seed.ID, Quantity: 10, UnitPrice: 1500}},
			Status: domain.OrderStatusPending,
		},
		Invoice: domain.Invoice{ID: "inv_test_2"},
		Now:     now,
	})
	if !errors.As(err, &storeErr) || !storeErr.IsInsufficientStock() {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	_, err = orderRepo.PlaceOrder(ctx, repositories.PlaceOrderRequest{
		Order: domain.Order{
			ID:     "ord_test_3",
			UserID: "usr_test",
			Lines:  []domain.OrderLine{{ProductID: seed.ID, Quantity: 1, UnitPrice: 999}},
			Status: domain.OrderStatusPending,
		},
		Invoice: domain.Invoice{ID: "inv_test_3"},
		Now:     now,
	})
	storeErr = nil
	if !errors.As(err, &storeErr) || !storeErr.IsPriceMismatch() {
		t.Fatalf("expected price mismatch, got %v", err)
	}
	product, err = productRepo.FindByID(ctx, seed.ID)
	if err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if product.Quantity != 3 {
		t.Fatalf("failed placements must not move stock, got %d", product.Quantity)
	}

	completed := domain.OrderStatusCompleted
	updated, err := orderRepo.UpdateOrder(ctx, repositories.UpdateOrderRequest{
		OrderID:          placed.Order.ID,
		Patch:            repositories.OrderPatch{Status: &completed},
		NewInvoiceID:     "inv_test_1b",
		NewInvoiceNumber: domain.InvoiceNumber(placed.Order.ID, now.Add(time.Minute)),
		Now:              now.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("update order: %v", err)
	}
	if updated.Order.Status != domain.OrderStatusCompleted {
		t.Fatalf("expected completed status, got %s", updated.Order.Status)
	}
	if _, err := invoiceRepo.FindByID(ctx, "inv_test_1"); err == nil {
		t.Fatal("expected superseded invoice to be soft-deleted")
	}
	active, err := invoiceRepo.FindActiveByOrder(ctx, placed.Order.ID)
	if err != nil {
		t.Fatalf("find active invoice: %v", err)
	}
	if active.ID != "inv_test_1b" {
		t.Fatalf("expected active invoice inv_test_1b, got %s", active.ID)
	}

	payResult, err := invoiceRepo.Pay(ctx, repositories.PayInvoiceRequest{
		InvoiceID:      active.ID,
		ProofOfPayment: "orders/ord_test_1/proofs/receipt.pdf",
		Now:            now.Add(2 * time.Minute),
	})
	if err != nil {
		t.Fatalf("pay invoice: %v", err)
	}
	if payResult.OrderMissing {
		t.Fatal("order should not be reported missing")
	}
	order, err := orderRepo.FindByID(ctx, placed.Order.ID)
	if err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if order.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("expected paid order, got %s", order.PaymentStatus)
	}

	_, err = orderRepo.CancelOrder(ctx, repositories.CancelOrderRequest{
		OrderID: placed.Order.ID,
		Now:     now.Add(3 * time.Minute),
	})
	storeErr = nil
	if !errors.As(err, &storeErr) || !storeErr.IsConflict() {
		t.Fatalf("expected conflict cancelling paid order, got %v", err)
	}

	second, err := orderRepo.PlaceOrder(ctx, repositories.PlaceOrderRequest{
		Order: domain.Order{
			ID:     "ord_test_4",
			UserID: "usr_test",
			Lines:  []domain.OrderLine{{ProductID: seed.ID, Quantity: 2, UnitPrice: 1500}},
			Status: domain.OrderStatusPending,
		},
		Invoice: domain.Invoice{ID: "inv_test_4"},
		Now:     now.Add(4 * time.Minute),
	})
	if err != nil {
		t.Fatalf("place second order: %v", err)
	}
	if _, err := orderRepo.CancelOrder(ctx, repositories.CancelOrderRequest{
		OrderID: second.Order.ID,
		Now:     now.Add(5 * time.Minute),
	}); err != nil {
		t.Fatalf("cancel order: %v", err)
	}
	product, err = productRepo.FindByID(ctx, seed.ID)
	if err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if product.Quantity != 3 {
		t.Fatalf("expected stock restored to 3 after cancel, got %d", product.Quantity)
	}
	if _, err := invoiceRepo.FindByID(ctx, "inv_test_4"); err == nil {
		t.Fatal("expected cancelled order invoice to be soft-deleted")
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	args := []string{
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	}

	cmd := exec.Command("docker", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "info")
	if err := cmd.Run(); err != nil {
		t.Fatalf("docker daemon not available: %v", err)
	}
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "stop", id)
	_ = cmd.Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("firestore emulator at %s did not become ready within %s", endpoint, timeout)
}
