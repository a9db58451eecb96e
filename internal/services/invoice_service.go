package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/platform/storage"
	"github.com/maplecart/api/internal/repositories"
)

var (
	// ErrInvoiceInvalidInput indicates the caller supplied invalid input parameters.
	ErrInvoiceInvalidInput = errors.New("invoice: invalid input")
	// ErrInvoiceNotFound indicates the requested invoice does not exist or is deleted.
	ErrInvoiceNotFound = errors.New("invoice: not found")
	// ErrInvoiceAlreadyPaid indicates the invoice is settled and cannot be paid or deleted.
	ErrInvoiceAlreadyPaid = errors.New("invoice: already paid")
	// ErrInvoiceExists indicates the order already carries an active invoice.
	ErrInvoiceExists = errors.New("invoice: active invoice exists")
	// ErrInvoicePaymentRejected indicates the payment reference failed verification.
	ErrInvoicePaymentRejected = errors.New("invoice: payment rejected")
	// ErrInvoiceUnavailable indicates invoice dependencies are currently unavailable.
	ErrInvoiceUnavailable = errors.New("invoice: unavailable")
)

// PaymentVerifier checks a PSP payment reference before an invoice is
// marked paid.
type PaymentVerifier interface {
	VerifyPaymentReference(ctx context.Context, reference string) error
}

// proofSigner issues signed upload URLs for payment proofs.
type proofSigner interface {
	UploadURL(ctx context.Context, object, contentType string) (storage.SignedURLResult, error)
}

// orderReader looks up the order an invoice derives from.
type orderReader interface {
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
}

// InvoiceServiceDeps wires the dependencies required by the invoice service.
type InvoiceServiceDeps struct {
	Invoices    repositories.InvoiceRepository
	Orders      orderReader
	Proofs      proofSigner
	Verifier    PaymentVerifier
	Events      OrderEventPublisher
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type invoiceService struct {
	invoices repositories.InvoiceRepository
	orders   orderReader
	proofs   proofSigner
	verifier PaymentVerifier
	events   OrderEventPublisher
	now      func() time.Time
	newID    func() string
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewInvoiceService constructs an InvoiceService validating required dependencies.
func NewInvoiceService(deps InvoiceServiceDeps) (InvoiceService, error) {
	if deps.Invoices == nil {
		return nil, errors.New("invoice service: invoice repository is required")
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
	return &invoiceService{
		invoices: deps.Invoices,
		orders:   deps.Orders,
		proofs:   deps.Proofs,
		verifier: deps.Verifier,
		events:   deps.Events,
		now:      func() time.Time { return clock().UTC() },
		newID:    idGen,
		logger:   logger,
	}, nil
}

// CreateInvoice derives a fresh invoice from an existing order. At most one
// active invoice exists per order; the order placement and update flows rotate
// invoices themselves, so this path only serves orders whose invoice was
// deleted.
func (s *invoiceService) CreateInvoice(ctx context.Context, cmd CreateInvoiceCommand) (Invoice, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Invoice{}, fmt.Errorf("%w: order id is required", ErrInvoiceInvalidInput)
	}
	if cmd.DiscountAmount < 0 {
		return Invoice{}, fmt.Errorf("%w: discount amount cannot be negative", ErrInvoiceInvalidInput)
	}
	reason := strings.TrimSpace(cmd.DiscountReason)
	if cmd.DiscountAmount > 0 && reason == "" {
		return Invoice{}, fmt.Errorf("%w: discount requires a reason", ErrInvoiceInvalidInput)
	}
	if s.orders == nil {
		return Invoice{}, fmt.Errorf("%w: order lookups are not configured", ErrInvoiceUnavailable)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Invoice{}, s.translateInvoiceError(err)
	}

	if _, err := s.invoices.FindActiveByOrder(ctx, orderID); err == nil {
		return Invoice{}, fmt.Errorf("%w: order %s", ErrInvoiceExists, orderID)
	} else {
		var storeErr *repositories.StoreError
		if !errors.As(err, &storeErr) || !storeErr.IsNotFound() {
			return Invoice{}, s.translateInvoiceError(err)
		}
	}

	now := s.now()
	invoice := domain.Invoice{
		ID:             invoiceIDPrefix + s.newID(),
		UserID:         order.UserID,
		OrderID:        order.ID,
		InvoiceNumber:  domain.InvoiceNumber(order.ID, now),
		Lines:          order.Lines,
		TotalAmount:    domain.InvoiceTotal(order.Lines, cmd.DiscountAmount),
		DiscountAmount: cmd.DiscountAmount,
		DiscountReason: reason,
		Status:         domain.InvoiceStatusUnpaid,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if order.PaymentStatus == domain.PaymentStatusPaid {
		invoice.Status = domain.InvoiceStatusPaid
	}

	if err := s.invoices.Insert(ctx, invoice); err != nil {
		return Invoice{}, s.translateInvoiceError(err)
	}
	return invoice, nil
}

func (s *invoiceService) GetInvoice(ctx context.Context, invoiceID string) (Invoice, error) {
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return Invoice{}, fmt.Errorf("%w: invoice id is required", ErrInvoiceInvalidInput)
	}
	invoice, err := s.invoices.FindByID(ctx, invoiceID)
	if err != nil {
		return Invoice{}, s.translateInvoiceError(err)
	}
	return invoice, nil
}

func (s *invoiceService) ListInvoices(ctx context.Context, query InvoiceQuery) ([]Invoice, error) {
	invoices, err := s.invoices.List(ctx, repositories.InvoiceListFilter{
		ID:      strings.TrimSpace(query.ID),
		OrderID: strings.TrimSpace(query.OrderID),
		UserID:  strings.TrimSpace(query.UserID),
		Deleted: query.Deleted,
	})
	if err != nil {
		return nil, s.translateInvoiceError(err)
	}
	return invoices, nil
}

// PayInvoice settles the invoice. PSP references (pi_...) are verified with
// the payment provider first; other references are treated as storage paths
// pointing at an uploaded proof of payment. Payment status propagates to the
// linked order atomically; a missing order is logged but never blocks the
// payment.
func (s *invoiceService) PayInvoice(ctx context.Context, cmd PayInvoiceCommand) (Invoice, error) {
	invoiceID := strings.TrimSpace(cmd.InvoiceID)
	if invoiceID == "" {
		return Invoice{}, fmt.Errorf("%w: invoice id is required", ErrInvoiceInvalidInput)
	}
	reference := strings.TrimSpace(cmd.Reference)

	if strings.HasPrefix(reference, "pi_") {
		if s.verifier == nil {
			return Invoice{}, fmt.Errorf("%w: payment verification is not configured", ErrInvoiceUnavailable)
		}
		if err := s.verifier.VerifyPaymentReference(ctx, reference); err != nil {
			return Invoice{}, fmt.Errorf("%w: %v", ErrInvoicePaymentRejected, err)
		}
	}

	result, err := s.invoices.Pay(ctx, repositories.PayInvoiceRequest{
		InvoiceID:      invoiceID,
		ProofOfPayment: reference,
		Now:            s.now(),
	})
	if err != nil {
		return Invoice{}, s.translateInvoiceError(err)
	}
	if result.OrderMissing {
		s.logger(ctx, "invoice.order_missing", map[string]any{
			"invoiceID": result.Invoice.ID,
			"orderID":   result.Invoice.OrderID,
		})
	}

	if s.events != nil {
		message := OrderEventMessage{
			EventID:     eventIDPrefix + s.newID(),
			Type:        OrderEventPaid,
			OrderID:     result.Invoice.OrderID,
			UserID:      result.Invoice.UserID,
			TotalAmount: result.Invoice.TotalAmount,
			OccurredAt:  s.now(),
		}
		if _, err := s.events.PublishOrderEvent(ctx, message); err != nil {
			s.logger(ctx, "invoice.event_publish_failed", map[string]any{
				"invoiceID": result.Invoice.ID,
				"error":     err.Error(),
			})
		}
	}

	return result.Invoice, nil
}

// DeleteInvoice soft-deletes an unpaid invoice.
func (s *invoiceService) DeleteInvoice(ctx context.Context, invoiceID string) error {
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return fmt.Errorf("%w: invoice id is required", ErrInvoiceInvalidInput)
	}
	if err := s.invoices.SoftDelete(ctx, invoiceID, s.now()); err != nil {
		return s.translateInvoiceError(err)
	}
	return nil
}

// ProofUploadURL issues a signed PUT URL to upload a payment proof for the
// invoice's order.
func (s *invoiceService) ProofUploadURL(ctx context.Context, cmd ProofUploadCommand) (ProofUploadResult, error) {
	invoiceID := strings.TrimSpace(cmd.InvoiceID)
	if invoiceID == "" {
		return ProofUploadResult{}, fmt.Errorf("%w: invoice id is required", ErrInvoiceInvalidInput)
	}
	filename := strings.TrimSpace(cmd.Filename)
	if filename == "" {
		return ProofUploadResult{}, fmt.Errorf("%w: filename is required", ErrInvoiceInvalidInput)
	}
	if s.proofs == nil {
		return ProofUploadResult{}, fmt.Errorf("%w: proof uploads are not configured", ErrInvoiceUnavailable)
	}

	invoice, err := s.invoices.FindByID(ctx, invoiceID)
	if err != nil {
		return ProofUploadResult{}, s.translateInvoiceError(err)
	}
	if invoice.Status == domain.InvoiceStatusPaid {
		return ProofUploadResult{}, fmt.Errorf("%w: invoice %s", ErrInvoiceAlreadyPaid, invoiceID)
	}

	object := storage.ProofObjectPath(invoice.OrderID, filename)
	signed, err := s.proofs.UploadURL(ctx, object, strings.TrimSpace(cmd.ContentType))
	if err != nil {
		if errors.Is(err, storage.ErrContentTypeNotAllowed) {
			return ProofUploadResult{}, fmt.Errorf("%w: %v", ErrInvoiceInvalidInput, err)
		}
		return ProofUploadResult{}, fmt.Errorf("%w: %v", ErrInvoiceUnavailable, err)
	}

	return ProofUploadResult{
		URL:       signed.URL,
		Method:    signed.Method,
		Object:    object,
		Headers:   signed.Headers,
		ExpiresAt: signed.ExpiresAt,
	}, nil
}

func (s *invoiceService) translateInvoiceError(err error) error {
	var storeErr *repositories.StoreError
	if errors.As(err, &storeErr) {
		switch {
		case storeErr.IsNotFound():
			return fmt.Errorf("%w: %s", ErrInvoiceNotFound, storeErr.Message)
		case storeErr.IsConflict():
			return fmt.Errorf("%w: %s", ErrInvoiceAlreadyPaid, storeErr.Message)
		case storeErr.IsUnavailable():
			return fmt.Errorf("%w: %s", ErrInvoiceUnavailable, storeErr.Message)
		}
	}
	return fmt.Errorf("%w: %v", ErrInvoiceUnavailable, err)
}
