package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/maplecart/api/internal/domain"
	pfirestore "github.com/maplecart/api/internal/platform/firestore"
	"github.com/maplecart/api/internal/repositories"
)

const invoiceCollection = "invoices"

// InvoiceRepository persists invoices in Firestore.
type InvoiceRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[invoiceDocument]
	orders   *pfirestore.BaseRepository[orderDocument]
}

// NewInvoiceRepository constructs a Firestore-backed invoice repository.
func NewInvoiceRepository(provider *pfirestore.Provider) (*InvoiceRepository, error) {
	if provider == nil {
		return nil, errors.New("invoice repository requires firestore provider")
	}
	return &InvoiceRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[invoiceDocument](provider, invoiceCollection, nil, nil),
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil),
	}, nil
}

// Insert creates an invoice document, failing when the id is already taken.
func (r *InvoiceRepository) Insert(ctx context.Context, invoice domain.Invoice) error {
	if r == nil || r.base == nil {
		return errors.New("invoice repository not initialised")
	}
	if strings.TrimSpace(invoice.ID) == "" {
		return errors.New("invoice repository: invoice id is required")
	}
	if _, err := r.base.Create(ctx, invoice.ID, newInvoiceDocument(invoice)); err != nil {
		return wrapStoreError("invoices.insert", err)
	}
	return nil
}

// SoftDelete marks the invoice deleted. Paid invoices cannot be deleted.
func (r *InvoiceRepository) SoftDelete(ctx context.Context, invoiceID string, deletedAt time.Time) error {
	if r == nil || r.provider == nil {
		return errors.New("invoice repository not initialised")
	}
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return errors.New("invoice repository: invoice id is required")
	}
	stamp := deletedAt.UTC()
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, invoiceID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return notFoundError("invoices.softDelete", fmt.Sprintf("invoice %s not found", invoiceID), err)
			}
			return err
		}
		var doc invoiceDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode invoice %s: %w", invoiceID, err)
		}
		if doc.DeletedAt != nil {
			return notFoundError("invoices.softDelete", fmt.Sprintf("invoice %s not found", invoiceID), nil)
		}
		if doc.Status == string(domain.InvoiceStatusPaid) {
			return conflictError("invoices.softDelete", fmt.Sprintf("invoice %s is already paid", invoiceID), nil)
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "deletedAt", Value: stamp},
			{Path: "updatedAt", Value: stamp},
		})
	})
	if err != nil {
		return wrapStoreError("invoices.softDelete", err)
	}
	return nil
}

// FindByID loads an invoice. Soft-deleted invoices are reported as not found.
func (r *InvoiceRepository) FindByID(ctx context.Context, invoiceID string) (domain.Invoice, error) {
	if r == nil || r.base == nil {
		return domain.Invoice{}, errors.New("invoice repository not initialised")
	}
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return domain.Invoice{}, errors.New("invoice repository: invoice id is required")
	}
	doc, err := r.base.Get(ctx, invoiceID)
	if err != nil {
		return domain.Invoice{}, wrapStoreError("invoices.findByID", err)
	}
	invoice := doc.Data.toDomain(doc.ID)
	if invoice.Deleted() {
		return domain.Invoice{}, notFoundError("invoices.findByID", fmt.Sprintf("invoice %s not found", invoiceID), nil)
	}
	return invoice, nil
}

// FindActiveByOrder returns the live invoice for the order. Every order keeps
// at most one live invoice; superseded copies stay soft-deleted.
func (r *InvoiceRepository) FindActiveByOrder(ctx context.Context, orderID string) (domain.Invoice, error) {
	if r == nil || r.base == nil {
		return domain.Invoice{}, errors.New("invoice repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Invoice{}, errors.New("invoice repository: order id is required")
	}
	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("orderId", "==", orderID)
	})
	if err != nil {
		return domain.Invoice{}, wrapStoreError("invoices.findActiveByOrder", err)
	}
	for _, doc := range docs {
		invoice := doc.Data.toDomain(doc.ID)
		if !invoice.Deleted() {
			return invoice, nil
		}
	}
	return domain.Invoice{}, notFoundError("invoices.findActiveByOrder", fmt.Sprintf("no active invoice for order %s", orderID), nil)
}

// List returns invoices matching the filter.
func (r *InvoiceRepository) List(ctx context.Context, filter repositories.InvoiceListFilter) ([]domain.Invoice, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("invoice repository not initialised")
	}
	if id := strings.TrimSpace(filter.ID); id != "" {
		doc, err := r.base.Get(ctx, id)
		if err != nil {
			err = wrapStoreError("invoices.list", err)
			var storeErr *repositories.StoreError
			if errors.As(err, &storeErr) && storeErr.IsNotFound() {
				return []domain.Invoice{}, nil
			}
			return nil, err
		}
		invoice := doc.Data.toDomain(doc.ID)
		if !invoiceMatchesFilter(invoice, filter) {
			return []domain.Invoice{}, nil
		}
		return []domain.Invoice{invoice}, nil
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		if orderID := strings.TrimSpace(filter.OrderID); orderID != "" {
			query = query.Where("orderId", "==", orderID)
		}
		if userID := strings.TrimSpace(filter.UserID); userID != "" {
			query = query.Where("userId", "==", userID)
		}
		return query
	})
	if err != nil {
		return nil, wrapStoreError("invoices.list", err)
	}
	invoices := make([]domain.Invoice, 0, len(docs))
	for _, doc := range docs {
		invoice := doc.Data.toDomain(doc.ID)
		if !invoiceMatchesFilter(invoice, filter) {
			continue
		}
		invoices = append(invoices, invoice)
	}
	return invoices, nil
}

func invoiceMatchesFilter(invoice domain.Invoice, filter repositories.InvoiceListFilter) bool {
	if !includeDeleted(filter.Deleted, invoice.Deleted()) {
		return false
	}
	if orderID := strings.TrimSpace(filter.OrderID); orderID != "" && invoice.OrderID != orderID {
		return false
	}
	if userID := strings.TrimSpace(filter.UserID); userID != "" && invoice.UserID != userID {
		return false
	}
	return true
}

// Pay marks the invoice paid and propagates the payment status to the linked
// order in the same transaction. When the linked order no longer exists the
// payment still succeeds and the result flags the missing order so callers
// can log it.
func (r *InvoiceRepository) Pay(ctx context.Context, req repositories.PayInvoiceRequest) (repositories.PayInvoiceResult, error) {
	if r == nil || r.provider == nil {
		return repositories.PayInvoiceResult{}, errors.New("invoice repository not initialised")
	}
	invoiceID := strings.TrimSpace(req.InvoiceID)
	if invoiceID == "" {
		return repositories.PayInvoiceResult{}, errors.New("invoice repository: invoice id is required")
	}

	now := req.Now.UTC()
	var result repositories.PayInvoiceResult
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		invoiceRef, err := r.base.DocumentRef(ctx, invoiceID)
		if err != nil {
			return err
		}
		invoiceSnap, err := tx.Get(invoiceRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return notFoundError("invoices.pay", fmt.Sprintf("invoice %s not found", invoiceID), err)
			}
			return err
		}
		var doc invoiceDocument
		if err := invoiceSnap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode invoice %s: %w", invoiceID, err)
		}
		if doc.DeletedAt != nil {
			return notFoundError("invoices.pay", fmt.Sprintf("invoice %s not found", invoiceID), nil)
		}
		if doc.Status == string(domain.InvoiceStatusPaid) {
			return conflictError("invoices.pay", fmt.Sprintf("invoice %s is already paid", invoiceID), nil)
		}

		var orderRef *firestore.DocumentRef
		var orderDoc orderDocument
		orderMissing := true
		if orderID := strings.TrimSpace(doc.OrderID); orderID != "" {
			orderRef, err = r.orders.DocumentRef(ctx, orderID)
			if err != nil {
				return err
			}
			orderSnap, err := tx.Get(orderRef)
			switch {
			case err == nil:
				if err := orderSnap.DataTo(&orderDoc); err != nil {
					return fmt.Errorf("decode order %s: %w", orderID, err)
				}
				orderMissing = orderDoc.DeletedAt != nil
			case status.Code(err) == codes.NotFound:
				orderMissing = true
			default:
				return err
			}
		}

		doc.Status = string(domain.InvoiceStatusPaid)
		doc.ProofOfPayment = strings.TrimSpace(req.ProofOfPayment)
		doc.UpdatedAt = now
		if err := tx.Set(invoiceRef, doc); err != nil {
			return err
		}
		if !orderMissing && orderRef != nil {
			if err := tx.Update(orderRef, []firestore.Update{
				{Path: "paymentStatus", Value: string(domain.PaymentStatusPaid)},
				{Path: "updatedAt", Value: now},
			}); err != nil {
				return err
			}
		}

		result = repositories.PayInvoiceResult{
			Invoice:      doc.toDomain(invoiceID),
			OrderMissing: orderMissing,
		}
		return nil
	})
	if err != nil {
		return repositories.PayInvoiceResult{}, wrapStoreError("invoices.pay", err)
	}
	return result, nil
}

type invoiceDocument struct {
	UserID         string         `firestore:"userId"`
	OrderID        string         `firestore:"orderId"`
	InvoiceNumber  string         `firestore:"invoiceNumber"`
	Lines          []lineDocument `firestore:"lines"`
	TotalAmount    int64          `firestore:"totalAmount"`
	DiscountAmount int64          `firestore:"discountAmount,omitempty"`
	DiscountReason string         `firestore:"discountReason,omitempty"`
	Status         string         `firestore:"status"`
	ProofOfPayment string         `firestore:"proofOfPayment,omitempty"`
	CreatedAt      time.Time      `firestore:"createdAt"`
	UpdatedAt      time.Time      `firestore:"updatedAt"`
	DeletedAt      *time.Time     `firestore:"deletedAt,omitempty"`
}

func newInvoiceDocument(invoice domain.Invoice) invoiceDocument {
	return invoiceDocument{
		UserID:         strings.TrimSpace(invoice.UserID),
		OrderID:        strings.TrimSpace(invoice.OrderID),
		InvoiceNumber:  strings.TrimSpace(invoice.InvoiceNumber),
		Lines:          newLineDocuments(invoice.Lines),
		TotalAmount:    invoice.TotalAmount,
		DiscountAmount: invoice.DiscountAmount,
		DiscountReason: strings.TrimSpace(invoice.DiscountReason),
		Status:         string(invoice.Status),
		ProofOfPayment: strings.TrimSpace(invoice.ProofOfPayment),
		CreatedAt:      invoice.CreatedAt.UTC(),
		UpdatedAt:      invoice.UpdatedAt.UTC(),
		DeletedAt:      invoice.DeletedAt,
	}
}

func (d invoiceDocument) toDomain(id string) domain.Invoice {
	return domain.Invoice{
		ID:             id,
		UserID:         d.UserID,
		OrderID:        d.OrderID,
		InvoiceNumber:  d.InvoiceNumber,
		Lines:          linesToDomain(d.Lines),
		TotalAmount:    d.TotalAmount,
		DiscountAmount: d.DiscountAmount,
		DiscountReason: d.DiscountReason,
		Status:         domain.InvoiceStatus(d.Status),
		ProofOfPayment: d.ProofOfPayment,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
		DeletedAt:      d.DeletedAt,
	}
}

var _ repositories.InvoiceRepository = (*InvoiceRepository)(nil)
