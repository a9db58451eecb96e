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

const orderCollection = "orders"

// OrderRepository persists orders and runs the transactional order workflow.
// Stock movements, order writes, and invoice writes always share a single
// Firestore transaction so a failed step leaves no partial state behind.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	products *pfirestore.BaseRepository[productDocument]
	invoices *pfirestore.BaseRepository[invoiceDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil),
		products: pfirestore.NewBaseRepository[productDocument](provider, productCollection, nil, nil),
		invoices: pfirestore.NewBaseRepository[invoiceDocument](provider, invoiceCollection, nil, nil),
	}, nil
}

// PlaceOrder validates the requested lines against the catalog, decrements
// stock, and creates the order together with its mirrored invoice. The
// submitted unit prices must match the catalog exactly; any discrepancy
// aborts the transaction with a price mismatch error.
func (r *OrderRepository) PlaceOrder(ctx context.Context, req repositories.PlaceOrderRequest) (repositories.PlaceOrderResult, error) {
	if r == nil || r.provider == nil {
		return repositories.PlaceOrderResult{}, errors.New("order repository not initialised")
	}
	order := req.Order
	if strings.TrimSpace(order.ID) == "" {
		return repositories.PlaceOrderResult{}, errors.New("order repository: order id is required")
	}
	if len(order.Lines) == 0 {
		return repositories.PlaceOrderResult{}, errors.New("order repository: at least one line is required")
	}
	if strings.TrimSpace(req.Invoice.ID) == "" {
		return repositories.PlaceOrderResult{}, errors.New("order repository: invoice id is required")
	}

	now := req.Now.UTC()
	coalesced, err := coalesceOrderLines(order.Lines)
	if err != nil {
		return repositories.PlaceOrderResult{}, err
	}

	var result repositories.PlaceOrderResult
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		// Firestore transactions require every read to happen before the
		// first write, so collect all product snapshots up front. Lines are
		// coalesced per product so each document is read, validated against
		// the combined quantity, and written exactly once.
		type stockMutation struct {
			ref *firestore.DocumentRef
			doc productDocument
		}
		mutations := make([]stockMutation, 0, len(coalesced))
		lines := make([]domain.OrderLine, 0, len(coalesced))

		for _, line := range coalesced {
			ref, err := r.products.DocumentRef(ctx, line.ProductID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(ref)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return notFoundError("orders.place", fmt.Sprintf("product %s not found", line.ProductID), err)
				}
				return err
			}
			var product productDocument
			if err := snap.DataTo(&product); err != nil {
				return fmt.Errorf("decode product %s: %w", line.ProductID, err)
			}

			reserved, priced, err := reserveStock(product, line, now)
			if err != nil {
				return err
			}
			mutations = append(mutations, stockMutation{ref: ref, doc: reserved})
			lines = append(lines, priced)
		}

		placed := order
		placed.Lines = lines
		placed.TotalAmount = domain.OrderTotal(lines)
		placed.CreatedAt = now
		placed.UpdatedAt = now

		invoice := req.Invoice
		invoice.UserID = placed.UserID
		invoice.OrderID = placed.ID
		invoice.Lines = lines
		invoice.TotalAmount = domain.InvoiceTotal(lines, invoice.DiscountAmount)
		invoice.Status = domain.InvoiceStatusUnpaid
		invoice.CreatedAt = now
		invoice.UpdatedAt = now

		for _, mutation := range mutations {
			if err := tx.Set(mutation.ref, mutation.doc); err != nil {
				return err
			}
		}

		orderRef, err := r.orders.DocumentRef(ctx, placed.ID)
		if err != nil {
			return err
		}
		if err := tx.Create(orderRef, newOrderDocument(placed)); err != nil {
			if status.Code(err) == codes.AlreadyExists {
				return conflictError("orders.place", fmt.Sprintf("order %s already exists", placed.ID), err)
			}
			return err
		}

		invoiceRef, err := r.invoices.DocumentRef(ctx, invoice.ID)
		if err != nil {
			return err
		}
		if err := tx.Create(invoiceRef, newInvoiceDocument(invoice)); err != nil {
			if status.Code(err) == codes.AlreadyExists {
				return conflictError("orders.place", fmt.Sprintf("invoice %s already exists", invoice.ID), err)
			}
			return err
		}

		result = repositories.PlaceOrderResult{Order: placed, Invoice: invoice}
		return nil
	})
	if err != nil {
		return repositories.PlaceOrderResult{}, wrapStoreError("orders.place", err)
	}
	return result, nil
}

// UpdateOrder patches the order and rotates its invoice: the active invoice
// is soft-deleted and a fresh one mirroring the patched order is created,
// keeping superseded invoices as an audit trail.
// coalesceOrderLines merges lines referencing the same product, summing
// their quantities, so stock validation sees the combined demand and every
// product document receives a single buffered write. Lines with blank
// product ids or non-positive quantities are rejected up front.
func coalesceOrderLines(lines []domain.OrderLine) ([]domain.OrderLine, error) {
	merged := make([]domain.OrderLine, 0, len(lines))
	index := make(map[string]int, len(lines))
	for _, line := range lines {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return nil, notFoundError("orders.place", "order line product id is required", nil)
		}
		if line.Quantity <= 0 {
			return nil, &repositories.StoreError{
				Op:      "orders.place",
				Code:    repositories.ErrorUnknown,
				Message: fmt.Sprintf("quantity for product %s must be positive", productID),
			}
		}
		if i, ok := index[productID]; ok {
			if merged[i].UnitPrice != line.UnitPrice {
				return nil, &repositories.StoreError{
					Op:      "orders.place",
					Code:    repositories.ErrorPriceMismatch,
					Message: fmt.Sprintf("conflicting unit prices for product %s", productID),
				}
			}
			merged[i].Quantity += line.Quantity
			continue
		}
		index[productID] = len(merged)
		line.ProductID = productID
		merged = append(merged, line)
	}
	return merged, nil
}

// reserveStock validates one coalesced line against its catalog document and
// returns the decremented document alongside the priced order line.
func reserveStock(product productDocument, line domain.OrderLine, now time.Time) (productDocument, domain.OrderLine, error) {
	if product.DeletedAt != nil {
		return productDocument{}, domain.OrderLine{}, notFoundError("orders.place", fmt.Sprintf("product %s not found", line.ProductID), nil)
	}
	if product.Quantity < line.Quantity {
		return productDocument{}, domain.OrderLine{}, &repositories.StoreError{
			Op:      "orders.place",
			Code:    repositories.ErrorInsufficientStock,
			Message: fmt.Sprintf("insufficient stock for product %s", line.ProductID),
		}
	}
	if line.UnitPrice != product.Price {
		return productDocument{}, domain.OrderLine{}, &repositories.StoreError{
			Op:      "orders.place",
			Code:    repositories.ErrorPriceMismatch,
			Message: fmt.Sprintf("price for product %s does not match catalog", line.ProductID),
		}
	}

	product.Quantity -= line.Quantity
	product.UpdatedAt = now
	priced := domain.OrderLine{
		ProductID: line.ProductID,
		Name:      product.Name,
		Quantity:  line.Quantity,
		UnitPrice: line.UnitPrice,
		Total:     domain.LineTotal(line.UnitPrice, line.Quantity),
	}
	return product, priced, nil
}

func (r *OrderRepository) UpdateOrder(ctx context.Context, req repositories.UpdateOrderRequest) (repositories.UpdateOrderResult, error) {
	if r == nil || r.provider == nil {
		return repositories.UpdateOrderResult{}, errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return repositories.UpdateOrderResult{}, errors.New("order repository: order id is required")
	}
	if strings.TrimSpace(req.NewInvoiceID) == "" {
		return repositories.UpdateOrderResult{}, errors.New("order repository: new invoice id is required")
	}

	now := req.Now.UTC()
	var result repositories.UpdateOrderResult
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		orderSnap, err := tx.Get(orderRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return notFoundError("orders.update", fmt.Sprintf("order %s not found", orderID), err)
			}
			return err
		}
		var orderDoc orderDocument
		if err := orderSnap.DataTo(&orderDoc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}
		if orderDoc.DeletedAt != nil {
			return notFoundError("orders.update", fmt.Sprintf("order %s not found", orderID), nil)
		}

		activeRef, activeDoc, err := r.activeInvoiceForOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if req.Patch.Status != nil {
			orderDoc.Status = string(*req.Patch.Status)
		}
		if req.Patch.PaymentStatus != nil {
			orderDoc.PaymentStatus = string(*req.Patch.PaymentStatus)
		}
		if req.Patch.DeliveryFee != nil {
			orderDoc.DeliveryFee = *req.Patch.DeliveryFee
		}
		orderDoc.UpdatedAt = now

		updated := orderDoc.toDomain(orderID)
		updated.TotalAmount = domain.OrderTotal(updated.Lines)
		orderDoc.TotalAmount = updated.TotalAmount

		invoice := domain.Invoice{
			ID:            strings.TrimSpace(req.NewInvoiceID),
			UserID:        updated.UserID,
			OrderID:       orderID,
			InvoiceNumber: strings.TrimSpace(req.NewInvoiceNumber),
			Lines:         updated.Lines,
			Status:        domain.InvoiceStatusUnpaid,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if activeDoc != nil {
			invoice.DiscountAmount = activeDoc.DiscountAmount
			invoice.DiscountReason = activeDoc.DiscountReason
			if activeDoc.Status == string(domain.InvoiceStatusPaid) {
				invoice.Status = domain.InvoiceStatusPaid
				invoice.ProofOfPayment = activeDoc.ProofOfPayment
			}
		}
		if updated.PaymentStatus == domain.PaymentStatusPaid {
			invoice.Status = domain.InvoiceStatusPaid
		}
		invoice.TotalAmount = domain.InvoiceTotal(invoice.Lines, invoice.DiscountAmount)

		if err := tx.Set(orderRef, orderDoc); err != nil {
			return err
		}
		if activeRef != nil {
			if err := tx.Update(activeRef, []firestore.Update{
				{Path: "deletedAt", Value: now},
				{Path: "updatedAt", Value: now},
			}); err != nil {
				return err
			}
		}
		invoiceRef, err := r.invoices.DocumentRef(ctx, invoice.ID)
		if err != nil {
			return err
		}
		if err := tx.Create(invoiceRef, newInvoiceDocument(invoice)); err != nil {
			if status.Code(err) == codes.AlreadyExists {
				return conflictError("orders.update", fmt.Sprintf("invoice %s already exists", invoice.ID), err)
			}
			return err
		}

		result = repositories.UpdateOrderResult{Order: updated, Invoice: invoice}
		return nil
	})
	if err != nil {
		return repositories.UpdateOrderResult{}, wrapStoreError("orders.update", err)
	}
	return result, nil
}

// CancelOrder restores the stock consumed by the order and soft-deletes both
// the order and its active invoice. Paid orders cannot be cancelled.
func (r *OrderRepository) CancelOrder(ctx context.Context, req repositories.CancelOrderRequest) (repositories.CancelOrderResult, error) {
	if r == nil || r.provider == nil {
		return repositories.CancelOrderResult{}, errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return repositories.CancelOrderResult{}, errors.New("order repository: order id is required")
	}

	now := req.Now.UTC()
	var result repositories.CancelOrderResult
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		orderSnap, err := tx.Get(orderRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return notFoundError("orders.cancel", fmt.Sprintf("order %s not found", orderID), err)
			}
			return err
		}
		var orderDoc orderDocument
		if err := orderSnap.DataTo(&orderDoc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}
		if orderDoc.DeletedAt != nil {
			return notFoundError("orders.cancel", fmt.Sprintf("order %s not found", orderID), nil)
		}
		if orderDoc.PaymentStatus == string(domain.PaymentStatusPaid) {
			return conflictError("orders.cancel", fmt.Sprintf("order %s is already paid", orderID), nil)
		}

		activeRef, _, err := r.activeInvoiceForOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		// Restore stock for products that still exist. A product removed
		// from the catalog after the order was placed is skipped.
		type stockMutation struct {
			ref *firestore.DocumentRef
			doc productDocument
		}
		var mutations []stockMutation
		for _, line := range orderDoc.Lines {
			ref, err := r.products.DocumentRef(ctx, line.ProductID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(ref)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					continue
				}
				return err
			}
			var product productDocument
			if err := snap.DataTo(&product); err != nil {
				return fmt.Errorf("decode product %s: %w", line.ProductID, err)
			}
			product.Quantity += line.Quantity
			product.UpdatedAt = now
			mutations = append(mutations, stockMutation{ref: ref, doc: product})
		}

		for _, mutation := range mutations {
			if err := tx.Set(mutation.ref, mutation.doc); err != nil {
				return err
			}
		}
		if activeRef != nil {
			if err := tx.Update(activeRef, []firestore.Update{
				{Path: "deletedAt", Value: now},
				{Path: "updatedAt", Value: now},
			}); err != nil {
				return err
			}
		}

		orderDoc.Status = string(domain.OrderStatusCancelled)
		orderDoc.UpdatedAt = now
		orderDoc.DeletedAt = &now
		if err := tx.Set(orderRef, orderDoc); err != nil {
			return err
		}

		result = repositories.CancelOrderResult{Order: orderDoc.toDomain(orderID)}
		return nil
	})
	if err != nil {
		return repositories.CancelOrderResult{}, wrapStoreError("orders.cancel", err)
	}
	return result, nil
}

// FindByID loads an order. Soft-deleted orders are reported as not found.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, wrapStoreError("orders.findByID", err)
	}
	order := doc.Data.toDomain(doc.ID)
	if order.Deleted() {
		return domain.Order{}, notFoundError("orders.findByID", fmt.Sprintf("order %s not found", orderID), nil)
	}
	return order, nil
}

// List returns orders matching the filter.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	if r == nil || r.orders == nil {
		return nil, errors.New("order repository not initialised")
	}
	if id := strings.TrimSpace(filter.ID); id != "" {
		doc, err := r.orders.Get(ctx, id)
		if err != nil {
			err = wrapStoreError("orders.list", err)
			var storeErr *repositories.StoreError
			if errors.As(err, &storeErr) && storeErr.IsNotFound() {
				return []domain.Order{}, nil
			}
			return nil, err
		}
		order := doc.Data.toDomain(doc.ID)
		if !orderMatchesFilter(order, filter) {
			return []domain.Order{}, nil
		}
		return []domain.Order{order}, nil
	}

	docs, err := r.orders.Query(ctx, func(query firestore.Query) firestore.Query {
		if userID := strings.TrimSpace(filter.UserID); userID != "" {
			query = query.Where("userId", "==", userID)
		}
		if filter.Status != "" {
			query = query.Where("status", "==", string(filter.Status))
		}
		return query
	})
	if err != nil {
		return nil, wrapStoreError("orders.list", err)
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order := doc.Data.toDomain(doc.ID)
		if !orderMatchesFilter(order, filter) {
			continue
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func orderMatchesFilter(order domain.Order, filter repositories.OrderListFilter) bool {
	if !includeDeleted(filter.Deleted, order.Deleted()) {
		return false
	}
	if userID := strings.TrimSpace(filter.UserID); userID != "" && order.UserID != userID {
		return false
	}
	if filter.Status != "" && order.Status != filter.Status {
		return false
	}
	if filter.PaymentStatus != "" && order.PaymentStatus != filter.PaymentStatus {
		return false
	}
	return true
}

// activeInvoiceForOrder finds the live invoice linked to the order inside the
// transaction. Returns nils when the order has no live invoice.
func (r *OrderRepository) activeInvoiceForOrder(ctx context.Context, tx *firestore.Transaction, orderID string) (*firestore.DocumentRef, *invoiceDocument, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, nil, err
	}
	query := client.Collection(invoiceCollection).Where("orderId", "==", orderID)
	snaps, err := tx.Documents(query).GetAll()
	if err != nil {
		return nil, nil, err
	}
	for _, snap := range snaps {
		var doc invoiceDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, nil, fmt.Errorf("decode invoice %s: %w", snap.Ref.ID, err)
		}
		if doc.DeletedAt == nil {
			return snap.Ref, &doc, nil
		}
	}
	return nil, nil, nil
}

type orderDocument struct {
	UserID          string           `firestore:"userId"`
	Lines           []lineDocument   `firestore:"lines"`
	Status          string           `firestore:"status"`
	PaymentMethod   string           `firestore:"paymentMethod"`
	PaymentStatus   string           `firestore:"paymentStatus"`
	ShippingAddress *addressDocument `firestore:"shippingAddress,omitempty"`
	TrackingNumber  string           `firestore:"trackingNumber"`
	TotalAmount     int64            `firestore:"totalAmount"`
	DeliveryFee     int64            `firestore:"deliveryFee"`
	CreatedAt       time.Time        `firestore:"createdAt"`
	UpdatedAt       time.Time        `firestore:"updatedAt"`
	DeletedAt       *time.Time       `firestore:"deletedAt,omitempty"`
}

type lineDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	Quantity  int64  `firestore:"quantity"`
	UnitPrice int64  `firestore:"unitPrice"`
	Total     int64  `firestore:"total"`
}

type addressDocument struct {
	Street     string `firestore:"street"`
	CityID     string `firestore:"cityId,omitempty"`
	StateID    string `firestore:"stateId,omitempty"`
	PostalCode string `firestore:"postalCode,omitempty"`
}

func newOrderDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		UserID:         strings.TrimSpace(order.UserID),
		Lines:          newLineDocuments(order.Lines),
		Status:         string(order.Status),
		PaymentMethod:  string(order.PaymentMethod),
		PaymentStatus:  string(order.PaymentStatus),
		TrackingNumber: strings.TrimSpace(order.TrackingNumber),
		TotalAmount:    order.TotalAmount,
		DeliveryFee:    order.DeliveryFee,
		CreatedAt:      order.CreatedAt.UTC(),
		UpdatedAt:      order.UpdatedAt.UTC(),
		DeletedAt:      order.DeletedAt,
	}
	if order.ShippingAddress != nil {
		doc.ShippingAddress = &addressDocument{
			Street:     strings.TrimSpace(order.ShippingAddress.Street),
			CityID:     strings.TrimSpace(order.ShippingAddress.CityID),
			StateID:    strings.TrimSpace(order.ShippingAddress.StateID),
			PostalCode: strings.TrimSpace(order.ShippingAddress.PostalCode),
		}
	}
	return doc
}

func newLineDocuments(lines []domain.OrderLine) []lineDocument {
	docs := make([]lineDocument, len(lines))
	for i, line := range lines {
		docs[i] = lineDocument{
			ProductID: strings.TrimSpace(line.ProductID),
			Name:      strings.TrimSpace(line.Name),
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Total:     line.Total,
		}
	}
	return docs
}

func linesToDomain(docs []lineDocument) []domain.OrderLine {
	lines := make([]domain.OrderLine, len(docs))
	for i, doc := range docs {
		lines[i] = domain.OrderLine{
			ProductID: doc.ProductID,
			Name:      doc.Name,
			Quantity:  doc.Quantity,
			UnitPrice: doc.UnitPrice,
			Total:     doc.Total,
		}
	}
	return lines
}

func (d orderDocument) toDomain(id string) domain.Order {
	order := domain.Order{
		ID:             id,
		UserID:         d.UserID,
		Lines:          linesToDomain(d.Lines),
		Status:         domain.OrderStatus(d.Status),
		PaymentMethod:  domain.PaymentMethod(d.PaymentMethod),
		PaymentStatus:  domain.PaymentStatus(d.PaymentStatus),
		TrackingNumber: d.TrackingNumber,
		TotalAmount:    d.TotalAmount,
		DeliveryFee:    d.DeliveryFee,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
		DeletedAt:      d.DeletedAt,
	}
	if d.ShippingAddress != nil {
		order.ShippingAddress = &domain.Address{
			Street:     d.ShippingAddress.Street,
			CityID:     d.ShippingAddress.CityID,
			StateID:    d.ShippingAddress.StateID,
			PostalCode: d.ShippingAddress.PostalCode,
		}
	}
	return order
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
