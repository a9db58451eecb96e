package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

const (
	orderIDPrefix   = "ord_"
	invoiceIDPrefix = "inv_"
	eventIDPrefix   = "evt_"
)

var (
	// ErrOrderInvalidInput indicates the caller supplied invalid input parameters.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the requested order does not exist or is deleted.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderProductNotFound indicates an ordered product does not exist or is deleted.
	ErrOrderProductNotFound = errors.New("order: product not found")
	// ErrOrderInsufficientStock indicates stock does not cover a requested quantity.
	ErrOrderInsufficientStock = errors.New("order: insufficient stock")
	// ErrOrderPriceMismatch indicates a submitted unit price differs from the catalog.
	ErrOrderPriceMismatch = errors.New("order: price mismatch")
	// ErrOrderAlreadyPaid indicates the operation is not allowed on a paid order.
	ErrOrderAlreadyPaid = errors.New("order: already paid")
	// ErrOrderConflict indicates a conflicting concurrent modification.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderUnavailable indicates order dependencies are currently unavailable.
	ErrOrderUnavailable = errors.New("order: unavailable")
)

// emailQueuer is the slice of EmailService the order service needs to queue
// confirmation emails.
type emailQueuer interface {
	QueueEmail(ctx context.Context, cmd QueueEmailCommand) (Email, error)
}

// userReader resolves order recipients for confirmation emails.
type userReader interface {
	FindByID(ctx context.Context, userID string) (domain.User, error)
}

// OrderServiceDeps wires the dependencies required by the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Products    repositories.ProductRepository
	Carts       repositories.CartRepository
	Users       userReader
	Events      OrderEventPublisher
	Emails      emailQueuer
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders   repositories.OrderRepository
	products repositories.ProductRepository
	carts    repositories.CartRepository
	users    userReader
	events   OrderEventPublisher
	emails   emailQueuer
	now      func() time.Time
	newID    func() string
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewOrderService constructs an OrderService validating required dependencies.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
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
	return &orderService{
		orders:   deps.Orders,
		products: deps.Products,
		carts:    deps.Carts,
		users:    deps.Users,
		events:   deps.Events,
		emails:   deps.Emails,
		now:      func() time.Time { return clock().UTC() },
		newID:    idGen,
		logger:   logger,
	}, nil
}

// PlaceOrder validates the requested lines and runs the placement
// transaction: stock decrement, order creation, and the mirrored unpaid
// invoice are atomic. Event publication and the confirmation email are
// best effort and never fail a placed order.
func (s *orderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if cmd.PaymentMethod != "" && !cmd.PaymentMethod.Valid() {
		return Order{}, fmt.Errorf("%w: unknown payment method %q", ErrOrderInvalidInput, cmd.PaymentMethod)
	}
	if cmd.DeliveryFee < 0 {
		return Order{}, fmt.Errorf("%w: delivery fee must not be negative", ErrOrderInvalidInput)
	}
	if cmd.DiscountAmount < 0 {
		return Order{}, fmt.Errorf("%w: discount must not be negative", ErrOrderInvalidInput)
	}

	lines := cmd.Lines
	if cmd.FromCart {
		cartLines, err := s.linesFromCart(ctx, userID)
		if err != nil {
			return Order{}, err
		}
		lines = cartLines
	}
	if len(lines) == 0 {
		return Order{}, fmt.Errorf("%w: at least one line is required", ErrOrderInvalidInput)
	}

	orderLines := make([]domain.OrderLine, 0, len(lines))
	for _, line := range lines {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return Order{}, fmt.Errorf("%w: line product id is required", ErrOrderInvalidInput)
		}
		if line.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: line quantity must be positive", ErrOrderInvalidInput)
		}
		orderLines = append(orderLines, domain.OrderLine{
			ProductID: productID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}

	now := s.now()
	orderID := orderIDPrefix + s.newID()
	paymentMethod := cmd.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = domain.PaymentMethodBankTransfer
	}

	req := repositories.PlaceOrderRequest{
		Order: domain.Order{
			ID:              orderID,
			UserID:          userID,
			Lines:           orderLines,
			Status:          domain.OrderStatusPending,
			PaymentMethod:   paymentMethod,
			PaymentStatus:   domain.PaymentStatusUnpaid,
			ShippingAddress: cmd.ShippingAddress,
			TrackingNumber:  domain.TrackingNumber(orderID, now),
			DeliveryFee:     cmd.DeliveryFee,
		},
		Invoice: domain.Invoice{
			ID:             invoiceIDPrefix + s.newID(),
			InvoiceNumber:  domain.InvoiceNumber(orderID, now),
			DiscountAmount: cmd.DiscountAmount,
			DiscountReason: strings.TrimSpace(cmd.DiscountReason),
		},
		Now: now,
	}

	result, err := s.orders.PlaceOrder(ctx, req)
	if err != nil {
		return Order{}, s.translateOrderError(err)
	}

	if cmd.FromCart && s.carts != nil {
		if err := s.carts.Delete(ctx, userID); err != nil {
			s.logger(ctx, "order.cart_clear_failed", map[string]any{
				"orderID": result.Order.ID,
				"userID":  userID,
				"error":   err.Error(),
			})
		}
	}

	s.publishEvent(ctx, OrderEventPlaced, result.Order)
	s.queueConfirmationEmail(ctx, result.Order, result.Invoice)

	return result.Order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.translateOrderError(err)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, query OrderQuery) ([]Order, error) {
	if query.Status != "" && !query.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown order status %q", ErrOrderInvalidInput, query.Status)
	}
	if query.PaymentStatus != "" && !query.PaymentStatus.Valid() {
		return nil, fmt.Errorf("%w: unknown payment status %q", ErrOrderInvalidInput, query.PaymentStatus)
	}
	orders, err := s.orders.List(ctx, repositories.OrderListFilter{
		ID:            strings.TrimSpace(query.ID),
		UserID:        strings.TrimSpace(query.UserID),
		Status:        query.Status,
		PaymentStatus: query.PaymentStatus,
		Deleted:       query.Deleted,
	})
	if err != nil {
		return nil, s.translateOrderError(err)
	}
	return orders, nil
}

// UpdateOrder patches the order and rotates its invoice so the live invoice
// always mirrors the order.
func (s *orderService) UpdateOrder(ctx context.Context, cmd UpdateOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if cmd.Status == nil && cmd.PaymentStatus == nil && cmd.DeliveryFee == nil {
		return Order{}, fmt.Errorf("%w: no fields to update", ErrOrderInvalidInput)
	}
	if cmd.Status != nil && !cmd.Status.Valid() {
		return Order{}, fmt.Errorf("%w: unknown order status %q", ErrOrderInvalidInput, *cmd.Status)
	}
	if cmd.PaymentStatus != nil && !cmd.PaymentStatus.Valid() {
		return Order{}, fmt.Errorf("%w: unknown payment status %q", ErrOrderInvalidInput, *cmd.PaymentStatus)
	}
	if cmd.DeliveryFee != nil && *cmd.DeliveryFee < 0 {
		return Order{}, fmt.Errorf("%w: delivery fee must not be negative", ErrOrderInvalidInput)
	}

	now := s.now()
	result, err := s.orders.UpdateOrder(ctx, repositories.UpdateOrderRequest{
		OrderID: orderID,
		Patch: repositories.OrderPatch{
			Status:        cmd.Status,
			PaymentStatus: cmd.PaymentStatus,
			DeliveryFee:   cmd.DeliveryFee,
		},
		NewInvoiceID:     invoiceIDPrefix + s.newID(),
		NewInvoiceNumber: domain.InvoiceNumber(orderID, now),
		Now:              now,
	})
	if err != nil {
		return Order{}, s.translateOrderError(err)
	}

	s.publishEvent(ctx, OrderEventUpdated, result.Order)
	return result.Order, nil
}

// CancelOrder restores stock and soft-deletes the order with its invoice.
// Paid orders cannot be cancelled.
func (s *orderService) CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	result, err := s.orders.CancelOrder(ctx, repositories.CancelOrderRequest{
		OrderID: orderID,
		Now:     s.now(),
	})
	if err != nil {
		return Order{}, s.translateOrderError(err)
	}

	s.publishEvent(ctx, OrderEventCancelled, result.Order)
	return result.Order, nil
}

func (s *orderService) linesFromCart(ctx context.Context, userID string) ([]PlaceOrderLine, error) {
	if s.carts == nil {
		return nil, fmt.Errorf("%w: cart checkout is not configured", ErrOrderUnavailable)
	}
	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		var storeErr *repositories.StoreError
		if errors.As(err, &storeErr) && storeErr.IsNotFound() {
			return nil, fmt.Errorf("%w: cart is empty", ErrOrderInvalidInput)
		}
		return nil, s.translateOrderError(err)
	}
	if len(cart.Lines) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", ErrOrderInvalidInput)
	}

	// Cart lines are unpriced. Price them from the catalog now; the
	// placement transaction re-reads and the price cannot drift between
	// the two reads without tripping the mismatch check.
	lines := make([]PlaceOrderLine, 0, len(cart.Lines))
	for _, item := range cart.Lines {
		product, err := s.products.FindByID(ctx, item.ProductID)
		if err != nil {
			return nil, s.translateOrderError(err)
		}
		lines = append(lines, PlaceOrderLine{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: product.Price,
		})
	}
	return lines, nil
}

func (s *orderService) publishEvent(ctx context.Context, eventType string, order Order) {
	if s.events == nil {
		return
	}
	message := OrderEventMessage{
		EventID:     eventIDPrefix + s.newID(),
		Type:        eventType,
		OrderID:     order.ID,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount,
		OccurredAt:  s.now(),
	}
	if _, err := s.events.PublishOrderEvent(ctx, message); err != nil {
		s.logger(ctx, "order.event_publish_failed", map[string]any{
			"orderID": order.ID,
			"type":    eventType,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) queueConfirmationEmail(ctx context.Context, order Order, invoice Invoice) {
	if s.emails == nil || s.users == nil {
		return
	}
	user, err := s.users.FindByID(ctx, order.UserID)
	if err != nil {
		s.logger(ctx, "order.confirmation_recipient_missing", map[string]any{
			"orderID": order.ID,
			"userID":  order.UserID,
			"error":   err.Error(),
		})
		return
	}
	subject := fmt.Sprintf("Order confirmation %s", order.TrackingNumber)
	body := fmt.Sprintf(
		"Your order %s has been placed. Invoice %s totals %d. Track it with %s.",
		order.ID, invoice.InvoiceNumber, order.TotalAmount, order.TrackingNumber,
	)
	if _, err := s.emails.QueueEmail(ctx, QueueEmailCommand{
		To:      user.Email,
		Subject: subject,
		Body:    body,
	}); err != nil {
		s.logger(ctx, "order.confirmation_email_failed", map[string]any{
			"orderID": order.ID,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) translateOrderError(err error) error {
	var storeErr *repositories.StoreError
	if errors.As(err, &storeErr) {
		switch {
		case storeErr.IsInsufficientStock():
			return fmt.Errorf("%w: %s", ErrOrderInsufficientStock, storeErr.Message)
		case storeErr.IsPriceMismatch():
			return fmt.Errorf("%w: %s", ErrOrderPriceMismatch, storeErr.Message)
		case storeErr.IsNotFound():
			if strings.Contains(storeErr.Message, "product") {
				return fmt.Errorf("%w: %s", ErrOrderProductNotFound, storeErr.Message)
			}
			return fmt.Errorf("%w: %s", ErrOrderNotFound, storeErr.Message)
		case storeErr.IsConflict():
			if strings.Contains(storeErr.Message, "paid") {
				return fmt.Errorf("%w: %s", ErrOrderAlreadyPaid, storeErr.Message)
			}
			return fmt.Errorf("%w: %s", ErrOrderConflict, storeErr.Message)
		case storeErr.IsUnavailable():
			return fmt.Errorf("%w: %s", ErrOrderUnavailable, storeErr.Message)
		}
	}
	return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
}
