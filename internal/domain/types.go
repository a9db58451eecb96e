package domain

import (
	"time"
)

// OrderStatus describes the fulfilment lifecycle of an order.
type OrderStatus string

const (
	// OrderStatusPending indicates the order has been placed but not fulfilled.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusCompleted indicates the order has been fulfilled.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled indicates the order was cancelled before fulfilment.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid reports whether the status is one of the known order states.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// PaymentStatus tracks whether an order has been paid for.
type PaymentStatus string

const (
	// PaymentStatusUnpaid indicates no payment has been recorded.
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	// PaymentStatusPaid indicates payment has been recorded.
	PaymentStatusPaid PaymentStatus = "paid"
)

// Valid reports whether the payment status is known.
func (s PaymentStatus) Valid() bool {
	return s == PaymentStatusUnpaid || s == PaymentStatusPaid
}

// PaymentMethod enumerates supported payment instruments.
type PaymentMethod string

const (
	// PaymentMethodCreditCard is card payment.
	PaymentMethodCreditCard PaymentMethod = "credit_card"
	// PaymentMethodPayPal is PayPal payment.
	PaymentMethodPayPal PaymentMethod = "paypal"
	// PaymentMethodBankTransfer is manual bank transfer.
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

// Valid reports whether the payment method is supported.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCreditCard, PaymentMethodPayPal, PaymentMethodBankTransfer:
		return true
	}
	return false
}

// InvoiceStatus describes the settlement state of an invoice.
type InvoiceStatus string

const (
	// InvoiceStatusUnpaid indicates the invoice awaits payment.
	InvoiceStatusUnpaid InvoiceStatus = "unpaid"
	// InvoiceStatusPaid indicates the invoice has been settled.
	InvoiceStatusPaid InvoiceStatus = "paid"
	// InvoiceStatusOverdue indicates the invoice passed its due date unpaid.
	InvoiceStatusOverdue InvoiceStatus = "overdue"
)

// Valid reports whether the invoice status is known.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusUnpaid, InvoiceStatusPaid, InvoiceStatusOverdue:
		return true
	}
	return false
}

// EmailStatus tracks the delivery lifecycle of a queued email.
type EmailStatus string

const (
	// EmailStatusPending indicates the email awaits dispatch.
	EmailStatusPending EmailStatus = "pending"
	// EmailStatusQueued indicates the email was handed to the delivery queue.
	EmailStatusQueued EmailStatus = "queued"
	// EmailStatusSent indicates delivery succeeded.
	EmailStatusSent EmailStatus = "sent"
	// EmailStatusFailed indicates delivery failed.
	EmailStatusFailed EmailStatus = "failed"
)

// Valid reports whether the email status is known.
func (s EmailStatus) Valid() bool {
	switch s {
	case EmailStatusPending, EmailStatusQueued, EmailStatusSent, EmailStatusFailed:
		return true
	}
	return false
}

// UserType distinguishes customers from privileged accounts.
type UserType string

const (
	// UserTypeCustomer is a regular shopper.
	UserTypeCustomer UserType = "customer"
	// UserTypeStaff can manage catalog, orders, and invoices.
	UserTypeStaff UserType = "staff"
	// UserTypeAdmin has full access.
	UserTypeAdmin UserType = "admin"
)

// Product is a sellable catalog entry. Price is in minor currency units.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       int64
	CategoryID  string
	Quantity    int64
	Images      []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

// Deleted reports whether the product has been soft-deleted.
func (p Product) Deleted() bool { return p.DeletedAt != nil }

// Category groups products, optionally nested under a parent category.
type Category struct {
	ID          string
	Name        string
	Description string
	ParentID    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

// Deleted reports whether the category has been soft-deleted.
func (c Category) Deleted() bool { return c.DeletedAt != nil }

// OrderLine is a priced quantity of one product within an order or invoice.
type OrderLine struct {
	ProductID string
	Name      string
	Quantity  int64
	UnitPrice int64
	Total     int64
}

// Address locates a delivery destination.
type Address struct {
	Street     string
	CityID     string
	StateID    string
	PostalCode string
}

// Order is a placed purchase with its price snapshot and payment state.
type Order struct {
	ID              string
	UserID          string
	Lines           []OrderLine
	Status          OrderStatus
	PaymentMethod   PaymentMethod
	PaymentStatus   PaymentStatus
	ShippingAddress *Address
	TrackingNumber  string
	TotalAmount     int64
	DeliveryFee     int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       *time.Time
}

// Deleted reports whether the order has been soft-deleted.
func (o Order) Deleted() bool { return o.DeletedAt != nil }

// Invoice is an immutable billing record derived from an order. Superseded
// invoices are soft-deleted rather than mutated, forming an audit trail.
type Invoice struct {
	ID             string
	UserID         string
	OrderID        string
	InvoiceNumber  string
	Lines          []OrderLine
	TotalAmount    int64
	DiscountAmount int64
	DiscountReason string
	Status         InvoiceStatus
	ProofOfPayment string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// Deleted reports whether the invoice has been soft-deleted.
func (i Invoice) Deleted() bool { return i.DeletedAt != nil }

// CartLine is an unpriced quantity of one product held in a cart.
type CartLine struct {
	ProductID string
	Quantity  int64
}

// Cart holds a user's pending selections. One cart per user, keyed by user id.
type Cart struct {
	UserID    string
	Lines     []CartLine
	CreatedAt time.Time
	UpdatedAt time.Time
}

// User is an account profile. Password hashes are stored opaque; hashing and
// token issuance happen outside this service.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Phone        string
	Type         UserType
	Addresses    []Address
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// Deleted reports whether the user has been soft-deleted.
func (u User) Deleted() bool { return u.DeletedAt != nil }

// Email is a queued outbound message.
type Email struct {
	ID        string
	To        string
	Subject   string
	Body      string
	Status    EmailStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// State is a top-level geographic region.
type State struct {
	ID        string
	Name      string
	Code      string
	Capital   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// City belongs to a state.
type City struct {
	ID         string
	Name       string
	Code       string
	StateID    string
	PostalCode string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ContactMessage is a portfolio contact-form submission.
type ContactMessage struct {
	ID        string
	Name      string
	Email     string
	Message   string
	CreatedAt time.Time
}
