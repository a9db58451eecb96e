package services

import (
	"context"
	"time"

	"github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Product        = domain.Product
	Category       = domain.Category
	Order          = domain.Order
	OrderLine      = domain.OrderLine
	OrderStatus    = domain.OrderStatus
	PaymentStatus  = domain.PaymentStatus
	PaymentMethod  = domain.PaymentMethod
	Invoice        = domain.Invoice
	InvoiceStatus  = domain.InvoiceStatus
	Cart           = domain.Cart
	CartLine       = domain.CartLine
	User           = domain.User
	UserType       = domain.UserType
	Address        = domain.Address
	Email          = domain.Email
	EmailStatus    = domain.EmailStatus
	State          = domain.State
	City           = domain.City
	ContactMessage = domain.ContactMessage
)

// CatalogService manages products and categories.
type CatalogService interface {
	CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error)
	DeleteProduct(ctx context.Context, productID string) error
	GetProduct(ctx context.Context, productID string) (Product, error)
	ListProducts(ctx context.Context, query ProductQuery) ([]Product, error)
	CreateCategory(ctx context.Context, cmd CreateCategoryCommand) (Category, error)
	UpdateCategory(ctx context.Context, cmd UpdateCategoryCommand) (Category, error)
	DeleteCategory(ctx context.Context, categoryID string) error
	GetCategory(ctx context.Context, categoryID string) (Category, error)
	ListCategories(ctx context.Context, query CategoryQuery) ([]Category, error)
}

// OrderService runs the order lifecycle: placement with stock and price
// validation, patch updates with invoice rotation, and cancellation.
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListOrders(ctx context.Context, query OrderQuery) ([]Order, error)
	UpdateOrder(ctx context.Context, cmd UpdateOrderCommand) (Order, error)
	CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error)
}

// InvoiceService exposes invoice creation, reads, payment, deletion, and
// proof uploads.
type InvoiceService interface {
	CreateInvoice(ctx context.Context, cmd CreateInvoiceCommand) (Invoice, error)
	GetInvoice(ctx context.Context, invoiceID string) (Invoice, error)
	ListInvoices(ctx context.Context, query InvoiceQuery) ([]Invoice, error)
	PayInvoice(ctx context.Context, cmd PayInvoiceCommand) (Invoice, error)
	DeleteInvoice(ctx context.Context, invoiceID string) error
	ProofUploadURL(ctx context.Context, cmd ProofUploadCommand) (ProofUploadResult, error)
}

// CartService manages per-user carts.
type CartService interface {
	GetCart(ctx context.Context, userID string) (Cart, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

// UserService manages account profiles.
type UserService interface {
	Register(ctx context.Context, cmd RegisterUserCommand) (User, error)
	GetUser(ctx context.Context, userID string) (User, error)
	UpdateUser(ctx context.Context, cmd UpdateUserCommand) (User, error)
	DeleteUser(ctx context.Context, userID string) error
	ListUsers(ctx context.Context, query UserQuery) ([]User, error)
}

// EmailService queues outbound emails and drives their dispatch.
type EmailService interface {
	QueueEmail(ctx context.Context, cmd QueueEmailCommand) (Email, error)
	GetEmail(ctx context.Context, emailID string) (Email, error)
	ListEmails(ctx context.Context, query EmailQuery) ([]Email, error)
	UpdateStatus(ctx context.Context, emailID string, status EmailStatus) (Email, error)
	DispatchPending(ctx context.Context) (DispatchReport, error)
}

// GeographyService manages the state and city reference data.
type GeographyService interface {
	CreateState(ctx context.Context, cmd CreateStateCommand) (State, error)
	GetState(ctx context.Context, stateID string) (State, error)
	ListStates(ctx context.Context, query StateQuery) ([]State, error)
	CreateCity(ctx context.Context, cmd CreateCityCommand) (City, error)
	GetCity(ctx context.Context, cityID string) (City, error)
	ListCities(ctx context.Context, query CityQuery) ([]City, error)
}

// ContactService records portfolio contact-form submissions.
type ContactService interface {
	Submit(ctx context.Context, cmd ContactCommand) (ContactMessage, error)
}

// OrderEventMessage is the payload published for order lifecycle events.
type OrderEventMessage struct {
	EventID     string    `json:"eventId"`
	Type        string    `json:"type"`
	OrderID     string    `json:"orderId"`
	UserID      string    `json:"userId"`
	TotalAmount int64     `json:"totalAmount"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// Order event types.
const (
	OrderEventPlaced    = "order.placed"
	OrderEventUpdated   = "order.updated"
	OrderEventCancelled = "order.cancelled"
	OrderEventPaid      = "order.paid"
)

// EmailJobMessage is the payload published to the email delivery queue.
type EmailJobMessage struct {
	JobID      string    `json:"jobId"`
	EmailID    string    `json:"emailId"`
	To         string    `json:"to"`
	Subject    string    `json:"subject"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// OrderEventPublisher publishes order lifecycle events to the message broker.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, message OrderEventMessage) (string, error)
}

// EmailJobPublisher publishes email delivery jobs to the message broker.
type EmailJobPublisher interface {
	PublishEmailJob(ctx context.Context, message EmailJobMessage) (string, error)
}

// Commands and queries -------------------------------------------------------

// CreateProductCommand creates a catalog product.
type CreateProductCommand struct {
	Name        string
	Description string
	Price       int64
	CategoryID  string
	Quantity    int64
	Images      []string
}

// UpdateProductCommand patches a catalog product. Nil fields stay unchanged.
type UpdateProductCommand struct {
	ProductID   string
	Name        *string
	Description *string
	Price       *int64
	CategoryID  *string
	Quantity    *int64
	Images      []string
}

// ProductQuery narrows product listings.
type ProductQuery struct {
	ID         string
	CategoryID string
	Name       string
	MinPrice   *int64
	MaxPrice   *int64
	Deleted    repositories.DeletedFilter
}

// CreateCategoryCommand creates a category.
type CreateCategoryCommand struct {
	Name        string
	Description string
	ParentID    string
}

// UpdateCategoryCommand patches a category. Nil fields stay unchanged.
type UpdateCategoryCommand struct {
	CategoryID  string
	Name        *string
	Description *string
	ParentID    *string
}

// CategoryQuery narrows category listings.
type CategoryQuery struct {
	ID      string
	Name    string
	Deleted repositories.DeletedFilter
}

// PlaceOrderLine is one requested product with its client-visible unit price.
// The price is revalidated against the catalog inside the placement
// transaction.
type PlaceOrderLine struct {
	ProductID string
	Quantity  int64
	UnitPrice int64
}

// PlaceOrderCommand places an order.
type PlaceOrderCommand struct {
	UserID          string
	Lines           []PlaceOrderLine
	PaymentMethod   PaymentMethod
	ShippingAddress *Address
	DeliveryFee     int64
	DiscountAmount  int64
	DiscountReason  string
	FromCart        bool
}

// UpdateOrderCommand patches an order. Nil fields stay unchanged.
type UpdateOrderCommand struct {
	OrderID       string
	Status        *OrderStatus
	PaymentStatus *PaymentStatus
	DeliveryFee   *int64
}

// CancelOrderCommand cancels an order.
type CancelOrderCommand struct {
	OrderID string
}

// OrderQuery narrows order listings.
type OrderQuery struct {
	ID            string
	UserID        string
	Status        OrderStatus
	PaymentStatus PaymentStatus
	Deleted       repositories.DeletedFilter
}

// CreateInvoiceCommand derives a fresh invoice from an existing order. A
// discount greater than zero requires a reason.
type CreateInvoiceCommand struct {
	OrderID        string
	DiscountAmount int64
	DiscountReason string
}

// PayInvoiceCommand settles an invoice. Reference is either a storage object
// path for a manual proof of payment or a PSP payment reference which is
// verified before the invoice is marked paid.
type PayInvoiceCommand struct {
	InvoiceID string
	Reference string
}

// InvoiceQuery narrows invoice listings.
type InvoiceQuery struct {
	ID      string
	OrderID string
	UserID  string
	Deleted repositories.DeletedFilter
}

// ProofUploadCommand requests a signed upload URL for a payment proof.
type ProofUploadCommand struct {
	InvoiceID   string
	Filename    string
	ContentType string
}

// ProofUploadResult is the signed upload grant returned to the client.
type ProofUploadResult struct {
	URL       string
	Method    string
	Object    string
	Headers   map[string]string
	ExpiresAt time.Time
}

// AddCartItemCommand adds Quantity units of a product to the user's cart,
// incrementing an existing line.
type AddCartItemCommand struct {
	UserID    string
	ProductID string
	Quantity  int64
}

// RemoveCartItemCommand decrements a product line in the user's cart.
// Quantity <= 0 removes the line outright; a decrement to zero or below
// prunes it.
type RemoveCartItemCommand struct {
	UserID    string
	ProductID string
	Quantity  int64
}

// RegisterUserCommand creates a user account. PasswordHash is stored opaque.
type RegisterUserCommand struct {
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Phone        string
	Type         UserType
	Addresses    []Address
}

// UpdateUserCommand patches a user account. Nil fields stay unchanged.
type UpdateUserCommand struct {
	UserID       string
	Email        *string
	PasswordHash *string
	FirstName    *string
	LastName     *string
	Phone        *string
	Addresses    []Address
}

// UserQuery narrows user listings.
type UserQuery struct {
	ID      string
	Email   string
	Name    string
	Phone   string
	Deleted repositories.DeletedFilter
}

// QueueEmailCommand queues an outbound email.
type QueueEmailCommand struct {
	To      string
	Subject string
	Body    string
}

// EmailQuery narrows email listings.
type EmailQuery struct {
	Status EmailStatus
}

// DispatchReport summarises a dispatch run over pending emails.
type DispatchReport struct {
	Dispatched int
	Failed     int
}

// CreateStateCommand creates a state.
type CreateStateCommand struct {
	Name    string
	Code    string
	Capital string
}

// StateQuery narrows state listings.
type StateQuery struct {
	Name string
	Code string
}

// CreateCityCommand creates a city.
type CreateCityCommand struct {
	Name       string
	Code       string
	StateID    string
	PostalCode string
}

// CityQuery narrows city listings.
type CityQuery struct {
	Name    string
	StateID string
}

// ContactCommand is a contact-form submission.
type ContactCommand struct {
	Name    string
	Email   string
	Message string
}
