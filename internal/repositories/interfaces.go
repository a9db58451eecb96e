package repositories

import (
	"context"
	"time"

	"github.com/maplecart/api/internal/domain"
)

// ProductListFilter narrows product listings.
type ProductListFilter struct {
	ID         string
	CategoryID string
	Name       string
	MinPrice   *int64
	MaxPrice   *int64
	Deleted    DeletedFilter
}

// CategoryListFilter narrows category listings.
type CategoryListFilter struct {
	ID      string
	Name    string
	Deleted DeletedFilter
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	ID            string
	UserID        string
	Status        domain.OrderStatus
	PaymentStatus domain.PaymentStatus
	Deleted       DeletedFilter
}

// InvoiceListFilter narrows invoice listings.
type InvoiceListFilter struct {
	ID      string
	OrderID string
	UserID  string
	Deleted DeletedFilter
}

// UserListFilter narrows user listings.
type UserListFilter struct {
	ID      string
	Email   string
	Name    string
	Phone   string
	Deleted DeletedFilter
}

// EmailListFilter narrows email listings.
type EmailListFilter struct {
	Status domain.EmailStatus
}

// StateListFilter narrows state listings.
type StateListFilter struct {
	Name string
	Code string
}

// CityListFilter narrows city listings.
type CityListFilter struct {
	Name    string
	StateID string
}

// DeletedFilter selects whether soft-deleted documents appear in listings.
type DeletedFilter string

const (
	// DeletedExclude returns only live documents. Zero value default.
	DeletedExclude DeletedFilter = ""
	// DeletedOnly returns only soft-deleted documents.
	DeletedOnly DeletedFilter = "only"
	// DeletedInclude returns both live and soft-deleted documents.
	DeletedInclude DeletedFilter = "all"
)

// PlaceOrderRequest creates an order plus mirrored invoice while decrementing
// stock, all within a single transaction. Lines carry the client-submitted
// unit prices which are checked against the catalog inside the transaction.
type PlaceOrderRequest struct {
	Order   domain.Order
	Invoice domain.Invoice
	Now     time.Time
}

// PlaceOrderResult returns the persisted order and invoice.
type PlaceOrderResult struct {
	Order   domain.Order
	Invoice domain.Invoice
}

// OrderPatch carries optional field updates for an order.
type OrderPatch struct {
	Status        *domain.OrderStatus
	PaymentStatus *domain.PaymentStatus
	DeliveryFee   *int64
}

// UpdateOrderRequest patches an order and rotates its invoice transactionally.
// The superseded invoice is soft-deleted and NewInvoice (id and number
// pre-assigned by the caller) is written mirroring the patched order.
type UpdateOrderRequest struct {
	OrderID          string
	Patch            OrderPatch
	NewInvoiceID     string
	NewInvoiceNumber string
	Now              time.Time
}

// UpdateOrderResult returns the patched order and its fresh invoice.
type UpdateOrderResult struct {
	Order   domain.Order
	Invoice domain.Invoice
}

// CancelOrderRequest soft-deletes an order and its active invoice while
// restoring stock, all within a single transaction.
type CancelOrderRequest struct {
	OrderID string
	Now     time.Time
}

// CancelOrderResult returns the cancelled order.
type CancelOrderResult struct {
	Order domain.Order
}

// PayInvoiceRequest marks an invoice paid and propagates the payment status
// to the linked order within a single transaction.
type PayInvoiceRequest struct {
	InvoiceID      string
	ProofOfPayment string
	Now            time.Time
}

// PayInvoiceResult reports the paid invoice. OrderMissing is set when the
// linked order no longer exists; payment still succeeds in that case.
type PayInvoiceResult struct {
	Invoice      domain.Invoice
	OrderMissing bool
}

// ProductRepository persists catalog products.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	SoftDelete(ctx context.Context, productID string, deletedAt time.Time) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) ([]domain.Product, error)
}

// CategoryRepository persists product categories.
type CategoryRepository interface {
	Insert(ctx context.Context, category domain.Category) error
	Update(ctx context.Context, category domain.Category) error
	SoftDelete(ctx context.Context, categoryID string, deletedAt time.Time) error
	FindByID(ctx context.Context, categoryID string) (domain.Category, error)
	FindByName(ctx context.Context, name string) (domain.Category, error)
	List(ctx context.Context, filter CategoryListFilter) ([]domain.Category, error)
}

// OrderRepository persists orders and executes the transactional order workflow.
type OrderRepository interface {
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (PlaceOrderResult, error)
	UpdateOrder(ctx context.Context, req UpdateOrderRequest) (UpdateOrderResult, error)
	CancelOrder(ctx context.Context, req CancelOrderRequest) (CancelOrderResult, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) ([]domain.Order, error)
}

// InvoiceRepository persists invoices and executes transactional payment.
type InvoiceRepository interface {
	Insert(ctx context.Context, invoice domain.Invoice) error
	SoftDelete(ctx context.Context, invoiceID string, deletedAt time.Time) error
	FindByID(ctx context.Context, invoiceID string) (domain.Invoice, error)
	FindActiveByOrder(ctx context.Context, orderID string) (domain.Invoice, error)
	List(ctx context.Context, filter InvoiceListFilter) ([]domain.Invoice, error)
	Pay(ctx context.Context, req PayInvoiceRequest) (PayInvoiceResult, error)
}

// CartRepository persists one cart per user, keyed by user id.
type CartRepository interface {
	Get(ctx context.Context, userID string) (domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	Delete(ctx context.Context, userID string) error
}

// UserRepository persists user accounts with unique emails.
type UserRepository interface {
	Insert(ctx context.Context, user domain.User) error
	Update(ctx context.Context, user domain.User) error
	SoftDelete(ctx context.Context, userID string, deletedAt time.Time) error
	FindByID(ctx context.Context, userID string) (domain.User, error)
	FindByEmail(ctx context.Context, email string) (domain.User, error)
	List(ctx context.Context, filter UserListFilter) ([]domain.User, error)
}

// EmailRepository persists queued outbound emails.
type EmailRepository interface {
	Insert(ctx context.Context, email domain.Email) error
	UpdateStatus(ctx context.Context, emailID string, status domain.EmailStatus, updatedAt time.Time) (domain.Email, error)
	FindByID(ctx context.Context, emailID string) (domain.Email, error)
	List(ctx context.Context, filter EmailListFilter) ([]domain.Email, error)
}

// GeographyRepository persists states and cities.
type GeographyRepository interface {
	InsertState(ctx context.Context, state domain.State) error
	InsertCity(ctx context.Context, city domain.City) error
	FindStateByID(ctx context.Context, stateID string) (domain.State, error)
	FindCityByID(ctx context.Context, cityID string) (domain.City, error)
	ListStates(ctx context.Context, filter StateListFilter) ([]domain.State, error)
	ListCities(ctx context.Context, filter CityListFilter) ([]domain.City, error)
}

// ContactRepository persists contact-form submissions.
type ContactRepository interface {
	Insert(ctx context.Context, message domain.ContactMessage) error
}

// HealthRepository probes the datastore for readiness checks.
type HealthRepository interface {
	Check(ctx context.Context) error
}
