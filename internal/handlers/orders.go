package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/platform/auth"
	"github.com/maplecart/api/internal/platform/httpx"
	"github.com/maplecart/api/internal/services"
)

const maxOrderBodySize = 128 * 1024

// OrderHandlers exposes authenticated order lifecycle endpoints.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs handlers for the /orders endpoints.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes wires the /orders endpoints onto the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.placeOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderId}", h.getOrder)
	r.Put("/{orderId}", h.updateOrder)
	r.Delete("/{orderId}", h.cancelOrder)
}

func (h *OrderHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req placeOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = identity.UID
	}
	if userID != identity.UID && !identity.IsStaff() {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "cannot place orders for another user", http.StatusForbidden))
		return
	}

	cmd := services.PlaceOrderCommand{
		UserID:         userID,
		PaymentMethod:  domain.PaymentMethod(strings.TrimSpace(req.PaymentMethod)),
		DeliveryFee:    req.DeliveryFee,
		DiscountAmount: req.DiscountAmount,
		DiscountReason: req.DiscountReason,
		FromCart:       req.FromCart,
	}
	for _, item := range req.Items {
		cmd.Lines = append(cmd.Lines, services.PlaceOrderLine{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	if req.ShippingAddress != nil {
		address := domain.Address{
			Street:     req.ShippingAddress.Street,
			CityID:     req.ShippingAddress.CityID,
			StateID:    req.ShippingAddress.StateID,
			PostalCode: req.ShippingAddress.PostalCode,
		}
		cmd.ShippingAddress = &address
	}

	order, err := h.orders.PlaceOrder(ctx, cmd)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	deleted, err := parseDeletedFilter(r.URL.Query().Get("deleted"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	query := services.OrderQuery{
		ID:            strings.TrimSpace(r.URL.Query().Get("id")),
		UserID:        strings.TrimSpace(r.URL.Query().Get("userId")),
		Status:        domain.OrderStatus(strings.TrimSpace(r.URL.Query().Get("status"))),
		PaymentStatus: domain.PaymentStatus(strings.TrimSpace(r.URL.Query().Get("paymentStatus"))),
		Deleted:       deleted,
	}
	if !identity.IsStaff() {
		query.UserID = identity.UID
	}

	orders, err := h.orders.ListOrders(ctx, query)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	payload := ordersResponse{Orders: make([]orderPayload, 0, len(orders))}
	for _, order := range orders {
		payload.Orders = append(payload.Orders, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, chi.URLParam(r, "orderId"))
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	if order.UserID != identity.UID && !identity.IsStaff() {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "access to this order is restricted", http.StatusForbidden))
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) updateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := requireStaff(ctx, w); !ok {
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cmd, err := parseUpdateOrderRequest(chi.URLParam(r, "orderId"), body)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	order, err := h.orders.UpdateOrder(ctx, cmd)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := chi.URLParam(r, "orderId")
	if !identity.IsStaff() {
		order, err := h.orders.GetOrder(ctx, orderID)
		if err != nil {
			h.writeOrderError(ctx, w, err)
			return
		}
		if order.UserID != identity.UID {
			httpx.WriteError(ctx, w, httpx.NewError("forbidden", "access to this order is restricted", http.StatusForbidden))
			return
		}
	}

	order, err := h.orders.CancelOrder(ctx, services.CancelOrderCommand{OrderID: orderID})
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func parseUpdateOrderRequest(orderID string, body []byte) (services.UpdateOrderCommand, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return services.UpdateOrderCommand{}, errors.New("request body must be a JSON object")
	}
	if len(fields) == 0 {
		return services.UpdateOrderCommand{}, errNoEditableFields
	}

	cmd := services.UpdateOrderCommand{OrderID: orderID}
	for key, raw := range fields {
		if isJSONNull(raw) {
			return services.UpdateOrderCommand{}, fmt.Errorf("field %q cannot be null", key)
		}
		switch key {
		case "status":
			var value string
			if err := json.Unmarshal(raw, &value); err != nil {
				return services.UpdateOrderCommand{}, errors.New(`field "status" must be a string`)
			}
			status := domain.OrderStatus(strings.TrimSpace(value))
			cmd.Status = &status
		case "payment_status":
			var value string
			if err := json.Unmarshal(raw, &value); err != nil {
				return services.UpdateOrderCommand{}, errors.New(`field "payment_status" must be a string`)
			}
			status := domain.PaymentStatus(strings.TrimSpace(value))
			cmd.PaymentStatus = &status
		case "delivery_fee":
			var value int64
			if err := json.Unmarshal(raw, &value); err != nil {
				return services.UpdateOrderCommand{}, errors.New(`field "delivery_fee" must be an integer`)
			}
			cmd.DeliveryFee = &value
		default:
			return services.UpdateOrderCommand{}, fmt.Errorf("field %q is not editable", key)
		}
	}
	return cmd, nil
}

func (h *OrderHandlers) writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", "not enough stock to fulfil the order", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderPriceMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("price_mismatch", "submitted prices do not match the catalog", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderAlreadyPaid):
		httpx.WriteError(ctx, w, httpx.NewError("order_already_paid", "a paid order cannot be cancelled", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "one or more products do not exist", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order was modified concurrently", http.StatusConflict))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}

type placeOrderRequest struct {
	UserID          string                  `json:"user_id"`
	Items           []placeOrderItemRequest `json:"items"`
	PaymentMethod   string                  `json:"payment_method"`
	ShippingAddress *addressPayload         `json:"shipping_address"`
	DeliveryFee     int64                   `json:"delivery_fee"`
	DiscountAmount  int64                   `json:"discount_amount"`
	DiscountReason  string                  `json:"discount_reason"`
	FromCart        bool                    `json:"from_cart"`
}

type placeOrderItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type ordersResponse struct {
	Orders []orderPayload `json:"orders"`
}

type orderPayload struct {
	ID              string             `json:"id"`
	UserID          string             `json:"user_id"`
	Items           []orderLinePayload `json:"items"`
	Status          string             `json:"status"`
	PaymentMethod   string             `json:"payment_method"`
	PaymentStatus   string             `json:"payment_status"`
	ShippingAddress *addressPayload    `json:"shipping_address,omitempty"`
	TrackingNumber  string             `json:"tracking_number,omitempty"`
	TotalAmount     int64              `json:"total_amount"`
	DeliveryFee     int64              `json:"delivery_fee,omitempty"`
	CreatedAt       string             `json:"created_at,omitempty"`
	UpdatedAt       string             `json:"updated_at,omitempty"`
	DeletedAt       string             `json:"deleted_at,omitempty"`
}

type orderLinePayload struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name,omitempty"`
	Quantity  int64  `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Total     int64  `json:"total"`
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:             order.ID,
		UserID:         order.UserID,
		Items:          make([]orderLinePayload, 0, len(order.Lines)),
		Status:         string(order.Status),
		PaymentMethod:  string(order.PaymentMethod),
		PaymentStatus:  string(order.PaymentStatus),
		TrackingNumber: order.TrackingNumber,
		TotalAmount:    order.TotalAmount,
		DeliveryFee:    order.DeliveryFee,
		CreatedAt:      formatTime(order.CreatedAt),
		UpdatedAt:      formatTime(order.UpdatedAt),
	}
	for _, line := range order.Lines {
		payload.Items = append(payload.Items, buildOrderLinePayload(line))
	}
	if order.ShippingAddress != nil {
		address := buildAddressPayload(*order.ShippingAddress)
		payload.ShippingAddress = &address
	}
	if order.DeletedAt != nil {
		payload.DeletedAt = formatTime(*order.DeletedAt)
	}
	return payload
}

func buildOrderLinePayload(line services.OrderLine) orderLinePayload {
	return orderLinePayload{
		ProductID: line.ProductID,
		Name:      line.Name,
		Quantity:  line.Quantity,
		UnitPrice: line.UnitPrice,
		Total:     line.Total,
	}
}
