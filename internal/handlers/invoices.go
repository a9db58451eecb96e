package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/maplecart/api/internal/platform/auth"
	"github.com/maplecart/api/internal/platform/httpx"
	"github.com/maplecart/api/internal/services"
)

const maxInvoiceBodySize = 32 * 1024

// InvoiceHandlers exposes authenticated billing endpoints.
type InvoiceHandlers struct {
	authn    *auth.Authenticator
	invoices services.InvoiceService
}

// NewInvoiceHandlers constructs handlers for the /invoices endpoints.
func NewInvoiceHandlers(authn *auth.Authenticator, invoices services.InvoiceService) *InvoiceHandlers {
	return &InvoiceHandlers{
		authn:    authn,
		invoices: invoices,
	}
}

// Routes wires the /invoices endpoints onto the provided router.
func (h *InvoiceHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.createInvoice)
	r.Get("/", h.listInvoices)
	r.Post("/pay", h.payInvoice)
	r.Get("/{invoiceId}", h.getInvoice)
	r.Delete("/{invoiceId}", h.deleteInvoice)
	r.Post("/{invoiceId}/proof-upload-url", h.proofUploadURL)
}

func (h *InvoiceHandlers) createInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.invoices == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invoice_service_unavailable", "invoice service is unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := requireStaff(ctx, w); !ok {
		return
	}

	body, err := readLimitedBody(r, maxInvoiceBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req createInvoiceRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	invoice, err := h.invoices.CreateInvoice(ctx, services.CreateInvoiceCommand{
		OrderID:        req.OrderID,
		DiscountAmount: req.DiscountAmount,
		DiscountReason: req.DiscountReason,
	})
	if err != nil {
		h.writeInvoiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, invoiceResponse{Invoice: buildInvoicePayload(invoice)})
}

func (h *InvoiceHandlers) listInvoices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.invoices == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invoice_service_unavailable", "invoice service is unavailable", http.StatusServiceUnavailable))
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

	query := services.InvoiceQuery{
		ID:      strings.TrimSpace(r.URL.Query().Get("id")),
		OrderID: strings.TrimSpace(r.URL.Query().Get("orderId")),
		UserID:  strings.TrimSpace(r.URL.Query().Get("userId")),
		Deleted: deleted,
	}
	if !identity.IsStaff() {
		query.UserID = identity.UID
	}

	invoices, err := h.invoices.ListInvoices(ctx, query)
	if err != nil {
		h.writeInvoiceError(ctx, w, err)
		return
	}

	payload := invoicesResponse{Invoices: make([]invoicePayload, 0, len(invoices))}
	for _, invoice := range invoices {
		payload.Invoices = append(payload.Invoices, buildInvoicePayload(invoice))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *InvoiceHandlers) getInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.invoices == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invoice_service_unavailable", "invoice service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	invoice, err := h.invoices.GetInvoice(ctx, chi.URLParam(r, "invoiceId"))
	if err != nil {
		h.writeInvoiceError(ctx, w, err)
		return
	}
	if invoice.UserID != identity.UID && !identity.IsStaff() {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "access to this invoice is restricted", http.StatusForbidden))
		return
	}
	writeJSONResponse(w, http.StatusOK, invoiceResponse{Invoice: buildInvoicePayload(invoice)})
}

func (h *InvoiceHandlers) payInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.invoices == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invoice_service_unavailable", "invoice service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxInvoiceBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req payInvoiceRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	invoiceID := strings.TrimSpace(req.InvoiceID)
	if invoiceID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invoice_id is required", http.StatusBadRequest))
		return
	}

	if !identity.IsStaff() {
		invoice, err := h.invoices.GetInvoice(ctx, invoiceID)
		if err != nil {
			h.writeInvoiceError(ctx, w, err)
			return
		}
		if invoice.UserID != identity.UID {
			httpx.WriteError(ctx, w, httpx.NewError("forbidden", "access to this invoice is restricted", http.StatusForbidden))
			return
		}
	}

	invoice, err := h.invoices.PayInvoice(ctx, services.PayInvoiceCommand{
		InvoiceID: invoiceID,
		Reference: req.Reference,
	})
	if err != nil {
		h.writeInvoiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, invoiceResponse{Invoice: buildInvoicePayload(invoice)})
}

func (h *InvoiceHandlers) deleteInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.invoices == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invoice_service_unavailable", "invoice service is unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := requireStaff(ctx, w); !ok {
		return
	}

	if err := h.invoices.DeleteInvoice(ctx, chi.URLParam(r, "invoiceId")); err != nil {
		h.writeInvoiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *InvoiceHandlers) proofUploadURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.invoices == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invoice_service_unavailable", "invoice service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	invoiceID := chi.URLParam(r, "invoiceId")
	if !identity.IsStaff() {
		invoice, err := h.invoices.GetInvoice(ctx, invoiceID)
		if err != nil {
			h.writeInvoiceError(ctx, w, err)
			return
		}
		if invoice.UserID != identity.UID {
			httpx.WriteError(ctx, w, httpx.NewError("forbidden", "access to this invoice is restricted", http.StatusForbidden))
			return
		}
	}

	body, err := readLimitedBody(r, maxInvoiceBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req proofUploadRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	grant, err := h.invoices.ProofUploadURL(ctx, services.ProofUploadCommand{
		InvoiceID:   invoiceID,
		Filename:    req.Filename,
		ContentType: req.ContentType,
	})
	if err != nil {
		h.writeInvoiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, proofUploadResponse{
		URL:       grant.URL,
		Method:    grant.Method,
		Object:    grant.Object,
		Headers:   grant.Headers,
		ExpiresAt: formatTime(grant.ExpiresAt),
	})
}

func (h *InvoiceHandlers) writeInvoiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrInvoiceInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrInvoiceAlreadyPaid):
		httpx.WriteError(ctx, w, httpx.NewError("invoice_already_paid", "a paid invoice cannot be changed", http.StatusBadRequest))
	case errors.Is(err, services.ErrInvoicePaymentRejected):
		httpx.WriteError(ctx, w, httpx.NewError("payment_rejected", "payment reference could not be verified", http.StatusBadRequest))
	case errors.Is(err, services.ErrInvoiceNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("invoice_not_found", "invoice not found", http.StatusNotFound))
	case errors.Is(err, services.ErrInvoiceExists):
		httpx.WriteError(ctx, w, httpx.NewError("invoice_exists", "an active invoice already exists for this order", http.StatusConflict))
	case errors.Is(err, services.ErrInvoiceUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("invoice_service_unavailable", "invoice service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}

type createInvoiceRequest struct {
	OrderID        string `json:"order_id"`
	DiscountAmount int64  `json:"discount_amount"`
	DiscountReason string `json:"discount_reason"`
}

type payInvoiceRequest struct {
	InvoiceID string `json:"invoice_id"`
	Reference string `json:"reference"`
}

type proofUploadRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

type proofUploadResponse struct {
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Object    string            `json:"object"`
	Headers   map[string]string `json:"headers,omitempty"`
	ExpiresAt string            `json:"expires_at"`
}

type invoiceResponse struct {
	Invoice invoicePayload `json:"invoice"`
}

type invoicesResponse struct {
	Invoices []invoicePayload `json:"invoices"`
}

type invoicePayload struct {
	ID             string             `json:"id"`
	UserID         string             `json:"user_id"`
	OrderID        string             `json:"order_id"`
	InvoiceNumber  string             `json:"invoice_number"`
	Items          []orderLinePayload `json:"items"`
	TotalAmount    int64              `json:"total_amount"`
	DiscountAmount int64              `json:"discount_amount,omitempty"`
	DiscountReason string             `json:"discount_reason,omitempty"`
	Status         string             `json:"status"`
	ProofOfPayment string             `json:"proof_of_payment,omitempty"`
	CreatedAt      string             `json:"created_at,omitempty"`
	UpdatedAt      string             `json:"updated_at,omitempty"`
	DeletedAt      string             `json:"deleted_at,omitempty"`
}

func buildInvoicePayload(invoice services.Invoice) invoicePayload {
	payload := invoicePayload{
		ID:             invoice.ID,
		UserID:         invoice.UserID,
		OrderID:        invoice.OrderID,
		InvoiceNumber:  invoice.InvoiceNumber,
		Items:          make([]orderLinePayload, 0, len(invoice.Lines)),
		TotalAmount:    invoice.TotalAmount,
		DiscountAmount: invoice.DiscountAmount,
		DiscountReason: invoice.DiscountReason,
		Status:         string(invoice.Status),
		ProofOfPayment: invoice.ProofOfPayment,
		CreatedAt:      formatTime(invoice.CreatedAt),
		UpdatedAt:      formatTime(invoice.UpdatedAt),
	}
	for _, line := range invoice.Lines {
		payload.Items = append(payload.Items, buildOrderLinePayload(line))
	}
	if invoice.DeletedAt != nil {
		payload.DeletedAt = formatTime(*invoice.DeletedAt)
	}
	return payload
}
