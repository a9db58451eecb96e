package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/platform/auth"
	"github.com/maplecart/api/internal/platform/httpx"
	"github.com/maplecart/api/internal/services"
)

const maxEmailBodySize = 256 * 1024

// EmailHandlers exposes the staff-only outbound email queue endpoints.
type EmailHandlers struct {
	authn  *auth.Authenticator
	emails services.EmailService
}

// NewEmailHandlers constructs handlers for the /emails endpoints.
func NewEmailHandlers(authn *auth.Authenticator, emails services.EmailService) *EmailHandlers {
	return &EmailHandlers{
		authn:  authn,
		emails: emails,
	}
}

// Routes wires the /emails endpoints onto the provided router.
func (h *EmailHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.queueEmail)
	r.Get("/", h.listEmails)
	r.Get("/{emailId}", h.getEmail)
	r.Put("/{emailId}/status", h.updateStatus)
}

// DispatchRoutes wires the service-to-service dispatch trigger. It is mounted
// under the internal group, behind OIDC rather than end-user auth.
func (h *EmailHandlers) DispatchRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/emails/dispatch", h.dispatchPending)
}

func (h *EmailHandlers) queueEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.emails == nil {
		httpx.WriteError(ctx, w, httpx.NewError("email_service_unavailable", "email service is unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := requireStaff(ctx, w); !ok {
		return
	}

	body, err := readLimitedBody(r, maxEmailBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req queueEmailRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	email, err := h.emails.QueueEmail(ctx, services.QueueEmailCommand{
		To:      req.To,
		Subject: req.Subject,
		Body:    req.Body,
	})
	if err != nil {
		h.writeEmailError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, emailResponse{Email: buildEmailPayload(email)})
}

func (h *EmailHandlers) listEmails(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.emails == nil {
		httpx.WriteError(ctx, w, httpx.NewError("email_service_unavailable", "email service is unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := requireStaff(ctx, w); !ok {
		return
	}

	query := services.EmailQuery{
		Status: domain.EmailStatus(strings.TrimSpace(r.URL.Query().Get("status"))),
	}
	emails, err := h.emails.ListEmails(ctx, query)
	if err != nil {
		h.writeEmailError(ctx, w, err)
		return
	}

	payload := emailsResponse{Emails: make([]emailPayload, 0, len(emails))}
	for _, email := range emails {
		payload.Emails = append(payload.Emails, buildEmailPayload(email))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *EmailHandlers) getEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.emails == nil {
		httpx.WriteError(ctx, w, httpx.NewError("email_service_unavailable", "email service is unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := requireStaff(ctx, w); !ok {
		return
	}

	email, err := h.emails.GetEmail(ctx, chi.URLParam(r, "emailId"))
	if err != nil {
		h.writeEmailError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, emailResponse{Email: buildEmailPayload(email)})
}

func (h *EmailHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.emails == nil {
		httpx.WriteError(ctx, w, httpx.NewError("email_service_unavailable", "email service is unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := requireStaff(ctx, w); !ok {
		return
	}

	body, err := readLimitedBody(r, maxEmailBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req updateEmailStatusRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	email, err := h.emails.UpdateStatus(ctx, chi.URLParam(r, "emailId"), domain.EmailStatus(strings.TrimSpace(req.Status)))
	if err != nil {
		h.writeEmailError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, emailResponse{Email: buildEmailPayload(email)})
}

func (h *EmailHandlers) dispatchPending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.emails == nil {
		httpx.WriteError(ctx, w, httpx.NewError("email_service_unavailable", "email service is unavailable", http.StatusServiceUnavailable))
		return
	}

	report, err := h.emails.DispatchPending(ctx)
	if err != nil {
		h.writeEmailError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, dispatchReportResponse{
		Dispatched: report.Dispatched,
		Failed:     report.Failed,
	})
}

func (h *EmailHandlers) writeEmailError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrEmailInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrEmailNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("email_not_found", "email not found", http.StatusNotFound))
	case errors.Is(err, services.ErrEmailUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("email_service_unavailable", "email service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}

type queueEmailRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type updateEmailStatusRequest struct {
	Status string `json:"status"`
}

type dispatchReportResponse struct {
	Dispatched int `json:"dispatched"`
	Failed     int `json:"failed"`
}

type emailResponse struct {
	Email emailPayload `json:"email"`
}

type emailsResponse struct {
	Emails []emailPayload `json:"emails"`
}

type emailPayload struct {
	ID        string `json:"id"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func buildEmailPayload(email services.Email) emailPayload {
	return emailPayload{
		ID:        email.ID,
		To:        email.To,
		Subject:   email.Subject,
		Body:      email.Body,
		Status:    string(email.Status),
		CreatedAt: formatTime(email.CreatedAt),
		UpdatedAt: formatTime(email.UpdatedAt),
	}
}
