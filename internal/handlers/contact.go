package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/maplecart/api/internal/platform/httpx"
	"github.com/maplecart/api/internal/services"
)

const maxContactBodySize = 32 * 1024

// ContactHandlers exposes the unauthenticated portfolio contact endpoint.
type ContactHandlers struct {
	contacts services.ContactService
}

// NewContactHandlers constructs handlers for the contact-form endpoint.
func NewContactHandlers(contacts services.ContactService) *ContactHandlers {
	return &ContactHandlers{contacts: contacts}
}

// Routes wires the contact endpoint onto the provided router.
func (h *ContactHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.submit)
}

func (h *ContactHandlers) submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.contacts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("contact_service_unavailable", "contact service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxContactBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req contactRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	message, err := h.contacts.Submit(ctx, services.ContactCommand{
		Name:    req.Name,
		Email:   req.Email,
		Message: req.Message,
	})
	if err != nil {
		h.writeContactError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, contactResponse{
		ID:        message.ID,
		CreatedAt: formatTime(message.CreatedAt),
	})
}

func (h *ContactHandlers) writeContactError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrContactInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrContactUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("contact_service_unavailable", "contact service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}

type contactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

type contactResponse struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
}
