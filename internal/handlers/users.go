package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/platform/auth"
	"github.com/maplecart/api/internal/platform/httpx"
	"github.com/maplecart/api/internal/repositories"
	"github.com/maplecart/api/internal/services"
)

const maxUserBodySize = 64 * 1024

var (
	errBodyTooLarge     = errors.New("request body too large")
	errEmptyBody        = errors.New("request body is empty")
	errNoEditableFields = errors.New("no editable fields provided")
)

// UserHandlers exposes account registration and profile endpoints.
type UserHandlers struct {
	authn *auth.Authenticator
	users services.UserService
}

// NewUserHandlers constructs handlers for the /users endpoints.
func NewUserHandlers(authn *auth.Authenticator, users services.UserService) *UserHandlers {
	return &UserHandlers{
		authn: authn,
		users: users,
	}
}

// Routes wires the /users endpoints onto the provided router. Registration is
// public; everything else requires authentication.
func (h *UserHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/register", h.register)
	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireFirebaseAuth())
		}
		g.Get("/", h.listUsers)
		g.Get("/{userId}", h.getUser)
		g.Put("/{userId}", h.updateUser)
		g.Delete("/{userId}", h.deleteUser)
	})
}

func (h *UserHandlers) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxUserBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req registerUserRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	userType := domain.UserType(strings.TrimSpace(req.Type))
	if userType != "" && userType != domain.UserTypeCustomer {
		identity, _ := auth.IdentityFromContext(ctx)
		if identity == nil || !identity.IsStaff() {
			httpx.WriteError(ctx, w, httpx.NewError("forbidden", "only staff may assign account types", http.StatusForbidden))
			return
		}
	}

	user, err := h.users.Register(ctx, services.RegisterUserCommand{
		Email:        req.Email,
		PasswordHash: req.PasswordHash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Phone:        req.Phone,
		Type:         userType,
		Addresses:    addressesFromPayload(req.Addresses),
	})
	if err != nil {
		h.writeUserError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, userResponse{User: buildUserPayload(user)})
}

func (h *UserHandlers) listUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service is unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := requireStaff(ctx, w); !ok {
		return
	}

	deleted, err := parseDeletedFilter(r.URL.Query().Get("deleted"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	users, err := h.users.ListUsers(ctx, services.UserQuery{
		ID:      strings.TrimSpace(r.URL.Query().Get("id")),
		Email:   strings.TrimSpace(r.URL.Query().Get("email")),
		Name:    strings.TrimSpace(r.URL.Query().Get("name")),
		Phone:   strings.TrimSpace(r.URL.Query().Get("phone")),
		Deleted: deleted,
	})
	if err != nil {
		h.writeUserError(ctx, w, err)
		return
	}

	payload := usersResponse{Users: make([]userPayload, 0, len(users))}
	for _, user := range users {
		payload.Users = append(payload.Users, buildUserPayload(user))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *UserHandlers) getUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service is unavailable", http.StatusServiceUnavailable))
		return
	}
	userID := chi.URLParam(r, "userId")
	if _, ok := requireOwnerOrStaff(ctx, w, userID); !ok {
		return
	}

	user, err := h.users.GetUser(ctx, userID)
	if err != nil {
		h.writeUserError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, userResponse{User: buildUserPayload(user)})
}

func (h *UserHandlers) updateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service is unavailable", http.StatusServiceUnavailable))
		return
	}
	userID := chi.URLParam(r, "userId")
	if _, ok := requireOwnerOrStaff(ctx, w, userID); !ok {
		return
	}

	body, err := readLimitedBody(r, maxUserBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cmd, err := parseUpdateUserRequest(userID, body)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	user, err := h.users.UpdateUser(ctx, cmd)
	if err != nil {
		h.writeUserError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, userResponse{User: buildUserPayload(user)})
}

func (h *UserHandlers) deleteUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service is unavailable", http.StatusServiceUnavailable))
		return
	}
	userID := chi.URLParam(r, "userId")
	if _, ok := requireOwnerOrStaff(ctx, w, userID); !ok {
		return
	}

	if err := h.users.DeleteUser(ctx, userID); err != nil {
		h.writeUserError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseUpdateUserRequest(userID string, body []byte) (services.UpdateUserCommand, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return services.UpdateUserCommand{}, errors.New("request body must be a JSON object")
	}
	if len(fields) == 0 {
		return services.UpdateUserCommand{}, errNoEditableFields
	}

	cmd := services.UpdateUserCommand{UserID: userID}
	edited := false
	for key, raw := range fields {
		switch key {
		case "email", "password_hash", "first_name", "last_name", "phone":
			if isJSONNull(raw) {
				return services.UpdateUserCommand{}, fmt.Errorf("field %q cannot be null", key)
			}
			var value string
			if err := json.Unmarshal(raw, &value); err != nil {
				return services.UpdateUserCommand{}, fmt.Errorf("field %q must be a string", key)
			}
			switch key {
			case "email":
				cmd.Email = &value
			case "password_hash":
				cmd.PasswordHash = &value
			case "first_name":
				cmd.FirstName = &value
			case "last_name":
				cmd.LastName = &value
			case "phone":
				cmd.Phone = &value
			}
			edited = true
		case "addresses":
			if isJSONNull(raw) {
				return services.UpdateUserCommand{}, errors.New(`field "addresses" cannot be null`)
			}
			var addresses []addressPayload
			if err := json.Unmarshal(raw, &addresses); err != nil {
				return services.UpdateUserCommand{}, errors.New(`field "addresses" must be an array of addresses`)
			}
			cmd.Addresses = addressesFromPayload(addresses)
			edited = true
		default:
			return services.UpdateUserCommand{}, fmt.Errorf("field %q is not editable", key)
		}
	}
	if !edited {
		return services.UpdateUserCommand{}, errNoEditableFields
	}
	return cmd, nil
}

func (h *UserHandlers) writeUserError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrUserInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrUserNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("user_not_found", "user not found", http.StatusNotFound))
	case errors.Is(err, services.ErrUserEmailTaken):
		httpx.WriteError(ctx, w, httpx.NewError("email_taken", "email address is already registered", http.StatusConflict))
	case errors.Is(err, services.ErrUserUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}

type registerUserRequest struct {
	Email        string           `json:"email"`
	PasswordHash string           `json:"password_hash"`
	FirstName    string           `json:"first_name"`
	LastName     string           `json:"last_name"`
	Phone        string           `json:"phone"`
	Type         string           `json:"type"`
	Addresses    []addressPayload `json:"addresses"`
}

type userResponse struct {
	User userPayload `json:"user"`
}

type usersResponse struct {
	Users []userPayload `json:"users"`
}

type userPayload struct {
	ID        string           `json:"id"`
	Email     string           `json:"email"`
	FirstName string           `json:"first_name"`
	LastName  string           `json:"last_name,omitempty"`
	Phone     string           `json:"phone,omitempty"`
	Type      string           `json:"type"`
	Addresses []addressPayload `json:"addresses,omitempty"`
	CreatedAt string           `json:"created_at,omitempty"`
	UpdatedAt string           `json:"updated_at,omitempty"`
	DeletedAt string           `json:"deleted_at,omitempty"`
}

type addressPayload struct {
	Street     string `json:"street"`
	CityID     string `json:"city_id"`
	StateID    string `json:"state_id"`
	PostalCode string `json:"postal_code"`
}

func buildUserPayload(user services.User) userPayload {
	payload := userPayload{
		ID:        user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Phone:     user.Phone,
		Type:      string(user.Type),
		CreatedAt: formatTime(user.CreatedAt),
		UpdatedAt: formatTime(user.UpdatedAt),
	}
	if user.DeletedAt != nil {
		payload.DeletedAt = formatTime(*user.DeletedAt)
	}
	for _, address := range user.Addresses {
		payload.Addresses = append(payload.Addresses, buildAddressPayload(address))
	}
	return payload
}

func buildAddressPayload(address domain.Address) addressPayload {
	return addressPayload{
		Street:     address.Street,
		CityID:     address.CityID,
		StateID:    address.StateID,
		PostalCode: address.PostalCode,
	}
}

func addressesFromPayload(payloads []addressPayload) []domain.Address {
	if len(payloads) == 0 {
		return nil
	}
	addresses := make([]domain.Address, 0, len(payloads))
	for _, p := range payloads {
		addresses = append(addresses, domain.Address{
			Street:     p.Street,
			CityID:     p.CityID,
			StateID:    p.StateID,
			PostalCode: p.PostalCode,
		})
	}
	return addresses
}

// Shared handler helpers ------------------------------------------------------

func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func requireStaff(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return nil, false
	}
	if !identity.IsStaff() {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "staff role required", http.StatusForbidden))
		return nil, false
	}
	return identity, true
}

func requireOwnerOrStaff(ctx context.Context, w http.ResponseWriter, ownerID string) (*auth.Identity, bool) {
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return nil, false
	}
	if identity.UID != strings.TrimSpace(ownerID) && !identity.IsStaff() {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "access to this resource is restricted", http.StatusForbidden))
		return nil, false
	}
	return identity, true
}

func parseDeletedFilter(value string) (repositories.DeletedFilter, error) {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "":
		return repositories.DeletedExclude, nil
	case "all":
		return repositories.DeletedInclude, nil
	case "only":
		return repositories.DeletedOnly, nil
	default:
		return repositories.DeletedExclude, fmt.Errorf("deleted must be %q or %q", "all", "only")
	}
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxUserBodySize
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func isJSONNull(value json.RawMessage) bool {
	return strings.EqualFold(strings.TrimSpace(string(value)), "null")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
