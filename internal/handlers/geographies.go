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

const maxGeographyBodySize = 16 * 1024

// GeographyHandlers exposes the state and city reference-data endpoints.
// Reads are public; mutations require a staff identity.
type GeographyHandlers struct {
	authn       *auth.Authenticator
	geographies services.GeographyService
}

// NewGeographyHandlers constructs handlers for the /states and /cities endpoints.
func NewGeographyHandlers(authn *auth.Authenticator, geographies services.GeographyService) *GeographyHandlers {
	return &GeographyHandlers{
		authn:       authn,
		geographies: geographies,
	}
}

// Routes registers both the /states and /cities route trees.
func (h *GeographyHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Route("/states", func(r chi.Router) {
		r.Get("/", h.listStates)
		r.Get("/{stateId}", h.getState)
		r.Group(func(r chi.Router) {
			if h.authn != nil {
				r.Use(h.authn.RequireFirebaseAuth())
			}
			r.Post("/", h.createState)
		})
	})
	r.Route("/cities", func(r chi.Router) {
		r.Get("/", h.listCities)
		r.Get("/{cityId}", h.getCity)
		r.Group(func(r chi.Router) {
			if h.authn != nil {
				r.Use(h.authn.RequireFirebaseAuth())
			}
			r.Post("/", h.createCity)
		})
	})
}

func (h *GeographyHandlers) listStates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.geographies == nil {
		httpx.WriteError(ctx, w, httpx.NewError("geography_service_unavailable", "geography service is unavailable", http.StatusServiceUnavailable))
		return
	}

	states, err := h.geographies.ListStates(ctx, services.StateQuery{
		Name: strings.TrimSpace(r.URL.Query().Get("name")),
		Code: strings.TrimSpace(r.URL.Query().Get("code")),
	})
	if err != nil {
		h.writeGeographyError(ctx, w, err)
		return
	}

	payload := statesResponse{States: make([]statePayload, 0, len(states))}
	for _, state := range states {
		payload.States = append(payload.States, buildStatePayload(state))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *GeographyHandlers) getState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.geographies == nil {
		httpx.WriteError(ctx, w, httpx.NewError("geography_service_unavailable", "geography service is unavailable", http.StatusServiceUnavailable))
		return
	}

	state, err := h.geographies.GetState(ctx, chi.URLParam(r, "stateId"))
	if err != nil {
		h.writeGeographyError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, stateResponse{State: buildStatePayload(state)})
}

func (h *GeographyHandlers) createState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.geographies == nil {
		httpx.WriteError(ctx, w, httpx.NewError("geography_service_unavailable", "geography service is unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := requireStaff(ctx, w); !ok {
		return
	}

	body, err := readLimitedBody(r, maxGeographyBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req createStateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	state, err := h.geographies.CreateState(ctx, services.CreateStateCommand{
		Name:    req.Name,
		Code:    req.Code,
		Capital: req.Capital,
	})
	if err != nil {
		h.writeGeographyError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, stateResponse{State: buildStatePayload(state)})
}

func (h *GeographyHandlers) listCities(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.geographies == nil {
		httpx.WriteError(ctx, w, httpx.NewError("geography_service_unavailable", "geography service is unavailable", http.StatusServiceUnavailable))
		return
	}

	cities, err := h.geographies.ListCities(ctx, services.CityQuery{
		Name:    strings.TrimSpace(r.URL.Query().Get("name")),
		StateID: strings.TrimSpace(r.URL.Query().Get("stateId")),
	})
	if err != nil {
		h.writeGeographyError(ctx, w, err)
		return
	}

	payload := citiesResponse{Cities: make([]cityPayload, 0, len(cities))}
	for _, city := range cities {
		payload.Cities = append(payload.Cities, buildCityPayload(city))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *GeographyHandlers) getCity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.geographies == nil {
		httpx.WriteError(ctx, w, httpx.NewError("geography_service_unavailable", "geography service is unavailable", http.StatusServiceUnavailable))
		return
	}

	city, err := h.geographies.GetCity(ctx, chi.URLParam(r, "cityId"))
	if err != nil {
		h.writeGeographyError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cityResponse{City: buildCityPayload(city)})
}

func (h *GeographyHandlers) createCity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.geographies == nil {
		httpx.WriteError(ctx, w, httpx.NewError("geography_service_unavailable", "geography service is unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := requireStaff(ctx, w); !ok {
		return
	}

	body, err := readLimitedBody(r, maxGeographyBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req createCityRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	city, err := h.geographies.CreateCity(ctx, services.CreateCityCommand{
		Name:       req.Name,
		Code:       req.Code,
		StateID:    req.StateID,
		PostalCode: req.PostalCode,
	})
	if err != nil {
		h.writeGeographyError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, cityResponse{City: buildCityPayload(city)})
}

func (h *GeographyHandlers) writeGeographyError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrGeographyInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrStateNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("state_not_found", "state not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCityNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("city_not_found", "city not found", http.StatusNotFound))
	case errors.Is(err, services.ErrGeographyUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("geography_service_unavailable", "geography service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}

type createStateRequest struct {
	Name    string `json:"name"`
	Code    string `json:"code"`
	Capital string `json:"capital"`
}

type createCityRequest struct {
	Name       string `json:"name"`
	Code       string `json:"code"`
	StateID    string `json:"state_id"`
	PostalCode string `json:"postal_code"`
}

type stateResponse struct {
	State statePayload `json:"state"`
}

type statesResponse struct {
	States []statePayload `json:"states"`
}

type statePayload struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Code      string `json:"code"`
	Capital   string `json:"capital,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type cityResponse struct {
	City cityPayload `json:"city"`
}

type citiesResponse struct {
	Cities []cityPayload `json:"cities"`
}

type cityPayload struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Code       string `json:"code,omitempty"`
	StateID    string `json:"state_id"`
	PostalCode string `json:"postal_code,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

func buildStatePayload(state services.State) statePayload {
	return statePayload{
		ID:        state.ID,
		Name:      state.Name,
		Code:      state.Code,
		Capital:   state.Capital,
		CreatedAt: formatTime(state.CreatedAt),
		UpdatedAt: formatTime(state.UpdatedAt),
	}
}

func buildCityPayload(city services.City) cityPayload {
	return cityPayload{
		ID:         city.ID,
		Name:       city.Name,
		Code:       city.Code,
		StateID:    city.StateID,
		PostalCode: city.PostalCode,
		CreatedAt:  formatTime(city.CreatedAt),
		UpdatedAt:  formatTime(city.UpdatedAt),
	}
}
