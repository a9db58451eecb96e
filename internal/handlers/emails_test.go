package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/platform/auth"
	"github.com/maplecart/api/internal/services"
)

func TestEmailHandlersQueueEmailRequiresStaff(t *testing.T) {
	handler := NewEmailHandlers(nil, &stubEmailService{})
	router := chi.NewRouter()
	router.Route("/emails", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/emails", strings.NewReader(`{"to":"a@b.c","subject":"s","body":"b"}`))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}

func TestEmailHandlersQueueEmailSuccess(t *testing.T) {
	var captured services.QueueEmailCommand
	service := &stubEmailService{
		queueFunc: func(ctx context.Context, cmd services.QueueEmailCommand) (services.Email, error) {
			captured = cmd
			return services.Email{ID: "eml_1", To: cmd.To, Subject: cmd.Subject, Status: domain.EmailStatusPending}, nil
		},
	}

	handler := NewEmailHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/emails", handler.Routes)

	body := `{"to":"jess@example.com","subject":"Hello","body":"Hi there"}`
	req := httptest.NewRequest(http.MethodPost, "/emails", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "staff-1", Roles: []string{"staff"}}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}
	if captured.To != "jess@example.com" || captured.Subject != "Hello" {
		t.Fatalf("unexpected command captured %#v", captured)
	}
}

func TestEmailHandlersListEmailsByStatus(t *testing.T) {
	var captured services.EmailQuery
	service := &stubEmailService{
		listFunc: func(ctx context.Context, query services.EmailQuery) ([]services.Email, error) {
			captured = query
			return []services.Email{{ID: "eml_1", Status: domain.EmailStatusPending}}, nil
		},
	}

	handler := NewEmailHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/emails", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/emails?status=pending", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "staff-1", Roles: []string{"staff"}}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.Status != domain.EmailStatusPending {
		t.Fatalf("unexpected status filter %q", captured.Status)
	}

	var resp emailsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Emails) != 1 || resp.Emails[0].ID != "eml_1" {
		t.Fatalf("unexpected emails %#v", resp.Emails)
	}
}

func TestEmailHandlersUpdateStatusSuccess(t *testing.T) {
	service := &stubEmailService{
		updateStatusFunc: func(ctx context.Context, emailID string, status services.EmailStatus) (services.Email, error) {
			if emailID != "eml_1" || status != domain.EmailStatusSent {
				t.Fatalf("unexpected update %q %q", emailID, status)
			}
			return services.Email{ID: emailID, Status: status}, nil
		},
	}

	handler := NewEmailHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/emails", handler.Routes)

	req := httptest.NewRequest(http.MethodPut, "/emails/eml_1/status", strings.NewReader(`{"status":"sent"}`))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "staff-1", Roles: []string{"staff"}}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

func TestEmailHandlersUpdateStatusInvalid(t *testing.T) {
	service := &stubEmailService{
		updateStatusFunc: func(ctx context.Context, emailID string, status services.EmailStatus) (services.Email, error) {
			return services.Email{}, services.ErrEmailInvalidInput
		},
	}

	handler := NewEmailHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/emails", handler.Routes)

	req := httptest.NewRequest(http.MethodPut, "/emails/eml_1/status", strings.NewReader(`{"status":"bounced"}`))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "staff-1", Roles: []string{"staff"}}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestEmailHandlersDispatchPending(t *testing.T) {
	service := &stubEmailService{
		dispatchFunc: func(ctx context.Context) (services.DispatchReport, error) {
			return services.DispatchReport{Dispatched: 4, Failed: 1}, nil
		},
	}

	handler := NewEmailHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/internal", handler.DispatchRoutes)

	req := httptest.NewRequest(http.MethodPost, "/internal/emails/dispatch", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp dispatchReportResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Dispatched != 4 || resp.Failed != 1 {
		t.Fatalf("unexpected report %#v", resp)
	}
}

type stubEmailService struct {
	queueFunc        func(ctx context.Context, cmd services.QueueEmailCommand) (services.Email, error)
	getFunc          func(ctx context.Context, emailID string) (services.Email, error)
	listFunc         func(ctx context.Context, query services.EmailQuery) ([]services.Email, error)
	updateStatusFunc func(ctx context.Context, emailID string, status services.EmailStatus) (services.Email, error)
	dispatchFunc     func(ctx context.Context) (services.DispatchReport, error)
}

func (s *stubEmailService) QueueEmail(ctx context.Context, cmd services.QueueEmailCommand) (services.Email, error) {
	if s.queueFunc != nil {
		return s.queueFunc(ctx, cmd)
	}
	return services.Email{}, errors.New("not implemented")
}

func (s *stubEmailService) GetEmail(ctx context.Context, emailID string) (services.Email, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, emailID)
	}
	return services.Email{}, errors.New("not implemented")
}

func (s *stubEmailService) ListEmails(ctx context.Context, query services.EmailQuery) ([]services.Email, error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, query)
	}
	return nil, errors.New("not implemented")
}

func (s *stubEmailService) UpdateStatus(ctx context.Context, emailID string, status services.EmailStatus) (services.Email, error) {
	if s.updateStatusFunc != nil {
		return s.updateStatusFunc(ctx, emailID, status)
	}
	return services.Email{}, errors.New("not implemented")
}

func (s *stubEmailService) DispatchPending(ctx context.Context) (services.DispatchReport, error) {
	if s.dispatchFunc != nil {
		return s.dispatchFunc(ctx)
	}
	return services.DispatchReport{}, errors.New("not implemented")
}
