package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHealthHandlersHealthzIncludesBuildInfo(t *testing.T) {
	started := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	now := started.Add(90 * time.Second)

	handler := NewHealthHandlers(
		WithHealthClock(func() time.Time { return now }),
		WithHealthBuildInfo(BuildInfo{
			Version:     "1.4.0",
			CommitSHA:   "abc1234",
			Environment: "production",
			StartedAt:   started,
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	handler.Healthz(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload["status"] != "ok" {
		t.Fatalf("expected ok status, got %v", payload["status"])
	}
	if payload["version"] != "1.4.0" || payload["commitSha"] != "abc1234" {
		t.Fatalf("unexpected build info %v", payload)
	}
	if payload["uptime"] != "1m30s" {
		t.Fatalf("unexpected uptime %v", payload["uptime"])
	}
}

func TestHealthHandlersReadyzAllProbesPass(t *testing.T) {
	handler := NewHealthHandlers(
		WithHealthProbe("firestore", func(ctx context.Context) error { return nil }),
		WithHealthProbe("pubsub", func(ctx context.Context) error { return nil }),
	)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	handler.Readyz(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var payload struct {
		Status string                    `json:"status"`
		Checks map[string]map[string]any `json:"checks"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.Status != "ok" {
		t.Fatalf("expected ok status, got %q", payload.Status)
	}
	if len(payload.Checks) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(payload.Checks))
	}
}

func TestHealthHandlersReadyzFailingProbe(t *testing.T) {
	handler := NewHealthHandlers(
		WithHealthProbe("firestore", func(ctx context.Context) error { return nil }),
		WithHealthProbe("pubsub", func(ctx context.Context) error { return errors.New("broker unreachable") }),
	)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	handler.Readyz(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}

	var payload struct {
		Status  string   `json:"status"`
		Details []string `json:"details"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.Status != "degraded" {
		t.Fatalf("expected degraded status, got %q", payload.Status)
	}
	if len(payload.Details) != 1 || payload.Details[0] != "pubsub: broker unreachable" {
		t.Fatalf("unexpected details %v", payload.Details)
	}
}
