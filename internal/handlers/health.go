package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"
)

const defaultProbeTimeout = 5 * time.Second

// BuildInfo carries the build metadata reported by the health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// ReadinessProbe reports whether one backing dependency is reachable.
type ReadinessProbe func(ctx context.Context) error

type healthProbe struct {
	name  string
	check ReadinessProbe
}

// HealthHandlers serves the /healthz liveness and /readyz readiness endpoints.
type HealthHandlers struct {
	build   BuildInfo
	probes  []healthProbe
	now     func() time.Time
	timeout time.Duration
}

// HealthOption customises the health handlers.
type HealthOption func(*HealthHandlers)

// WithHealthBuildInfo sets the build metadata included in health payloads.
func WithHealthBuildInfo(info BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthProbe registers a named readiness probe.
func WithHealthProbe(name string, probe ReadinessProbe) HealthOption {
	return func(h *HealthHandlers) {
		if name != "" && probe != nil {
			h.probes = append(h.probes, healthProbe{name: name, check: probe})
		}
	}
}

// WithHealthClock overrides the time source, primarily for testing.
func WithHealthClock(now func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHealthHandlers constructs health handlers with the provided options.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		now:     time.Now,
		timeout: defaultProbeTimeout,
	}
	h.build.StartedAt = h.now()
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Healthz reports process liveness with build metadata.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	payload := map[string]any{
		"status":    "ok",
		"timestamp": now.UTC().Format(time.RFC3339),
	}
	if !h.build.StartedAt.IsZero() {
		payload["uptime"] = now.Sub(h.build.StartedAt).String()
	}
	if h.build.Version != "" {
		payload["version"] = h.build.Version
	}
	if h.build.CommitSHA != "" {
		payload["commitSha"] = h.build.CommitSHA
	}
	if h.build.Environment != "" {
		payload["environment"] = h.build.Environment
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

// Readyz runs every registered probe and reports 503 when any dependency is
// unreachable.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.now()

	type checkResult struct {
		Status  string `json:"status"`
		Latency string `json:"latency,omitempty"`
		Error   string `json:"error,omitempty"`
	}

	checks := make(map[string]checkResult, len(h.probes))
	var details []string
	for _, probe := range h.probes {
		probeCtx, cancel := context.WithTimeout(ctx, h.timeout)
		started := h.now()
		err := probe.check(probeCtx)
		cancel()

		result := checkResult{Status: "ok", Latency: h.now().Sub(started).String()}
		if err != nil {
			result.Status = "failed"
			result.Error = err.Error()
			details = append(details, fmt.Sprintf("%s: %v", probe.name, err))
		}
		checks[probe.name] = result
	}
	sort.Strings(details)

	status := "ok"
	code := http.StatusOK
	if len(details) > 0 {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, code, map[string]any{
		"status":    status,
		"timestamp": now.UTC().Format(time.RFC3339),
		"checks":    checks,
		"details":   details,
	})
}
