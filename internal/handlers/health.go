package handlers

import (
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	domain "github.com/Rushan-dev/jeyani-gift-shop/internal/domain"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/requestctx"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/services"
)

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	system    services.SystemService
	build     services.BuildInfo
	clock     func() time.Time
	startedAt time.Time
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// WithHealthSystemService sets the service that probes dependencies for /readyz.
func WithHealthSystemService(system services.SystemService) HealthOption {
	return func(h *HealthHandlers) {
		h.system = system
	}
}

// WithHealthBuildInfo sets the version metadata reported by the probes.
func WithHealthBuildInfo(build services.BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = build
	}
}

// WithHealthClock overrides the clock; the process start time is taken from it at construction.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithHealthStartedAt records when the process started, for uptime reporting.
func WithHealthStartedAt(t time.Time) HealthOption {
	return func(h *HealthHandlers) {
		h.startedAt = t
	}
}

// NewHealthHandlers constructs the probe handlers.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.startedAt.IsZero() {
		h.startedAt = h.clock()
	}
	return h
}

type healthzResponse struct {
	Status      domain.HealthStatus `json:"status"`
	Version     string              `json:"version,omitempty"`
	Environment string              `json:"environment,omitempty"`
	Uptime      string              `json:"uptime"`
	Timestamp   string              `json:"timestamp"`
}

type readyzResponse struct {
	Status      domain.HealthStatus  `json:"status"`
	Version     string               `json:"version,omitempty"`
	Environment string               `json:"environment,omitempty"`
	GeneratedAt string               `json:"generatedAt"`
	Checks      []healthCheckPayload `json:"checks"`
}

type healthCheckPayload struct {
	Name      string              `json:"name"`
	Status    domain.HealthStatus `json:"status"`
	Detail    string              `json:"detail,omitempty"`
	Error     string              `json:"error,omitempty"`
	LatencyMS int64               `json:"latencyMs"`
}

// Healthz reports process liveness without touching dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	writeJSONResponse(w, http.StatusOK, healthzResponse{
		Status:      domain.HealthStatusOK,
		Version:     h.build.Version,
		Environment: h.build.Environment,
		Uptime:      now.Sub(h.startedAt).Truncate(time.Second).String(),
		Timestamp:   formatTime(now),
	})
}

// Readyz probes dependencies. Degraded dependencies still report ready; errors do not.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.system == nil {
		writeJSONResponse(w, http.StatusOK, readyzResponse{
			Status:      domain.HealthStatusOK,
			Version:     h.build.Version,
			Environment: h.build.Environment,
			GeneratedAt: formatTime(h.clock()),
			Checks:      []healthCheckPayload{},
		})
		return
	}

	report, err := h.system.HealthReport(ctx)
	if err != nil {
		requestctx.Logger(ctx).Warn("readiness probe failed", zap.Error(err))
		writeJSONResponse(w, http.StatusServiceUnavailable, readyzResponse{
			Status:      domain.HealthStatusError,
			Version:     h.build.Version,
			Environment: h.build.Environment,
			GeneratedAt: formatTime(h.clock()),
			Checks:      []healthCheckPayload{},
		})
		return
	}

	resp := readyzResponse{
		Status:      report.Status,
		Version:     report.Version,
		Environment: report.Environment,
		GeneratedAt: formatTime(report.GeneratedAt),
		Checks:      make([]healthCheckPayload, 0, len(report.Checks)),
	}
	for name, check := range report.Checks {
		resp.Checks = append(resp.Checks, healthCheckPayload{
			Name:      name,
			Status:    check.Status,
			Detail:    check.Detail,
			Error:     check.Error,
			LatencyMS: check.Latency.Milliseconds(),
		})
	}
	sort.Slice(resp.Checks, func(i, j int) bool { return resp.Checks[i].Name < resp.Checks[j].Name })

	status := http.StatusOK
	if report.Status == domain.HealthStatusError {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, resp)
}
