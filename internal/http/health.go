package http

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/location-forecast-service/internal/lifecycle"
	"github.com/kjstillabower/location-forecast-service/internal/observability"
	"github.com/kjstillabower/location-forecast-service/internal/traffic"
)

// storagePingTimeout bounds the storage check so /health answers even when the database hangs.
const storagePingTimeout = 2 * time.Second

// HealthConfig holds lifecycle thresholds for the health handler.
type HealthConfig struct {
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	RateLimitRPS         int // 0 when rate limiter disabled
	DegradedWindow       time.Duration
	DegradedErrorPct     int
	// StoragePing, when set, reports repository reachability.
	StoragePing func(ctx context.Context) error
	// UpstreamOpen, when set, reports whether the forecast circuit breaker is open.
	UpstreamOpen func() bool
	// Ready overrides lifecycle.IsReady; tests use it to avoid the process-wide latch.
	Ready func() bool
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
	checks     map[string]string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	resp := map[string]interface{}{
		"status":    result.status,
		"service":   observability.ServiceName,
		"version":   "dev",
		"checks":    result.checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if result.reason != "" {
		resp["reason"] = result.reason
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > starting > storage unreachable > overloaded > degraded > healthy.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	checks := map[string]string{"storage": "healthy", "forecastApi": "healthy"}
	res := func(status string, code int, reason string) healthResult {
		return healthResult{status: status, statusCode: code, reason: reason, checks: checks}
	}

	if lifecycle.IsShuttingDown() {
		return res("shutting-down", http.StatusServiceUnavailable, "signal")
	}
	ready := lifecycle.IsReady
	if h.healthConfig != nil && h.healthConfig.Ready != nil {
		ready = h.healthConfig.Ready
	}
	if !ready() {
		return res("starting", http.StatusServiceUnavailable, "initializing")
	}
	if h.healthConfig == nil {
		return res("healthy", http.StatusOK, "")
	}
	cfg := h.healthConfig

	if cfg.StoragePing != nil {
		pingCtx, cancel := context.WithTimeout(ctx, storagePingTimeout)
		err := cfg.StoragePing(pingCtx)
		cancel()
		if err != nil {
			checks["storage"] = "unhealthy"
			return res("unavailable", http.StatusServiceUnavailable, "storage_unreachable")
		}
	}

	if cfg.RateLimitRPS > 0 && cfg.OverloadWindow > 0 && cfg.OverloadThresholdPct > 0 {
		threshold := float64(cfg.RateLimitRPS) * cfg.OverloadWindow.Seconds() * float64(cfg.OverloadThresholdPct) / 100
		if float64(traffic.RequestCount(cfg.OverloadWindow)) > threshold {
			return res("overloaded", http.StatusServiceUnavailable, "overload_threshold")
		}
	}

	if cfg.UpstreamOpen != nil && cfg.UpstreamOpen() {
		checks["forecastApi"] = "unhealthy"
		return res("degraded", http.StatusServiceUnavailable, "circuit_open")
	}
	if cfg.DegradedWindow > 0 && cfg.DegradedErrorPct > 0 {
		errs, total := traffic.ErrorRate(cfg.DegradedWindow)
		if total > 0 && float64(errs)*100/float64(total) >= float64(cfg.DegradedErrorPct) {
			checks["forecastApi"] = "unhealthy"
			return res("degraded", http.StatusServiceUnavailable, "error_rate_breach")
		}
	}
	return res("healthy", http.StatusOK, "")
}
