package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// HealthCheck is a named dependency probe.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	checks  []HealthCheck
	mode    string
	started time.Time
	logger  *slog.Logger
}

// NewHealthHandler creates a HealthHandler. Checks with a nil func are
// skipped.
func NewHealthHandler(mode string, logger *slog.Logger, checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{
		checks:  checks,
		mode:    mode,
		started: time.Now(),
		logger:  logHandler(logger, "health"),
	}
}

// HealthCheck reports process liveness and the state of each dependency.
// A failing dependency degrades the status but still answers 200.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := "ok"
	deps := make(map[string]string, len(h.checks))
	for _, c := range h.checks {
		if c.Check == nil {
			continue
		}
		if err := c.Check(ctx); err != nil {
			h.logger.WarnContext(ctx, "dependency unhealthy",
				slog.String("dependency", c.Name),
				slog.String("error", err.Error()),
			)
			deps[c.Name] = "down"
			status = "degraded"
			continue
		}
		deps[c.Name] = "up"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"mode":           h.mode,
		"dependencies":   deps,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}
