package handlers

import (
	"context"
	"time"

	"github.com/fasthttp/router"
	xhttp "github.com/voxleads/lead-relay/pkg/http"
)

// HealthCheck probes one dependency. A nil map entry is never registered.
type HealthCheck func(ctx context.Context) error

type HealthHandler struct {
	checks map[string]HealthCheck
}

func RegisterHealthRoutes(e *router.Group, h *HealthHandler) {
	e.GET("/health", h.GetHealth)
}

func NewHealthHandler(checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (h *HealthHandler) GetHealth(ctx *xhttp.RequestCtx) {
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	results := make(map[string]string, len(h.checks))
	healthy := true
	for name, check := range h.checks {
		if err := check(checkCtx); err != nil {
			results[name] = err.Error()
			healthy = false
			continue
		}
		results[name] = "ok"
	}

	status := xhttp.StatusOK
	body := healthResponse{Status: "success", Checks: results}
	if !healthy {
		status = xhttp.StatusServiceUnavailable
		body.Status = "degraded"
	}

	writeJSON(ctx, status, body)
}
