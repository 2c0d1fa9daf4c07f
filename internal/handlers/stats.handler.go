package handlers

import (
	"context"
	"time"

	"github.com/fasthttp/router"
	"github.com/voxleads/lead-relay/internal/model"
	"github.com/voxleads/lead-relay/internal/services"
	xhttp "github.com/voxleads/lead-relay/pkg/http"
)

type StatsService interface {
	Pipeline(ctx context.Context, tenantID string, window time.Duration) (*services.PipelineStats, error)
	Attempts(ctx context.Context, tenantID, submissionID string) ([]*model.DeliveryAttempt, error)
}

type StatsHandler struct {
	svc StatsService
}

func RegisterStatsRoutes(e *router.Group, h *StatsHandler) {
	e.GET("/stats", h.GetPipelineStats)
	e.GET("/stats/deliveries", h.GetDeliveryStats)
	e.GET("/stats/queue", h.GetQueueStats)
	e.GET("/leads/{id}/attempts", h.ListAttempts)
}

func NewStatsHandler(statsService StatsService) *StatsHandler {
	return &StatsHandler{svc: statsService}
}

func (h *StatsHandler) GetPipelineStats(ctx *xhttp.RequestCtx) {
	tenantID := query(ctx, "tenant_id")

	window := 24 * time.Hour
	if v := query(ctx, "window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			writeError(ctx, xhttp.StatusBadRequest, "invalid window: "+err.Error())
			return
		}
		window = d
	}

	stats, err := h.svc.Pipeline(ctx, tenantID, window)
	if err != nil {
		writeError(ctx, xhttp.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(ctx, xhttp.StatusOK, stats)
}

// GetDeliveryStats reports ledger outcomes only.
func (h *StatsHandler) GetDeliveryStats(ctx *xhttp.RequestCtx) {
	tenantID := query(ctx, "tenant_id")

	window := 24 * time.Hour
	if v := query(ctx, "window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			writeError(ctx, xhttp.StatusBadRequest, "invalid window: "+err.Error())
			return
		}
		window = d
	}

	stats, err := h.svc.Pipeline(ctx, tenantID, window)
	if err != nil {
		writeError(ctx, xhttp.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(ctx, xhttp.StatusOK, stats.Delivery)
}

// GetQueueStats reports queue depth by state.
func (h *StatsHandler) GetQueueStats(ctx *xhttp.RequestCtx) {
	stats, err := h.svc.Pipeline(ctx, "", 0)
	if err != nil {
		writeError(ctx, xhttp.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(ctx, xhttp.StatusOK, stats.Queue)
}

type attemptsResponse struct {
	Items []*model.DeliveryAttempt `json:"items"`
}

func (h *StatsHandler) ListAttempts(ctx *xhttp.RequestCtx) {
	tenantID := query(ctx, "tenant_id")
	if tenantID == "" {
		writeError(ctx, xhttp.StatusBadRequest, "tenant_id is required")
		return
	}

	items, err := h.svc.Attempts(ctx, tenantID, param(ctx, "id"))
	if err != nil {
		writeError(ctx, xhttp.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(ctx, xhttp.StatusOK, attemptsResponse{Items: items})
}
