package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fasthttp/router"
	"github.com/voxleads/lead-relay/internal/model"
	"github.com/voxleads/lead-relay/internal/services"
	xhttp "github.com/voxleads/lead-relay/pkg/http"
)

type LeadService interface {
	Create(ctx context.Context, p model.SubmissionCreateRequest) (*model.Submission, error)
	AddStep(ctx context.Context, p model.SubmissionStepRequest) (*model.Submission, error)
	Get(ctx context.Context, tenantID, id string) (*model.Submission, error)
}

type LeadHandler struct {
	svc LeadService
}

func RegisterLeadRoutes(e *router.Group, h *LeadHandler) {
	e.POST("/leads", h.CreateLead)
	e.POST("/leads/{id}/steps", h.AddStep)
	e.GET("/leads/{id}", h.GetLead)
}

func NewLeadHandler(leadService LeadService) *LeadHandler {
	return &LeadHandler{svc: leadService}
}

type createLeadRequest struct {
	TenantID  string `json:"tenant_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`

	SchoolID   string `json:"school_id"`
	CampusID   string `json:"campus_id"`
	AccountID  string `json:"account_id"`
	LocationID string `json:"location_id"`
	ProgramID  string `json:"program_id"`

	Answers  map[string]interface{} `json:"answers"`
	Metadata map[string]interface{} `json:"metadata"`

	ConsentGranted     bool   `json:"consent_granted"`
	ConsentTextVersion string `json:"consent_text_version"`

	// Company is the hidden honeypot field rendered on every form.
	Company string `json:"company"`
}

type addStepRequest struct {
	TenantID  string                 `json:"tenant_id"`
	StepIndex int                    `json:"step_index"`
	Answers   map[string]interface{} `json:"answers"`
}

type leadAcceptedResponse struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

/* --------------------------------- Routes ----------------------------------- */

// CreateLead accepts the first step of a lead form. Replies 202: delivery to
// the CRM happens asynchronously.
func (h *LeadHandler) CreateLead(ctx *xhttp.RequestCtx) {
	var req createLeadRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	p := model.SubmissionCreateRequest{
		TenantID:   req.TenantID,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Email:      req.Email,
		Phone:      req.Phone,
		SchoolID:   req.SchoolID,
		CampusID:   req.CampusID,
		AccountID:  req.AccountID,
		LocationID: req.LocationID,
		ProgramID:  req.ProgramID,
		Answers:    req.Answers,
		Metadata:   req.Metadata,
		Consent: model.Consent{
			Granted:     req.ConsentGranted,
			TextVersion: req.ConsentTextVersion,
			Timestamp:   time.Now(),
		},
		Honeypot: req.Company,
	}

	sub, err := h.svc.Create(ctx, p)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnknownTarget):
			writeError(ctx, xhttp.StatusNotFound, err.Error())
		default:
			writeError(ctx, xhttp.StatusBadRequest, err.Error())
		}
		return
	}

	writeJSON(ctx, xhttp.StatusAccepted, leadAcceptedResponse{
		ID:             sub.ID,
		Status:         string(sub.Status),
		IdempotencyKey: sub.IdempotencyKey,
	})
}

// AddStep merges a later form step into an existing lead.
func (h *LeadHandler) AddStep(ctx *xhttp.RequestCtx) {
	var req addStepRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	p := model.SubmissionStepRequest{
		SubmissionID: param(ctx, "id"),
		TenantID:     req.TenantID,
		StepIndex:    req.StepIndex,
		Answers:      req.Answers,
	}

	sub, err := h.svc.AddStep(ctx, p)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotFound):
			writeError(ctx, xhttp.StatusNotFound, err.Error())
		default:
			writeError(ctx, xhttp.StatusBadRequest, err.Error())
		}
		return
	}

	writeJSON(ctx, xhttp.StatusAccepted, leadAcceptedResponse{
		ID:     sub.ID,
		Status: string(sub.Status),
	})
}

func (h *LeadHandler) GetLead(ctx *xhttp.RequestCtx) {
	tenantID := query(ctx, "tenant_id")
	if tenantID == "" {
		writeError(ctx, xhttp.StatusBadRequest, "tenant_id is required")
		return
	}

	sub, err := h.svc.Get(ctx, tenantID, param(ctx, "id"))
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			writeError(ctx, xhttp.StatusNotFound, err.Error())
			return
		}
		writeError(ctx, xhttp.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(ctx, xhttp.StatusOK, sub)
}

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	return json.Unmarshal(body, dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, map[string]string{"error": msg})
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

func param(ctx *xhttp.RequestCtx, name string) string {
	if v, ok := ctx.UserValue(name).(string); ok {
		return v
	}
	return ""
}
