package handlers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/voxleads/lead-relay/internal/model"
	"github.com/voxleads/lead-relay/internal/services"
	xhttp "github.com/voxleads/lead-relay/pkg/http"
)

type MockLeadService struct {
	mock.Mock
}

func (m *MockLeadService) Create(ctx context.Context, p model.SubmissionCreateRequest) (*model.Submission, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Submission), args.Error(1)
}

func (m *MockLeadService) AddStep(ctx context.Context, p model.SubmissionStepRequest) (*model.Submission, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Submission), args.Error(1)
}

func (m *MockLeadService) Get(ctx context.Context, tenantID, id string) (*model.Submission, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Submission), args.Error(1)
}

func setupTestContext(method, path string, body []byte) *xhttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	if body != nil {
		ctx.Request.SetBody(body)
	}
	return ctx
}

func TestLeadHandler_CreateLead(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		svc := new(MockLeadService)
		handler := NewLeadHandler(svc)

		reqBody := createLeadRequest{
			TenantID:  "tenant-1",
			FirstName: "Jamie",
			LastName:  "Rivera",
			Email:     "jamie@example.com",
			SchoolID:  "school-1",
			CampusID:  "campus-1",
			ProgramID: "prog-1",
			Answers:   map[string]interface{}{"start_date": "fall"},
		}
		bodyBytes, _ := json.Marshal(reqBody)

		svc.On("Create", mock.Anything, mock.MatchedBy(func(p model.SubmissionCreateRequest) bool {
			return p.TenantID == "tenant-1" &&
				p.Email == "jamie@example.com" &&
				p.SchoolID == "school-1" &&
				!p.Consent.Timestamp.IsZero()
		})).Return(&model.Submission{
			ID:             "sub-1",
			Status:         model.SubmissionStatusReceived,
			IdempotencyKey: "key-1",
		}, nil)

		ctx := setupTestContext("POST", "/api/v1/leads", bodyBytes)
		handler.CreateLead(ctx)

		assert.Equal(t, 202, ctx.Response.StatusCode())

		var response leadAcceptedResponse
		err := json.Unmarshal(ctx.Response.Body(), &response)
		require.NoError(t, err)
		assert.Equal(t, "sub-1", response.ID)
		assert.Equal(t, "received", response.Status)
		assert.Equal(t, "key-1", response.IdempotencyKey)

		svc.AssertExpectations(t)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		svc := new(MockLeadService)
		handler := NewLeadHandler(svc)

		ctx := setupTestContext("POST", "/api/v1/leads", []byte("invalid json"))
		handler.CreateLead(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())

		var response map[string]string
		err := json.Unmarshal(ctx.Response.Body(), &response)
		require.NoError(t, err)
		assert.Contains(t, response["error"], "invalid JSON")
	})

	t.Run("honeypot field forwarded to the service", func(t *testing.T) {
		svc := new(MockLeadService)
		handler := NewLeadHandler(svc)

		reqBody := createLeadRequest{TenantID: "tenant-1", Company: "bot corp"}
		bodyBytes, _ := json.Marshal(reqBody)

		svc.On("Create", mock.Anything, mock.MatchedBy(func(p model.SubmissionCreateRequest) bool {
			return p.Honeypot == "bot corp"
		})).Return(nil, services.ErrHoneypotTripped)

		ctx := setupTestContext("POST", "/api/v1/leads", bodyBytes)
		handler.CreateLead(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
		svc.AssertExpectations(t)
	})

	t.Run("unknown target maps to 404", func(t *testing.T) {
		svc := new(MockLeadService)
		handler := NewLeadHandler(svc)

		reqBody := createLeadRequest{TenantID: "tenant-1", ProgramID: "prog-404"}
		bodyBytes, _ := json.Marshal(reqBody)

		svc.On("Create", mock.Anything, mock.Anything).Return(nil, services.ErrUnknownTarget)

		ctx := setupTestContext("POST", "/api/v1/leads", bodyBytes)
		handler.CreateLead(ctx)

		assert.Equal(t, 404, ctx.Response.StatusCode())
	})
}

func TestLeadHandler_AddStep(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		svc := new(MockLeadService)
		handler := NewLeadHandler(svc)

		reqBody := addStepRequest{
			TenantID:  "tenant-1",
			StepIndex: 2,
			Answers:   map[string]interface{}{"gpa": "3.4"},
		}
		bodyBytes, _ := json.Marshal(reqBody)

		svc.On("AddStep", mock.Anything, mock.MatchedBy(func(p model.SubmissionStepRequest) bool {
			return p.SubmissionID == "sub-1" && p.StepIndex == 2 && p.TenantID == "tenant-1"
		})).Return(&model.Submission{ID: "sub-1", Status: model.SubmissionStatusDelivered}, nil)

		ctx := setupTestContext("POST", "/api/v1/leads/sub-1/steps", bodyBytes)
		ctx.SetUserValue("id", "sub-1")
		handler.AddStep(ctx)

		assert.Equal(t, 202, ctx.Response.StatusCode())
		svc.AssertExpectations(t)
	})

	t.Run("unknown submission maps to 404", func(t *testing.T) {
		svc := new(MockLeadService)
		handler := NewLeadHandler(svc)

		reqBody := addStepRequest{TenantID: "tenant-1", StepIndex: 2, Answers: map[string]interface{}{"x": 1}}
		bodyBytes, _ := json.Marshal(reqBody)

		svc.On("AddStep", mock.Anything, mock.Anything).Return(nil, services.ErrNotFound)

		ctx := setupTestContext("POST", "/api/v1/leads/missing/steps", bodyBytes)
		ctx.SetUserValue("id", "missing")
		handler.AddStep(ctx)

		assert.Equal(t, 404, ctx.Response.StatusCode())
	})
}

func TestLeadHandler_GetLead(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		svc := new(MockLeadService)
		handler := NewLeadHandler(svc)

		now := time.Now()
		svc.On("Get", mock.Anything, "tenant-1", "sub-1").Return(&model.Submission{
			ID:          "sub-1",
			Status:      model.SubmissionStatusDelivered,
			CrmLeadID:   "crm-9",
			DeliveredAt: &now,
		}, nil)

		ctx := setupTestContext("GET", "/api/v1/leads/sub-1?tenant_id=tenant-1", nil)
		ctx.SetUserValue("id", "sub-1")
		handler.GetLead(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())

		var response model.Submission
		err := json.Unmarshal(ctx.Response.Body(), &response)
		require.NoError(t, err)
		assert.Equal(t, "crm-9", response.CrmLeadID)
	})

	t.Run("missing tenant_id", func(t *testing.T) {
		svc := new(MockLeadService)
		handler := NewLeadHandler(svc)

		ctx := setupTestContext("GET", "/api/v1/leads/sub-1", nil)
		ctx.SetUserValue("id", "sub-1")
		handler.GetLead(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
		svc.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("not found", func(t *testing.T) {
		svc := new(MockLeadService)
		handler := NewLeadHandler(svc)

		svc.On("Get", mock.Anything, "tenant-1", "missing").Return(nil, services.ErrNotFound)

		ctx := setupTestContext("GET", "/api/v1/leads/missing?tenant_id=tenant-1", nil)
		ctx.SetUserValue("id", "missing")
		handler.GetLead(ctx)

		assert.Equal(t, 404, ctx.Response.StatusCode())
	})
}
