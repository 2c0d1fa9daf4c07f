package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/voxleads/lead-relay/internal/model"
	"github.com/voxleads/lead-relay/internal/queue"
	"github.com/voxleads/lead-relay/internal/repository"
)

type mockSubmissionRepo struct{ mock.Mock }

func (m *mockSubmissionRepo) CreateIfAbsent(ctx context.Context, sub *model.Submission) (*model.Submission, bool, error) {
	args := m.Called(ctx, sub)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*model.Submission), args.Bool(1), args.Error(2)
}

func (m *mockSubmissionRepo) GetByID(ctx context.Context, tenantID, id string) (*model.Submission, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Submission), args.Error(1)
}

func (m *mockSubmissionRepo) MergeAnswers(ctx context.Context, tenantID, id string, answers map[string]interface{}, stepIndex int) (*model.Submission, error) {
	args := m.Called(ctx, tenantID, id, answers, stepIndex)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Submission), args.Error(1)
}

type mockTargetResolver struct{ mock.Mock }

func (m *mockTargetResolver) ResolveLocation(ctx context.Context, tenantID string, target model.TargetRef) (*model.Location, error) {
	args := m.Called(ctx, tenantID, target)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Location), args.Error(1)
}

func (m *mockTargetResolver) ResolveProgram(ctx context.Context, tenantID, ref string) (*model.Program, error) {
	args := m.Called(ctx, tenantID, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Program), args.Error(1)
}

type mockAuditor struct{ mock.Mock }

func (m *mockAuditor) Record(ctx context.Context, tenantID, submissionID, actor string, action model.AuditAction, detail map[string]interface{}) {
	m.Called(ctx, tenantID, submissionID, actor, action, detail)
}

type mockEnqueuer struct{ mock.Mock }

func (m *mockEnqueuer) Enqueue(ctx context.Context, job *queue.DeliveryJob) (bool, error) {
	args := m.Called(ctx, job)
	return args.Bool(0), args.Error(1)
}

func validCreateRequest() model.SubmissionCreateRequest {
	return model.SubmissionCreateRequest{
		TenantID:  "tenant-1",
		FirstName: "Jamie",
		LastName:  "Rivera",
		Email:     "Jamie@Example.com ",
		Phone:     "(555) 123-4567",
		SchoolID:  "school-1",
		CampusID:  "campus-1",
		ProgramID: "prog-1",
		Answers:   map[string]interface{}{"start_date": "fall"},
	}
}

func newIntakeFixture() (*IntakeService, *mockSubmissionRepo, *mockTargetResolver, *mockAuditor, *mockEnqueuer) {
	repo := new(mockSubmissionRepo)
	targets := new(mockTargetResolver)
	auditor := new(mockAuditor)
	enqueuer := new(mockEnqueuer)
	return NewIntakeService(repo, targets, auditor, enqueuer), repo, targets, auditor, enqueuer
}

func TestIntakeService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("new lead is stored and create job enqueued", func(t *testing.T) {
		svc, repo, targets, auditor, enqueuer := newIntakeFixture()

		targets.On("ResolveLocation", ctx, "tenant-1", mock.Anything).Return(&model.Location{}, nil)
		targets.On("ResolveProgram", ctx, "tenant-1", "prog-1").Return(&model.Program{}, nil)
		repo.On("CreateIfAbsent", ctx, mock.MatchedBy(func(s *model.Submission) bool {
			return s.Email == "jamie@example.com" &&
				s.Phone == "5551234567" &&
				s.IdempotencyKey != "" &&
				s.Target.Scheme == model.SchemeLegacy
		})).Return(&model.Submission{ID: "sub-1", TenantID: "tenant-1"}, true, nil)
		auditor.On("Record", ctx, "tenant-1", "sub-1", ActorAPI, model.AuditLeadReceived, mock.Anything)
		enqueuer.On("Enqueue", ctx, mock.MatchedBy(func(j *queue.DeliveryJob) bool {
			return j.Type == model.JobTypeCreate && j.SubmissionID == "sub-1" && j.StepIndex == 0 &&
				j.Target.Scheme == model.SchemeLegacy &&
				j.Target.SchoolID == "school-1" && j.Target.CampusID == "campus-1"
		})).Return(true, nil)

		created, err := svc.Create(ctx, validCreateRequest())
		require.NoError(t, err)
		assert.Equal(t, "sub-1", created.ID)

		repo.AssertExpectations(t)
		enqueuer.AssertExpectations(t)
		auditor.AssertExpectations(t)
	})

	t.Run("duplicate lead enqueues nothing", func(t *testing.T) {
		svc, repo, targets, auditor, enqueuer := newIntakeFixture()

		targets.On("ResolveLocation", ctx, "tenant-1", mock.Anything).Return(&model.Location{}, nil)
		targets.On("ResolveProgram", ctx, "tenant-1", "prog-1").Return(&model.Program{}, nil)
		repo.On("CreateIfAbsent", ctx, mock.Anything).
			Return(&model.Submission{ID: "sub-1", TenantID: "tenant-1"}, false, nil)
		auditor.On("Record", ctx, "tenant-1", "sub-1", ActorAPI, model.AuditLeadDuplicate, mock.Anything)

		created, err := svc.Create(ctx, validCreateRequest())
		require.NoError(t, err)
		assert.Equal(t, "sub-1", created.ID)

		enqueuer.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
		auditor.AssertExpectations(t)
	})

	t.Run("honeypot rejects before any work", func(t *testing.T) {
		svc, repo, targets, _, enqueuer := newIntakeFixture()

		req := validCreateRequest()
		req.Honeypot = "gotcha"

		_, err := svc.Create(ctx, req)
		assert.ErrorIs(t, err, ErrHoneypotTripped)

		repo.AssertNotCalled(t, "CreateIfAbsent", mock.Anything, mock.Anything)
		targets.AssertNotCalled(t, "ResolveLocation", mock.Anything, mock.Anything, mock.Anything)
		enqueuer.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
	})

	t.Run("ambiguous target rejected", func(t *testing.T) {
		svc, _, _, _, _ := newIntakeFixture()

		req := validCreateRequest()
		req.AccountID = "acct-1"
		req.LocationID = "loc-1"

		_, err := svc.Create(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidTarget)
	})

	t.Run("unknown location", func(t *testing.T) {
		svc, _, targets, _, _ := newIntakeFixture()

		targets.On("ResolveLocation", ctx, "tenant-1", mock.Anything).
			Return(nil, repository.ErrLocationNotFound)

		_, err := svc.Create(ctx, validCreateRequest())
		assert.ErrorIs(t, err, ErrUnknownTarget)
	})

	t.Run("inactive program", func(t *testing.T) {
		svc, _, targets, _, _ := newIntakeFixture()

		targets.On("ResolveLocation", ctx, "tenant-1", mock.Anything).Return(&model.Location{}, nil)
		targets.On("ResolveProgram", ctx, "tenant-1", "prog-1").
			Return(nil, repository.ErrProgramNotFound)

		_, err := svc.Create(ctx, validCreateRequest())
		assert.ErrorIs(t, err, ErrUnknownTarget)
	})

	t.Run("enqueue failure does not lose the submission", func(t *testing.T) {
		svc, repo, targets, auditor, enqueuer := newIntakeFixture()

		targets.On("ResolveLocation", ctx, "tenant-1", mock.Anything).Return(&model.Location{}, nil)
		targets.On("ResolveProgram", ctx, "tenant-1", "prog-1").Return(&model.Program{}, nil)
		repo.On("CreateIfAbsent", ctx, mock.Anything).
			Return(&model.Submission{ID: "sub-1", TenantID: "tenant-1"}, true, nil)
		auditor.On("Record", ctx, "tenant-1", "sub-1", ActorAPI, model.AuditLeadReceived, mock.Anything)
		enqueuer.On("Enqueue", ctx, mock.Anything).Return(false, assert.AnError)

		created, err := svc.Create(ctx, validCreateRequest())
		require.NoError(t, err)
		assert.Equal(t, "sub-1", created.ID)
	})
}

func TestIntakeService_AddStep(t *testing.T) {
	ctx := context.Background()

	stepReq := model.SubmissionStepRequest{
		SubmissionID: "sub-1",
		TenantID:     "tenant-1",
		StepIndex:    2,
		Answers:      map[string]interface{}{"gpa": "3.4"},
	}

	t.Run("merges and enqueues update job", func(t *testing.T) {
		svc, repo, _, auditor, enqueuer := newIntakeFixture()

		target := model.TargetRef{
			Scheme: model.SchemeLegacy, SchoolID: "school-1", CampusID: "campus-1", ProgramID: "prog-1",
		}
		repo.On("MergeAnswers", ctx, "tenant-1", "sub-1", stepReq.Answers, 2).
			Return(&model.Submission{ID: "sub-1", TenantID: "tenant-1", Target: target, LastStepCompleted: 2}, nil)
		auditor.On("Record", ctx, "tenant-1", "sub-1", ActorAPI, model.AuditStepMerged, mock.Anything)
		enqueuer.On("Enqueue", ctx, mock.MatchedBy(func(j *queue.DeliveryJob) bool {
			return j.Type == model.JobTypeUpdate && j.StepIndex == 2 && j.SubmissionID == "sub-1" &&
				j.Target.Equal(target)
		})).Return(true, nil)

		merged, err := svc.AddStep(ctx, stepReq)
		require.NoError(t, err)
		assert.Equal(t, 2, merged.LastStepCompleted)
		enqueuer.AssertExpectations(t)
	})

	t.Run("unknown submission", func(t *testing.T) {
		svc, repo, _, _, _ := newIntakeFixture()

		repo.On("MergeAnswers", ctx, "tenant-1", "sub-1", mock.Anything, 2).
			Return(nil, repository.ErrSubmissionNotFound)

		_, err := svc.AddStep(ctx, stepReq)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("invalid step index", func(t *testing.T) {
		svc, repo, _, _, _ := newIntakeFixture()

		bad := stepReq
		bad.StepIndex = 0

		_, err := svc.AddStep(ctx, bad)
		assert.Error(t, err)
		repo.AssertNotCalled(t, "MergeAnswers", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing tenant", func(t *testing.T) {
		svc, repo, _, _, _ := newIntakeFixture()

		bad := stepReq
		bad.TenantID = ""

		_, err := svc.AddStep(ctx, bad)
		assert.Error(t, err)
		repo.AssertNotCalled(t, "MergeAnswers", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestIntakeService_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		svc, repo, _, _, _ := newIntakeFixture()
		repo.On("GetByID", ctx, "tenant-1", "sub-1").
			Return(&model.Submission{ID: "sub-1"}, nil)

		sub, err := svc.Get(ctx, "tenant-1", "sub-1")
		require.NoError(t, err)
		assert.Equal(t, "sub-1", sub.ID)
	})

	t.Run("not found", func(t *testing.T) {
		svc, repo, _, _, _ := newIntakeFixture()
		repo.On("GetByID", ctx, "tenant-1", "missing").
			Return(nil, repository.ErrSubmissionNotFound)

		_, err := svc.Get(ctx, "tenant-1", "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
