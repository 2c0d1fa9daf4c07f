package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/voxleads/lead-relay/internal/idempotency"
	"github.com/voxleads/lead-relay/internal/model"
	"github.com/voxleads/lead-relay/internal/queue"
	"github.com/voxleads/lead-relay/internal/repository"
	"github.com/voxleads/lead-relay/pkg/logger"
)

const ActorAPI = "api"

var (
	ErrHoneypotTripped = errors.New("submission rejected")
	ErrInvalidTarget   = errors.New("invalid target identifiers")
	ErrUnknownTarget   = errors.New("target not found")
	ErrNotFound        = errors.New("submission not found")
)

type SubmissionRepository interface {
	CreateIfAbsent(ctx context.Context, sub *model.Submission) (*model.Submission, bool, error)
	GetByID(ctx context.Context, tenantID, id string) (*model.Submission, error)
	MergeAnswers(ctx context.Context, tenantID, id string, answers map[string]interface{}, stepIndex int) (*model.Submission, error)
}

type TargetResolver interface {
	ResolveLocation(ctx context.Context, tenantID string, target model.TargetRef) (*model.Location, error)
	ResolveProgram(ctx context.Context, tenantID, ref string) (*model.Program, error)
}

type Auditor interface {
	Record(ctx context.Context, tenantID, submissionID, actor string, action model.AuditAction, detail map[string]interface{})
}

type Enqueuer interface {
	Enqueue(ctx context.Context, job *queue.DeliveryJob) (bool, error)
}

// IntakeService accepts lead submissions and step updates. Intake commits
// the submission and hands delivery to the queue; it never calls a CRM
// in the request path.
type IntakeService struct {
	submissionRepo SubmissionRepository
	targets        TargetResolver
	auditor        Auditor
	deliveries     Enqueuer
}

func NewIntakeService(submissionRepo SubmissionRepository, targets TargetResolver, auditor Auditor, deliveries Enqueuer) *IntakeService {
	return &IntakeService{
		submissionRepo: submissionRepo,
		targets:        targets,
		auditor:        auditor,
		deliveries:     deliveries,
	}
}

// Create handles first-step intake. The same lead submitted twice resolves
// to the same submission and enqueues nothing the second time.
func (s *IntakeService) Create(ctx context.Context, p model.SubmissionCreateRequest) (*model.Submission, error) {
	if p.Honeypot != "" {
		// A filled hidden field means a bot; reject without a trace the
		// caller can distinguish from validation.
		logger.Warn("honeypot tripped", "tenant", p.TenantID, "email", p.Email)
		return nil, ErrHoneypotTripped
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	target, err := model.NewTargetRef(p.SchoolID, p.CampusID, p.AccountID, p.LocationID, p.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTarget, err)
	}

	if _, err := s.targets.ResolveLocation(ctx, p.TenantID, target); err != nil {
		if errors.Is(err, repository.ErrLocationNotFound) {
			return nil, ErrUnknownTarget
		}
		return nil, fmt.Errorf("resolve location: %w", err)
	}
	if _, err := s.targets.ResolveProgram(ctx, p.TenantID, p.ProgramID); err != nil {
		if errors.Is(err, repository.ErrProgramNotFound) {
			return nil, ErrUnknownTarget
		}
		return nil, fmt.Errorf("resolve program: %w", err)
	}

	email := idempotency.NormalizeEmail(p.Email)
	phone := idempotency.NormalizePhone(p.Phone)
	key := idempotency.DeriveKey(p.TenantID, p.Email, p.Phone, target)

	sub := &model.Submission{
		TenantID:       p.TenantID,
		Target:         target,
		FirstName:      strings.TrimSpace(p.FirstName),
		LastName:       strings.TrimSpace(p.LastName),
		Email:          email,
		Phone:          phone,
		Answers:        p.Answers,
		Metadata:       p.Metadata,
		Consent:        p.Consent,
		IdempotencyKey: key,
		Status:         model.SubmissionStatusReceived,
	}

	created, isNew, err := s.submissionRepo.CreateIfAbsent(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("create submission: %w", err)
	}

	if !isNew {
		logger.Info("duplicate submission resolved to existing lead",
			"tenant", p.TenantID, "submission", created.ID)
		s.auditor.Record(ctx, p.TenantID, created.ID, ActorAPI,
			model.AuditLeadDuplicate, map[string]interface{}{"idempotency_key": key})
		return created, nil
	}

	s.auditor.Record(ctx, p.TenantID, created.ID, ActorAPI,
		model.AuditLeadReceived, map[string]interface{}{"idempotency_key": key})

	job := &queue.DeliveryJob{
		Type:         model.JobTypeCreate,
		TenantID:     created.TenantID,
		SubmissionID: created.ID,
		Target:       target,
	}
	if _, err := s.deliveries.Enqueue(ctx, job); err != nil {
		// The submission is durable; a stalled enqueue is recoverable by
		// re-driving the job, losing the intake is not.
		logger.Error("failed to enqueue create job",
			"tenant", created.TenantID, "submission", created.ID, "error", err)
	}

	return created, nil
}

// AddStep merges a later form step into the submission and queues an update
// delivery for that step.
func (s *IntakeService) AddStep(ctx context.Context, p model.SubmissionStepRequest) (*model.Submission, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	merged, err := s.submissionRepo.MergeAnswers(ctx, p.TenantID, p.SubmissionID, p.Answers, p.StepIndex)
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("merge step: %w", err)
	}

	s.auditor.Record(ctx, p.TenantID, merged.ID, ActorAPI,
		model.AuditStepMerged, map[string]interface{}{"step_index": p.StepIndex})

	job := &queue.DeliveryJob{
		Type:         model.JobTypeUpdate,
		TenantID:     merged.TenantID,
		SubmissionID: merged.ID,
		Target:       merged.Target,
		StepIndex:    p.StepIndex,
	}
	if _, err := s.deliveries.Enqueue(ctx, job); err != nil {
		logger.Error("failed to enqueue update job",
			"tenant", merged.TenantID, "submission", merged.ID, "step", p.StepIndex, "error", err)
	}

	return merged, nil
}

// Get returns one submission within the caller's tenant.
func (s *IntakeService) Get(ctx context.Context, tenantID, id string) (*model.Submission, error) {
	sub, err := s.submissionRepo.GetByID(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sub, nil
}
