package worker

import (
	"context"
	"errors"
	"time"

	"github.com/voxleads/lead-relay/internal/crm"
	"github.com/voxleads/lead-relay/internal/model"
	"github.com/voxleads/lead-relay/internal/notify"
	"github.com/voxleads/lead-relay/internal/queue"
	"github.com/voxleads/lead-relay/internal/repository"
	"github.com/voxleads/lead-relay/pkg/logger"
	"github.com/voxleads/lead-relay/pkg/prom"
)

const ActorWorker = "worker"

type SubmissionStore interface {
	GetByID(ctx context.Context, tenantID, id string) (*model.Submission, error)
	UpdateStatus(ctx context.Context, tenantID, id string, status model.SubmissionStatus) error
	MarkDelivered(ctx context.Context, tenantID, id string, crmLeadID string, stampDeliveredAt bool) error
}

type AttemptStore interface {
	Start(ctx context.Context, attempt *model.DeliveryAttempt) (*model.DeliveryAttempt, error)
	Finish(ctx context.Context, id string, status model.AttemptStatus, responseCode int, responseBody string, errMsg string) error
	HasDelivered(ctx context.Context, submissionID string, jobType model.JobType, stepIndex int) (bool, error)
}

type TenantDirectory interface {
	GetByTenant(ctx context.Context, tenantID string) (*model.CrmConnection, error)
	ResolveLocation(ctx context.Context, tenantID string, target model.TargetRef) (*model.Location, error)
}

type Auditor interface {
	Record(ctx context.Context, tenantID, submissionID, actor string, action model.AuditAction, detail map[string]interface{})
}

// DeliveryProcessor executes one delivery job end to end: load and guard,
// consult the attempt ledger, call the tenant's CRM through the right
// adapter, and persist the outcome.
type DeliveryProcessor struct {
	submissions SubmissionStore
	attempts    AttemptStore
	tenants     TenantDirectory
	adapters    *crm.Registry
	auditor     Auditor
	notifier    notify.Notifier
	maxAttempts int
}

func NewDeliveryProcessor(
	submissions SubmissionStore,
	attempts AttemptStore,
	tenants TenantDirectory,
	adapters *crm.Registry,
	auditor Auditor,
	notifier notify.Notifier,
	maxAttempts int,
) *DeliveryProcessor {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &DeliveryProcessor{
		submissions: submissions,
		attempts:    attempts,
		tenants:     tenants,
		adapters:    adapters,
		auditor:     auditor,
		notifier:    notifier,
		maxAttempts: maxAttempts,
	}
}

func (p *DeliveryProcessor) Process(ctx context.Context, job *queue.DeliveryJob) error {
	sub, err := p.submissions.GetByID(ctx, job.TenantID, job.SubmissionID)
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			// Either the submission never existed or the job's tenant does
			// not own it. No retry can change that.
			p.auditor.Record(ctx, job.TenantID, job.SubmissionID, ActorWorker,
				model.AuditTenantMismatch, map[string]interface{}{"job": job.LogicalID()})
			return fatalf(err, "submission %s not visible to tenant %s", job.SubmissionID, job.TenantID)
		}
		return retryablef("failed to load submission %s: %w", job.SubmissionID, err)
	}

	// A job that names a target must name the stored one.
	if job.Target.Scheme != "" && !job.Target.Equal(sub.Target) {
		p.auditor.Record(ctx, sub.TenantID, sub.ID, ActorWorker,
			model.AuditTenantMismatch, map[string]interface{}{
				"job":        job.LogicalID(),
				"job_target": job.Target,
			})
		return fatalf(errors.New("target mismatch"),
			"job target does not match submission %s", sub.ID)
	}

	// A create replay against an already-delivered submission is acked
	// without touching the CRM, even when the ledger write was lost.
	if job.Type == model.JobTypeCreate && sub.Status == model.SubmissionStatusDelivered {
		logger.Info("submission already delivered, skipping",
			"submission", sub.ID, "job", job.LogicalID(), "attempt", job.Attempt)
		p.auditor.Record(ctx, sub.TenantID, sub.ID, ActorWorker,
			model.AuditDeliverySkipped, map[string]interface{}{"job": job.LogicalID()})
		prom.CountDeliveryOutcome(string(job.Type), "skipped")
		return nil
	}

	// Ledger short-circuit. A replayed job whose step already went out is
	// acked without touching the CRM.
	delivered, err := p.attempts.HasDelivered(ctx, sub.ID, job.Type, job.StepIndex)
	if err != nil {
		return retryablef("failed to consult attempt ledger: %w", err)
	}
	if delivered {
		logger.Info("step already delivered, skipping",
			"submission", sub.ID, "job", job.LogicalID(), "attempt", job.Attempt)
		p.auditor.Record(ctx, sub.TenantID, sub.ID, ActorWorker,
			model.AuditDeliverySkipped, map[string]interface{}{"job": job.LogicalID()})
		prom.CountDeliveryOutcome(string(job.Type), "skipped")
		return nil
	}

	// Update jobs ride on the external lead id the create established.
	if job.Type == model.JobTypeUpdate && sub.CrmLeadID == "" {
		return retryablef("submission %s has no crm lead id yet, create must land first", sub.ID)
	}

	if err := p.submissions.UpdateStatus(ctx, sub.TenantID, sub.ID, model.SubmissionStatusDelivering); err != nil {
		return retryablef("failed to mark submission delivering: %w", err)
	}

	attempt, err := p.attempts.Start(ctx, &model.DeliveryAttempt{
		TenantID:      sub.TenantID,
		SubmissionID:  sub.ID,
		AttemptNumber: job.Attempt,
		JobType:       job.Type,
		StepIndex:     job.StepIndex,
	})
	if err != nil {
		return retryablef("failed to open attempt record: %w", err)
	}

	// Every exit past this point closes the attempt row.
	failAttempt := func(errMsg string) {
		if ferr := p.attempts.Finish(ctx, attempt.ID, model.AttemptStatusFailed, 0, "", errMsg); ferr != nil {
			logger.Error("failed to close attempt record", "attempt", attempt.ID, "error", ferr)
		}
	}

	conn, err := p.tenants.GetByTenant(ctx, job.TenantID)
	if err != nil {
		if errors.Is(err, repository.ErrConnectionNotFound) {
			failAttempt("tenant has no crm connection")
			p.failTerminally(ctx, sub, job, "tenant has no crm connection")
			return fatalf(err, "tenant %s has no crm connection", job.TenantID)
		}
		failAttempt(err.Error())
		return retryablef("failed to load crm connection: %w", err)
	}

	adapter, err := p.adapters.Resolve(conn.Type)
	if err != nil {
		failAttempt("unknown connection type")
		p.failTerminally(ctx, sub, job, "unknown connection type")
		return fatalf(err, "tenant %s connection misconfigured", job.TenantID)
	}

	loc, err := p.tenants.ResolveLocation(ctx, job.TenantID, sub.Target)
	if err != nil {
		if errors.Is(err, repository.ErrLocationNotFound) {
			failAttempt("target location not found")
			p.failTerminally(ctx, sub, job, "target location not found")
			return fatalf(err, "target of submission %s does not resolve", sub.ID)
		}
		failAttempt(err.Error())
		return retryablef("failed to resolve location: %w", err)
	}

	payload := p.buildPayload(sub, job, loc)

	start := time.Now()
	result := adapter.Deliver(ctx, payload, conn)
	prom.ObserveDeliveryDuration(time.Since(start).Seconds(), string(job.Type))

	return p.persistOutcome(ctx, sub, job, loc, attempt, result)
}

func (p *DeliveryProcessor) buildPayload(sub *model.Submission, job *queue.DeliveryJob, loc *model.Location) *model.DeliveryPayload {
	return &model.DeliveryPayload{
		SubmissionID:   sub.ID,
		IdempotencyKey: sub.IdempotencyKey,
		Action:         job.Type,
		CrmLeadID:      sub.CrmLeadID,
		StepIndex:      job.StepIndex,
		Target:         sub.Target,
		Contact: model.DeliveryContact{
			FirstName: sub.FirstName,
			LastName:  sub.LastName,
			Email:     sub.Email,
			Phone:     sub.Phone,
		},
		Answers:     sub.Answers,
		Metadata:    sub.Metadata,
		Consent:     sub.Consent,
		RoutingTags: loc.RoutingTags,
	}
}

func (p *DeliveryProcessor) persistOutcome(ctx context.Context, sub *model.Submission, job *queue.DeliveryJob, loc *model.Location, attempt *model.DeliveryAttempt, result *crm.Result) error {
	if result.Success && job.Type == model.JobTypeCreate && result.ExternalLeadID == "" {
		// The CRM said yes but gave us nothing to address updates to.
		result.Success = false
		result.Err = "create accepted but response carried no lead id"
	}

	if !result.Success {
		if err := p.attempts.Finish(ctx, attempt.ID, model.AttemptStatusFailed,
			result.StatusCode, result.Body, result.Err); err != nil {
			logger.Error("failed to close attempt record", "attempt", attempt.ID, "error", err)
		}
		prom.CountDeliveryOutcome(string(job.Type), "failed")

		if job.Attempt >= p.maxAttempts {
			p.failTerminally(ctx, sub, job, result.Err)
		} else {
			p.auditor.Record(ctx, sub.TenantID, sub.ID, ActorWorker,
				model.AuditDeliveryRetried, map[string]interface{}{
					"job":     job.LogicalID(),
					"attempt": job.Attempt,
					"error":   result.Err,
				})
		}
		return retryablef("delivery failed (status %d): %s", result.StatusCode, result.Err)
	}

	if err := p.attempts.Finish(ctx, attempt.ID, model.AttemptStatusDelivered,
		result.StatusCode, result.Body, ""); err != nil {
		logger.Error("failed to close attempt record", "attempt", attempt.ID, "error", err)
	}

	// Only the create establishes the lead id. Whatever an update response
	// carries must not overwrite it.
	isCreate := job.Type == model.JobTypeCreate
	externalLeadID := result.ExternalLeadID
	if !isCreate {
		externalLeadID = ""
	}
	if err := p.submissions.MarkDelivered(ctx, sub.TenantID, sub.ID, externalLeadID, isCreate); err != nil {
		// The CRM accepted the lead; the ledger row protects the next run
		// from re-sending it.
		logger.Error("failed to mark submission delivered", "submission", sub.ID, "error", err)
	}

	p.auditor.Record(ctx, sub.TenantID, sub.ID, ActorWorker,
		model.AuditDeliverySucceeded, map[string]interface{}{
			"job":         job.LogicalID(),
			"attempt":     job.Attempt,
			"crm_lead_id": externalLeadID,
		})
	prom.CountDeliveryOutcome(string(job.Type), "delivered")

	logger.Info("delivery succeeded",
		"submission", sub.ID, "job", job.LogicalID(), "attempt", job.Attempt,
		"crm_lead_id", externalLeadID)

	if isCreate {
		if err := p.notifier.LeadDelivered(ctx, loc, sub); err != nil {
			logger.Warn("lead notification failed", "submission", sub.ID, "error", err)
		}
	}

	return nil
}

// failTerminally records the end of the road for a submission's job.
func (p *DeliveryProcessor) failTerminally(ctx context.Context, sub *model.Submission, job *queue.DeliveryJob, reason string) {
	if err := p.submissions.UpdateStatus(ctx, sub.TenantID, sub.ID, model.SubmissionStatusFailed); err != nil {
		logger.Error("failed to mark submission failed", "submission", sub.ID, "error", err)
	}
	p.auditor.Record(ctx, sub.TenantID, sub.ID, ActorWorker,
		model.AuditDeliveryFailed, map[string]interface{}{
			"job":     job.LogicalID(),
			"attempt": job.Attempt,
			"reason":  reason,
		})
}
