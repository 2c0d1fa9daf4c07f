package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/voxleads/lead-relay/internal/model"
	"github.com/voxleads/lead-relay/pkg/pg"
)

// Response bodies are audit material, not payload storage.
const maxResponseBodyLen = 4096

type DeliveryAttemptRepository struct {
	*pg.DB
}

func NewDeliveryAttemptRepository(db *pg.DB) *DeliveryAttemptRepository {
	return &DeliveryAttemptRepository{db}
}

// Start inserts the started row for this execution. Called before any
// adapter I/O so the ledger always has a trace of the attempt.
func (r *DeliveryAttemptRepository) Start(ctx context.Context, attempt *model.DeliveryAttempt) (*model.DeliveryAttempt, error) {
	entity := toDeliveryAttemptEntity(attempt)
	if entity.ID == "" {
		entity.ID = uuid.NewString()
	}
	entity.Status = string(model.AttemptStatusStarted)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toDeliveryAttemptModel(entity), nil
}

// Finish records the adapter outcome on the started row.
func (r *DeliveryAttemptRepository) Finish(ctx context.Context, id string, status model.AttemptStatus, responseCode int, responseBody string, errMsg string) error {
	if len(responseBody) > maxResponseBodyLen {
		responseBody = responseBody[:maxResponseBodyLen]
	}
	return r.Write(ctx).WithContext(ctx).
		Model(&DeliveryAttemptEntity{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        string(status),
			"response_code": responseCode,
			"response_body": responseBody,
			"error":         errMsg,
		}).Error
}

// HasDelivered reports whether any attempt for this exact job step already
// succeeded. The worker checks this before doing adapter I/O; it is what
// makes replayed or out-of-order jobs safe.
func (r *DeliveryAttemptRepository) HasDelivered(ctx context.Context, submissionID string, jobType model.JobType, stepIndex int) (bool, error) {
	var count int64
	err := r.Read(ctx).WithContext(ctx).
		Model(&DeliveryAttemptEntity{}).
		Where("submission_id = ? AND job_type = ? AND step_index = ? AND status = ?",
			submissionID, string(jobType), stepIndex, string(model.AttemptStatusDelivered)).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *DeliveryAttemptRepository) CountForStep(ctx context.Context, submissionID string, jobType model.JobType, stepIndex int) (int64, error) {
	var count int64
	err := r.Read(ctx).WithContext(ctx).
		Model(&DeliveryAttemptEntity{}).
		Where("submission_id = ? AND job_type = ? AND step_index = ?",
			submissionID, string(jobType), stepIndex).
		Count(&count).Error
	return count, err
}

func (r *DeliveryAttemptRepository) ListBySubmission(ctx context.Context, tenantID, submissionID string) ([]*model.DeliveryAttempt, error) {
	var entities []*DeliveryAttemptEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("tenant_id = ? AND submission_id = ?", tenantID, submissionID).
		Order("created_at ASC").
		Find(&entities).Error
	if err != nil {
		return nil, err
	}

	attempts := make([]*model.DeliveryAttempt, len(entities))
	for i, e := range entities {
		attempts[i] = toDeliveryAttemptModel(e)
	}
	return attempts, nil
}

// Stats aggregates terminal outcomes over a lookback window, optionally
// scoped to one tenant.
func (r *DeliveryAttemptRepository) Stats(ctx context.Context, tenantID string, since time.Time) (*model.DeliveryStats, error) {
	stats := &model.DeliveryStats{TenantID: tenantID, Since: since}

	q := r.Read(ctx).WithContext(ctx).
		Model(&DeliveryAttemptEntity{}).
		Where("created_at >= ?", since)
	if tenantID != "" {
		q = q.Where("tenant_id = ?", tenantID)
	}

	err := q.Where("status = ?", string(model.AttemptStatusDelivered)).
		Count(&stats.Delivered).Error
	if err != nil {
		return nil, err
	}

	q = r.Read(ctx).WithContext(ctx).
		Model(&DeliveryAttemptEntity{}).
		Where("created_at >= ?", since)
	if tenantID != "" {
		q = q.Where("tenant_id = ?", tenantID)
	}
	err = q.Where("status = ?", string(model.AttemptStatusFailed)).
		Count(&stats.Failed).Error
	if err != nil {
		return nil, err
	}

	return stats, nil
}
