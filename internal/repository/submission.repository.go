package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/voxleads/lead-relay/internal/model"
	"github.com/voxleads/lead-relay/pkg/pg"
)

var (
	// ErrSubmissionNotFound is returned when a submission does not exist
	// within the caller's tenant scope.
	ErrSubmissionNotFound = errors.New("submission not found")
)

type SubmissionRepository struct {
	*pg.DB
}

func NewSubmissionRepository(db *pg.DB) *SubmissionRepository {
	return &SubmissionRepository{db}
}

// CreateIfAbsent inserts the submission unless a row with the same
// (tenant_id, idempotency_key) already exists. The insert is a no-op on
// conflict; the second return reports whether this call created the row.
// Either way the surviving row is returned, so duplicate intake requests
// resolve to the same submission.
func (r *SubmissionRepository) CreateIfAbsent(ctx context.Context, sub *model.Submission) (*model.Submission, bool, error) {
	entity := toSubmissionEntity(sub)
	if entity.ID == "" {
		entity.ID = uuid.NewString()
	}
	if entity.Status == "" {
		entity.Status = string(model.SubmissionStatusReceived)
	}

	res := r.Write(ctx).WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "idempotency_key"}},
		DoNothing: true,
	}).Create(entity)
	if res.Error != nil {
		return nil, false, res.Error
	}

	if res.RowsAffected > 0 {
		return toSubmissionModel(entity), true, nil
	}

	existing, err := r.GetByIdempotencyKey(ctx, sub.TenantID, sub.IdempotencyKey)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *SubmissionRepository) GetByID(ctx context.Context, tenantID, id string) (*model.Submission, error) {
	var entity SubmissionEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	return toSubmissionModel(&entity), nil
}

func (r *SubmissionRepository) GetByIdempotencyKey(ctx context.Context, tenantID, key string) (*model.Submission, error) {
	var entity SubmissionEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("tenant_id = ? AND idempotency_key = ?", tenantID, key).
		First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	return toSubmissionModel(&entity), nil
}

// MergeAnswers folds the step's answers into the stored map and advances the
// step high-water mark. last_step_completed only ever moves forward:
// out-of-order steps merge their answers but don't lower the mark.
func (r *SubmissionRepository) MergeAnswers(ctx context.Context, tenantID, id string, answers map[string]interface{}, stepIndex int) (*model.Submission, error) {
	var merged *model.Submission
	err := r.WithinTransaction(ctx, func(ctx context.Context) error {
		var entity SubmissionEntity
		err := r.Write(ctx).WithContext(ctx).
			Where("id = ? AND tenant_id = ?", id, tenantID).
			First(&entity).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSubmissionNotFound
			}
			return err
		}

		if entity.Answers == nil {
			entity.Answers = map[string]interface{}{}
		}
		for k, v := range answers {
			entity.Answers[k] = v
		}
		if stepIndex > entity.LastStepCompleted {
			entity.LastStepCompleted = stepIndex
		}

		err = r.Write(ctx).WithContext(ctx).
			Model(&SubmissionEntity{}).
			Where("id = ? AND tenant_id = ?", id, tenantID).
			Updates(map[string]interface{}{
				"answers":             entity.Answers,
				"last_step_completed": entity.LastStepCompleted,
			}).Error
		if err != nil {
			return err
		}

		merged = toSubmissionModel(&entity)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

func (r *SubmissionRepository) UpdateStatus(ctx context.Context, tenantID, id string, status model.SubmissionStatus) error {
	res := r.Write(ctx).WithContext(ctx).
		Model(&SubmissionEntity{}).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Update("status", string(status))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSubmissionNotFound
	}
	return nil
}

// MarkDelivered flips the submission to delivered. For create jobs the
// external lead id is persisted and delivered_at stamped; update jobs only
// touch the status.
func (r *SubmissionRepository) MarkDelivered(ctx context.Context, tenantID, id string, crmLeadID string, stampDeliveredAt bool) error {
	updates := map[string]interface{}{
		"status": string(model.SubmissionStatusDelivered),
	}
	if crmLeadID != "" {
		updates["crm_lead_id"] = crmLeadID
	}
	if stampDeliveredAt {
		updates["delivered_at"] = gorm.Expr("CURRENT_TIMESTAMP")
	}

	res := r.Write(ctx).WithContext(ctx).
		Model(&SubmissionEntity{}).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSubmissionNotFound
	}
	return nil
}
