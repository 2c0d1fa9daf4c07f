package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/voxleads/lead-relay/internal/model"
	"github.com/voxleads/lead-relay/pkg/pg"
)

type AuditRepository struct {
	*pg.DB
}

func NewAuditRepository(db *pg.DB) *AuditRepository {
	return &AuditRepository{db}
}

// Append writes one trail entry. Rows are never updated or deleted.
func (r *AuditRepository) Append(ctx context.Context, event *model.AuditEvent) (*model.AuditEvent, error) {
	entity := toAuditEventEntity(event)
	if entity.ID == "" {
		entity.ID = uuid.NewString()
	}
	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toAuditEventModel(entity), nil
}

func (r *AuditRepository) ListBySubmission(ctx context.Context, tenantID, submissionID string) ([]*model.AuditEvent, error) {
	var entities []*AuditEventEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("tenant_id = ? AND submission_id = ?", tenantID, submissionID).
		Order("created_at ASC").
		Find(&entities).Error
	if err != nil {
		return nil, err
	}

	events := make([]*model.AuditEvent, len(entities))
	for i, e := range entities {
		events[i] = toAuditEventModel(e)
	}
	return events, nil
}
