package repository

import (
	"time"

	"gorm.io/datatypes"

	"github.com/voxleads/lead-relay/internal/model"
)

type AuditEventEntity struct {
	ID           string            `gorm:"primaryKey;type:uuid;column:id"`
	TenantID     string            `gorm:"column:tenant_id;not null;index"`
	SubmissionID string            `gorm:"column:submission_id;index"`
	Actor        string            `gorm:"column:actor;not null"`
	Action       string            `gorm:"column:action;not null;index"`
	Detail       datatypes.JSONMap `gorm:"column:detail"`
	CreatedAt    time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (AuditEventEntity) TableName() string { return "audit_events" }

func toAuditEventEntity(m *model.AuditEvent) *AuditEventEntity {
	if m == nil {
		return nil
	}
	return &AuditEventEntity{
		ID:           m.ID,
		TenantID:     m.TenantID,
		SubmissionID: m.SubmissionID,
		Actor:        m.Actor,
		Action:       string(m.Action),
		Detail:       datatypes.JSONMap(m.Detail),
		CreatedAt:    m.CreatedAt,
	}
}

func toAuditEventModel(e *AuditEventEntity) *model.AuditEvent {
	if e == nil {
		return nil
	}
	return &model.AuditEvent{
		ID:           e.ID,
		TenantID:     e.TenantID,
		SubmissionID: e.SubmissionID,
		Actor:        e.Actor,
		Action:       model.AuditAction(e.Action),
		Detail:       map[string]interface{}(e.Detail),
		CreatedAt:    e.CreatedAt,
	}
}
