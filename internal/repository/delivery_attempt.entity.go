package repository

import (
	"time"

	"github.com/voxleads/lead-relay/internal/model"
)

type DeliveryAttemptEntity struct {
	ID            string    `gorm:"primaryKey;type:uuid;column:id"`
	TenantID      string    `gorm:"column:tenant_id;not null;index"`
	SubmissionID  string    `gorm:"column:submission_id;not null;index:ix_attempt_step"`
	AttemptNumber int       `gorm:"column:attempt_number;not null"`
	JobType       string    `gorm:"column:job_type;not null;index:ix_attempt_step"`
	StepIndex     int       `gorm:"column:step_index;not null;index:ix_attempt_step"`
	Status        string    `gorm:"column:status;not null;index"`
	ResponseCode  int       `gorm:"column:response_code"`
	ResponseBody  string    `gorm:"column:response_body"`
	Error         string    `gorm:"column:error"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (DeliveryAttemptEntity) TableName() string { return "delivery_attempts" }

func toDeliveryAttemptEntity(m *model.DeliveryAttempt) *DeliveryAttemptEntity {
	if m == nil {
		return nil
	}
	return &DeliveryAttemptEntity{
		ID:            m.ID,
		TenantID:      m.TenantID,
		SubmissionID:  m.SubmissionID,
		AttemptNumber: m.AttemptNumber,
		JobType:       string(m.JobType),
		StepIndex:     m.StepIndex,
		Status:        string(m.Status),
		ResponseCode:  m.ResponseCode,
		ResponseBody:  m.ResponseBody,
		Error:         m.Error,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func toDeliveryAttemptModel(e *DeliveryAttemptEntity) *model.DeliveryAttempt {
	if e == nil {
		return nil
	}
	return &model.DeliveryAttempt{
		ID:            e.ID,
		TenantID:      e.TenantID,
		SubmissionID:  e.SubmissionID,
		AttemptNumber: e.AttemptNumber,
		JobType:       model.JobType(e.JobType),
		StepIndex:     e.StepIndex,
		Status:        model.AttemptStatus(e.Status),
		ResponseCode:  e.ResponseCode,
		ResponseBody:  e.ResponseBody,
		Error:         e.Error,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}
