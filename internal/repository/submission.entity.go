package repository

import (
	"time"

	"gorm.io/datatypes"

	"github.com/voxleads/lead-relay/internal/model"
)

type SubmissionEntity struct {
	ID       string `gorm:"primaryKey;type:uuid;column:id"`
	TenantID string `gorm:"column:tenant_id;not null;index;uniqueIndex:ux_submission_tenant_key"`

	Scheme      string `gorm:"column:scheme;not null"`
	ParentRef   string `gorm:"column:parent_ref;not null"`
	LocationRef string `gorm:"column:location_ref;not null"`
	ProgramID   string `gorm:"column:program_id;not null"`

	FirstName string `gorm:"column:first_name;not null"`
	LastName  string `gorm:"column:last_name;not null"`
	Email     string `gorm:"column:email;not null;index"`
	Phone     string `gorm:"column:phone"`

	Answers  datatypes.JSONMap `gorm:"column:answers"`
	Metadata datatypes.JSONMap `gorm:"column:metadata"`

	ConsentGranted     bool      `gorm:"column:consent_granted"`
	ConsentTextVersion string    `gorm:"column:consent_text_version"`
	ConsentTimestamp   time.Time `gorm:"column:consent_timestamp"`

	IdempotencyKey    string  `gorm:"column:idempotency_key;not null;uniqueIndex:ux_submission_tenant_key"`
	Status            string  `gorm:"column:status;not null;index"`
	CrmLeadID         *string `gorm:"column:crm_lead_id"`
	LastStepCompleted int     `gorm:"column:last_step_completed;not null;default:0"`

	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
	DeliveredAt *time.Time `gorm:"column:delivered_at"`
}

func (SubmissionEntity) TableName() string { return "submissions" }

func toSubmissionEntity(m *model.Submission) *SubmissionEntity {
	if m == nil {
		return nil
	}
	e := &SubmissionEntity{
		ID:                 m.ID,
		TenantID:           m.TenantID,
		Scheme:             string(m.Target.Scheme),
		ParentRef:          m.Target.ParentRef(),
		LocationRef:        m.Target.LocationRef(),
		ProgramID:          m.Target.ProgramID,
		FirstName:          m.FirstName,
		LastName:           m.LastName,
		Email:              m.Email,
		Phone:              m.Phone,
		Answers:            datatypes.JSONMap(m.Answers),
		Metadata:           datatypes.JSONMap(m.Metadata),
		ConsentGranted:     m.Consent.Granted,
		ConsentTextVersion: m.Consent.TextVersion,
		ConsentTimestamp:   m.Consent.Timestamp,
		IdempotencyKey:     m.IdempotencyKey,
		Status:             string(m.Status),
		LastStepCompleted:  m.LastStepCompleted,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
		DeliveredAt:        m.DeliveredAt,
	}
	if m.CrmLeadID != "" {
		id := m.CrmLeadID
		e.CrmLeadID = &id
	}
	return e
}

func toSubmissionModel(e *SubmissionEntity) *model.Submission {
	if e == nil {
		return nil
	}
	target := model.TargetRef{
		Scheme:    model.AddressingScheme(e.Scheme),
		ProgramID: e.ProgramID,
	}
	if target.Scheme == model.SchemeLegacy {
		target.SchoolID = e.ParentRef
		target.CampusID = e.LocationRef
	} else {
		target.AccountID = e.ParentRef
		target.LocationID = e.LocationRef
	}

	m := &model.Submission{
		ID:        e.ID,
		TenantID:  e.TenantID,
		Target:    target,
		FirstName: e.FirstName,
		LastName:  e.LastName,
		Email:     e.Email,
		Phone:     e.Phone,
		Answers:   map[string]interface{}(e.Answers),
		Metadata:  map[string]interface{}(e.Metadata),
		Consent: model.Consent{
			Granted:     e.ConsentGranted,
			TextVersion: e.ConsentTextVersion,
			Timestamp:   e.ConsentTimestamp,
		},
		IdempotencyKey:    e.IdempotencyKey,
		Status:            model.SubmissionStatus(e.Status),
		LastStepCompleted: e.LastStepCompleted,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
		DeliveredAt:       e.DeliveredAt,
	}
	if e.CrmLeadID != nil {
		m.CrmLeadID = *e.CrmLeadID
	}
	return m
}
