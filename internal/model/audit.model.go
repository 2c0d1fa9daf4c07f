package model

import "time"

type AuditAction string

const (
	AuditLeadReceived      AuditAction = "lead.received"
	AuditLeadDuplicate     AuditAction = "lead.duplicate"
	AuditStepMerged        AuditAction = "lead.step_merged"
	AuditDeliverySucceeded AuditAction = "delivery.succeeded"
	AuditDeliveryRetried   AuditAction = "delivery.retry_scheduled"
	AuditDeliveryFailed    AuditAction = "delivery.failed"
	AuditDeliverySkipped   AuditAction = "delivery.skipped"
	AuditTenantMismatch    AuditAction = "delivery.tenant_mismatch"
)

// AuditEvent is one append-only trail entry. Written on every lifecycle
// transition by both the intake API and the delivery worker.
type AuditEvent struct {
	ID           string                 `json:"id"`
	TenantID     string                 `json:"tenant_id"`
	SubmissionID string                 `json:"submission_id,omitempty"`
	Actor        string                 `json:"actor"`
	Action       AuditAction            `json:"action"`
	Detail       map[string]interface{} `json:"detail,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}
