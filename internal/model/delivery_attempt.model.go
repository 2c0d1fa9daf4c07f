package model

import "time"

type JobType string

const (
	JobTypeCreate JobType = "create"
	JobTypeUpdate JobType = "update"
)

type AttemptStatus string

const (
	AttemptStatusStarted   AttemptStatus = "started"
	AttemptStatusDelivered AttemptStatus = "delivered"
	AttemptStatusFailed    AttemptStatus = "failed"
)

// DeliveryAttempt is one execution of one delivery job. Rows are inserted
// when processing starts and updated in place once the adapter call
// resolves; they double as the dedup ledger (at most one delivered row per
// submission/jobType/stepIndex, enforced by a partial unique index).
type DeliveryAttempt struct {
	ID            string        `json:"id"`
	TenantID      string        `json:"tenant_id"`
	SubmissionID  string        `json:"submission_id"`
	AttemptNumber int           `json:"attempt_number"`
	JobType       JobType       `json:"job_type"`
	StepIndex     int           `json:"step_index"`
	Status        AttemptStatus `json:"status"`
	ResponseCode  int           `json:"response_code,omitempty"`
	ResponseBody  string        `json:"response_body,omitempty"`
	Error         string        `json:"error,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// DeliveryStats aggregates ledger outcomes for one tenant over a window.
type DeliveryStats struct {
	TenantID  string    `json:"tenant_id,omitempty"`
	Delivered int64     `json:"delivered"`
	Failed    int64     `json:"failed"`
	Since     time.Time `json:"since"`
}
