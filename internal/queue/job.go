package queue

import (
	"encoding/json"
	"fmt"

	"github.com/voxleads/lead-relay/internal/model"
)

// DeliveryJob is the unit of work carried on the stream. Attempt is 1-based
// and owned by the queue: handlers read it, the retry scheduler advances it.
type DeliveryJob struct {
	Type         model.JobType   `json:"type"`
	TenantID     string          `json:"tenant_id"`
	SubmissionID string          `json:"submission_id"`
	Target       model.TargetRef `json:"target"`
	StepIndex    int             `json:"step_index"`
	Attempt      int             `json:"attempt"`
}

// LogicalID identifies the job independent of queue entries, so re-enqueuing
// the same work is detectable. A create job is unique per submission; an
// update job is unique per submission and step.
func (j *DeliveryJob) LogicalID() string {
	if j.Type == model.JobTypeCreate {
		return fmt.Sprintf("create-%s", j.SubmissionID)
	}
	return fmt.Sprintf("update-%s-%d", j.SubmissionID, j.StepIndex)
}

func (j *DeliveryJob) Validate() error {
	if j.TenantID == "" {
		return fmt.Errorf("job tenant_id is required")
	}
	if j.SubmissionID == "" {
		return fmt.Errorf("job submission_id is required")
	}
	switch j.Type {
	case model.JobTypeCreate:
		if j.StepIndex != 0 {
			return fmt.Errorf("create job must have step_index 0")
		}
	case model.JobTypeUpdate:
		if j.StepIndex < 1 {
			return fmt.Errorf("update job requires step_index >= 1")
		}
	default:
		return fmt.Errorf("unknown job type: %s", j.Type)
	}
	return nil
}

func (j *DeliveryJob) encode() (string, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}
	return string(data), nil
}

func decodeJob(data string) (*DeliveryJob, error) {
	var job DeliveryJob
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}
