package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/voxleads/lead-relay/internal/model"
	"github.com/voxleads/lead-relay/pkg/logger"
)

// store is the durable side of the trail.
type store interface {
	Append(ctx context.Context, event *model.AuditEvent) (*model.AuditEvent, error)
}

// Publisher fans audit events out to an external bus. Optional; the DB row
// is the source of truth.
type Publisher interface {
	Publish(ctx context.Context, event *model.AuditEvent) error
}

// Recorder writes the audit trail. Recording is best effort everywhere it is
// called from: a failed audit write is logged, never propagated, so the
// pipeline does not stall on its own bookkeeping.
type Recorder struct {
	store     store
	publisher Publisher
}

func NewRecorder(store store, publisher Publisher) *Recorder {
	return &Recorder{store: store, publisher: publisher}
}

func (r *Recorder) Record(ctx context.Context, tenantID, submissionID, actor string, action model.AuditAction, detail map[string]interface{}) {
	event := &model.AuditEvent{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		SubmissionID: submissionID,
		Actor:        actor,
		Action:       action,
		Detail:       detail,
		CreatedAt:    time.Now(),
	}

	if _, err := r.store.Append(ctx, event); err != nil {
		logger.Error("failed to append audit event",
			"tenant", tenantID, "submission", submissionID, "action", string(action), "error", err)
		return
	}

	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, event); err != nil {
			logger.Warn("failed to publish audit event",
				"tenant", tenantID, "action", string(action), "error", err)
		}
	}
}
