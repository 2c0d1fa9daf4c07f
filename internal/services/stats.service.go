package services

import (
	"context"
	"time"

	"github.com/voxleads/lead-relay/internal/model"
	"github.com/voxleads/lead-relay/internal/queue"
)

type AttemptStatsRepository interface {
	Stats(ctx context.Context, tenantID string, since time.Time) (*model.DeliveryStats, error)
	ListBySubmission(ctx context.Context, tenantID, submissionID string) ([]*model.DeliveryAttempt, error)
}

type QueueStatsProvider interface {
	GetStats() (*queue.Stats, error)
}

// PipelineStats is the operator-facing snapshot of the delivery pipeline.
type PipelineStats struct {
	Queue    *queue.Stats         `json:"queue"`
	Delivery *model.DeliveryStats `json:"delivery"`
}

type StatsService struct {
	attempts AttemptStatsRepository
	queue    QueueStatsProvider
}

func NewStatsService(attempts AttemptStatsRepository, queue QueueStatsProvider) *StatsService {
	return &StatsService{attempts: attempts, queue: queue}
}

// Pipeline aggregates queue depth with delivery outcomes over the window.
// tenantID may be empty for a fleet-wide view.
func (s *StatsService) Pipeline(ctx context.Context, tenantID string, window time.Duration) (*PipelineStats, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}

	deliveryStats, err := s.attempts.Stats(ctx, tenantID, time.Now().Add(-window))
	if err != nil {
		return nil, err
	}

	queueStats, err := s.queue.GetStats()
	if err != nil {
		return nil, err
	}

	return &PipelineStats{
		Queue:    queueStats,
		Delivery: deliveryStats,
	}, nil
}

// Attempts lists the delivery history of one submission.
func (s *StatsService) Attempts(ctx context.Context, tenantID, submissionID string) ([]*model.DeliveryAttempt, error) {
	return s.attempts.ListBySubmission(ctx, tenantID, submissionID)
}
