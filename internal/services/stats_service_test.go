package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/voxleads/lead-relay/internal/model"
	"github.com/voxleads/lead-relay/internal/queue"
)

type mockAttemptStats struct{ mock.Mock }

func (m *mockAttemptStats) Stats(ctx context.Context, tenantID string, since time.Time) (*model.DeliveryStats, error) {
	args := m.Called(ctx, tenantID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DeliveryStats), args.Error(1)
}

func (m *mockAttemptStats) ListBySubmission(ctx context.Context, tenantID, submissionID string) ([]*model.DeliveryAttempt, error) {
	args := m.Called(ctx, tenantID, submissionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.DeliveryAttempt), args.Error(1)
}

type mockQueueStats struct{ mock.Mock }

func (m *mockQueueStats) GetStats() (*queue.Stats, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*queue.Stats), args.Error(1)
}

func TestStatsService_Pipeline(t *testing.T) {
	ctx := context.Background()

	t.Run("aggregates queue and delivery stats", func(t *testing.T) {
		attempts := new(mockAttemptStats)
		q := new(mockQueueStats)
		svc := NewStatsService(attempts, q)

		attempts.On("Stats", ctx, "tenant-1", mock.MatchedBy(func(since time.Time) bool {
			return time.Since(since) > 23*time.Hour && time.Since(since) < 25*time.Hour
		})).Return(&model.DeliveryStats{Delivered: 10, Failed: 2}, nil)
		q.On("GetStats").Return(&queue.Stats{Ready: 3, Scheduled: 1}, nil)

		stats, err := svc.Pipeline(ctx, "tenant-1", 24*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, int64(10), stats.Delivery.Delivered)
		assert.Equal(t, int64(3), stats.Queue.Ready)
	})

	t.Run("zero window defaults to a day", func(t *testing.T) {
		attempts := new(mockAttemptStats)
		q := new(mockQueueStats)
		svc := NewStatsService(attempts, q)

		attempts.On("Stats", ctx, "", mock.MatchedBy(func(since time.Time) bool {
			return time.Since(since) > 23*time.Hour
		})).Return(&model.DeliveryStats{}, nil)
		q.On("GetStats").Return(&queue.Stats{}, nil)

		_, err := svc.Pipeline(ctx, "", 0)
		require.NoError(t, err)
		attempts.AssertExpectations(t)
	})

	t.Run("queue error propagates", func(t *testing.T) {
		attempts := new(mockAttemptStats)
		q := new(mockQueueStats)
		svc := NewStatsService(attempts, q)

		attempts.On("Stats", ctx, "", mock.Anything).Return(&model.DeliveryStats{}, nil)
		q.On("GetStats").Return(nil, assert.AnError)

		_, err := svc.Pipeline(ctx, "", time.Hour)
		assert.Error(t, err)
	})
}

func TestStatsService_Attempts(t *testing.T) {
	ctx := context.Background()

	attempts := new(mockAttemptStats)
	q := new(mockQueueStats)
	svc := NewStatsService(attempts, q)

	attempts.On("ListBySubmission", ctx, "tenant-1", "sub-1").
		Return([]*model.DeliveryAttempt{{ID: "att-1"}}, nil)

	list, err := svc.Attempts(ctx, "tenant-1", "sub-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "att-1", list[0].ID)
}
