package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxleads/lead-relay/internal/model"
)

func testAttempt(submissionID string, jobType model.JobType, step, number int) *model.DeliveryAttempt {
	return &model.DeliveryAttempt{
		TenantID:      "tenant-1",
		SubmissionID:  submissionID,
		AttemptNumber: number,
		JobType:       jobType,
		StepIndex:     step,
	}
}

func TestDeliveryAttemptRepository_StartFinish(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewDeliveryAttemptRepository(db)
	ctx := context.Background()

	started, err := repo.Start(ctx, testAttempt("sub-1", model.JobTypeCreate, 0, 1))
	require.NoError(t, err)
	assert.NotEmpty(t, started.ID)
	assert.Equal(t, model.AttemptStatusStarted, started.Status)

	err = repo.Finish(ctx, started.ID, model.AttemptStatusDelivered, 200, `{"id":"crm-1"}`, "")
	require.NoError(t, err)

	attempts, err := repo.ListBySubmission(ctx, "tenant-1", "sub-1")
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, model.AttemptStatusDelivered, attempts[0].Status)
	assert.Equal(t, 200, attempts[0].ResponseCode)
}

func TestDeliveryAttemptRepository_ResponseBodyCapped(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewDeliveryAttemptRepository(db)
	ctx := context.Background()

	started, err := repo.Start(ctx, testAttempt("sub-cap", model.JobTypeCreate, 0, 1))
	require.NoError(t, err)

	huge := strings.Repeat("x", maxResponseBodyLen*2)
	err = repo.Finish(ctx, started.ID, model.AttemptStatusFailed, 500, huge, "server error")
	require.NoError(t, err)

	attempts, err := repo.ListBySubmission(ctx, "tenant-1", "sub-cap")
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Len(t, attempts[0].ResponseBody, maxResponseBodyLen)
}

func TestDeliveryAttemptRepository_HasDelivered(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewDeliveryAttemptRepository(db)
	ctx := context.Background()

	started, err := repo.Start(ctx, testAttempt("sub-2", model.JobTypeUpdate, 2, 1))
	require.NoError(t, err)
	require.NoError(t, repo.Finish(ctx, started.ID, model.AttemptStatusDelivered, 200, "", ""))

	t.Run("same step delivered", func(t *testing.T) {
		ok, err := repo.HasDelivered(ctx, "sub-2", model.JobTypeUpdate, 2)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("other step not delivered", func(t *testing.T) {
		ok, err := repo.HasDelivered(ctx, "sub-2", model.JobTypeUpdate, 3)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("job type is part of the key", func(t *testing.T) {
		ok, err := repo.HasDelivered(ctx, "sub-2", model.JobTypeCreate, 2)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("failed attempts do not count", func(t *testing.T) {
		failed, err := repo.Start(ctx, testAttempt("sub-3", model.JobTypeCreate, 0, 1))
		require.NoError(t, err)
		require.NoError(t, repo.Finish(ctx, failed.ID, model.AttemptStatusFailed, 502, "", "bad gateway"))

		ok, err := repo.HasDelivered(ctx, "sub-3", model.JobTypeCreate, 0)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestDeliveryAttemptRepository_CountForStep(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewDeliveryAttemptRepository(db)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		started, err := repo.Start(ctx, testAttempt("sub-count", model.JobTypeCreate, 0, i))
		require.NoError(t, err)
		require.NoError(t, repo.Finish(ctx, started.ID, model.AttemptStatusFailed, 503, "", "unavailable"))
	}

	count, err := repo.CountForStep(ctx, "sub-count", model.JobTypeCreate, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestDeliveryAttemptRepository_Stats(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewDeliveryAttemptRepository(db)
	ctx := context.Background()

	seed := func(tenantID string, status model.AttemptStatus) {
		a := testAttempt("sub-stats", model.JobTypeCreate, 0, 1)
		a.TenantID = tenantID
		started, err := repo.Start(ctx, a)
		require.NoError(t, err)
		require.NoError(t, repo.Finish(ctx, started.ID, status, 200, "", ""))
	}

	seed("tenant-1", model.AttemptStatusDelivered)
	seed("tenant-1", model.AttemptStatusDelivered)
	seed("tenant-1", model.AttemptStatusFailed)
	seed("tenant-2", model.AttemptStatusDelivered)

	since := time.Now().Add(-time.Hour)

	t.Run("scoped to one tenant", func(t *testing.T) {
		stats, err := repo.Stats(ctx, "tenant-1", since)
		require.NoError(t, err)
		assert.Equal(t, int64(2), stats.Delivered)
		assert.Equal(t, int64(1), stats.Failed)
	})

	t.Run("all tenants", func(t *testing.T) {
		stats, err := repo.Stats(ctx, "", since)
		require.NoError(t, err)
		assert.Equal(t, int64(3), stats.Delivered)
		assert.Equal(t, int64(1), stats.Failed)
	})

	t.Run("window excludes old rows", func(t *testing.T) {
		stats, err := repo.Stats(ctx, "tenant-1", time.Now().Add(time.Hour))
		require.NoError(t, err)
		assert.Zero(t, stats.Delivered)
		assert.Zero(t, stats.Failed)
	})
}
