package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradielink/backend/internal/domain"
	"github.com/tradielink/backend/internal/events"
	"go.uber.org/zap"
)

func newJobTestEnv() (*JobService, *fakeJobRepo, *events.Bus) {
	jobRepo := newFakeJobRepo()
	bus := events.NewBus(nil, zap.NewNop())
	return NewJobService(jobRepo, bus, zap.NewNop(), 72*time.Hour), jobRepo, bus
}

func TestJobService_CreateJob(t *testing.T) {
	ctx := context.Background()

	t.Run("Success defaults the expiry window", func(t *testing.T) {
		svc, _, _ := newJobTestEnv()

		job, err := svc.CreateJob(ctx, 1, &domain.MarketplaceJob{
			JobType:  "plumbing",
			Location: "Sydney",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusAvailable, job.Status)
		assert.Equal(t, domain.UrgencyStandard, job.UrgencyLevel)
		assert.WithinDuration(t, time.Now().Add(72*time.Hour), job.ExpiresAt, time.Minute)
	})

	t.Run("Missing fields", func(t *testing.T) {
		svc, _, _ := newJobTestEnv()

		_, err := svc.CreateJob(ctx, 1, &domain.MarketplaceJob{JobType: "plumbing"})
		assert.Error(t, err)
	})

	t.Run("Unknown urgency", func(t *testing.T) {
		svc, _, _ := newJobTestEnv()

		_, err := svc.CreateJob(ctx, 1, &domain.MarketplaceJob{
			JobType:      "plumbing",
			Location:     "Sydney",
			UrgencyLevel: "yesterday",
		})
		assert.Error(t, err)
	})
}

func TestJobService_GetJob_LazyExpiry(t *testing.T) {
	ctx := context.Background()
	svc, jobRepo, bus := newJobTestEnv()

	var expiredEvents int
	bus.Subscribe(func(_ context.Context, event domain.Event) {
		if event.Entity == domain.EntityJob && event.To == string(domain.JobStatusExpired) {
			expiredEvents++
		}
	})

	jobRepo.put(&domain.MarketplaceJob{
		ID:        5,
		ClientID:  1,
		Status:    domain.JobStatusAvailable,
		ExpiresAt: time.Now().Add(-time.Hour),
	})

	job, err := svc.GetJob(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusExpired, job.Status)
	assert.Equal(t, 1, expiredEvents)

	// A second read sees the settled status without another event.
	job, err = svc.GetJob(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusExpired, job.Status)
	assert.Equal(t, 1, expiredEvents)
}

func TestJobService_UpdateJobStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("Manual assignment rejected", func(t *testing.T) {
		svc, jobRepo, _ := newJobTestEnv()
		jobRepo.put(&domain.MarketplaceJob{ID: 5, ClientID: 1, Status: domain.JobStatusAvailable, ExpiresAt: time.Now().Add(time.Hour)})

		_, err := svc.UpdateJobStatus(ctx, 5, 1, domain.JobStatusAssigned)
		assert.ErrorIs(t, err, domain.ErrInvalidStatusTransition)
	})

	t.Run("Manual expiry rejected", func(t *testing.T) {
		svc, jobRepo, _ := newJobTestEnv()
		jobRepo.put(&domain.MarketplaceJob{ID: 5, ClientID: 1, Status: domain.JobStatusAvailable, ExpiresAt: time.Now().Add(time.Hour)})

		_, err := svc.UpdateJobStatus(ctx, 5, 1, domain.JobStatusExpired)
		assert.ErrorIs(t, err, domain.ErrInvalidStatusTransition)
	})

	t.Run("Cancel publishes the transition", func(t *testing.T) {
		svc, jobRepo, bus := newJobTestEnv()
		jobRepo.put(&domain.MarketplaceJob{ID: 5, ClientID: 1, Status: domain.JobStatusAvailable, ExpiresAt: time.Now().Add(time.Hour)})

		var cancelled bool
		bus.Subscribe(func(_ context.Context, event domain.Event) {
			if event.To == string(domain.JobStatusCancelled) {
				cancelled = true
			}
		})

		job, err := svc.UpdateJobStatus(ctx, 5, 1, domain.JobStatusCancelled)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusCancelled, job.Status)
		assert.True(t, cancelled)
	})

	t.Run("Cancelling an assigned job reports the prior status", func(t *testing.T) {
		svc, jobRepo, bus := newJobTestEnv()
		tradieID := int64(7)
		jobRepo.put(&domain.MarketplaceJob{
			ID: 5, ClientID: 1, Status: domain.JobStatusAssigned,
			SelectedTradieID: &tradieID, ExpiresAt: time.Now().Add(time.Hour),
		})

		var cancelled []domain.Event
		bus.Subscribe(func(_ context.Context, event domain.Event) {
			if event.Entity == domain.EntityJob && event.To == string(domain.JobStatusCancelled) {
				cancelled = append(cancelled, event)
			}
		})

		_, err := svc.UpdateJobStatus(ctx, 5, 1, domain.JobStatusCancelled)
		require.NoError(t, err)
		require.Len(t, cancelled, 1)
		assert.Equal(t, string(domain.JobStatusAssigned), cancelled[0].From)
	})

	t.Run("Complete requires an assigned job", func(t *testing.T) {
		svc, jobRepo, _ := newJobTestEnv()
		jobRepo.put(&domain.MarketplaceJob{ID: 5, ClientID: 1, Status: domain.JobStatusAvailable, ExpiresAt: time.Now().Add(time.Hour)})

		_, err := svc.UpdateJobStatus(ctx, 5, 1, domain.JobStatusCompleted)
		assert.ErrorIs(t, err, domain.ErrInvalidStatusTransition)
	})
}
