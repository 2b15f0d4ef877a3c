package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tradielink/backend/internal/domain"
	"github.com/tradielink/backend/internal/events"
	"go.uber.org/zap"
)

// JobService owns the marketplace job state machine. Every transition that
// commits publishes one event per changed entity; the workflow coordinator
// turns those into refunds and notifications.
type JobService struct {
	jobRepo      domain.JobRepository
	bus          *events.Bus
	logger       *zap.Logger
	expiryWindow time.Duration
}

// NewJobService creates a JobService.
func NewJobService(jobRepo domain.JobRepository, bus *events.Bus, logger *zap.Logger, expiryWindow time.Duration) *JobService {
	return &JobService{
		jobRepo:      jobRepo,
		bus:          bus,
		logger:       logger,
		expiryWindow: expiryWindow,
	}
}

// CreateJob posts a new job for the client. Only client accounts may post;
// the handler enforces the role, the service validates the rest.
func (s *JobService) CreateJob(ctx context.Context, clientID int64, job *domain.MarketplaceJob) (*domain.MarketplaceJob, error) {
	if job.JobType == "" || job.Location == "" {
		return nil, fmt.Errorf("job service: job type and location are required: %w", domain.ErrInvalidInput)
	}
	switch job.UrgencyLevel {
	case domain.UrgencyStandard, domain.UrgencyUrgent, domain.UrgencyEmergency:
	case "":
		job.UrgencyLevel = domain.UrgencyStandard
	default:
		return nil, fmt.Errorf("job service: unknown urgency level %q: %w", job.UrgencyLevel, domain.ErrInvalidInput)
	}
	if job.EstimatedBudget < 0 {
		return nil, fmt.Errorf("job service: estimated budget must not be negative: %w", domain.ErrInvalidInput)
	}

	job.ClientID = clientID
	if job.ExpiresAt.IsZero() {
		job.ExpiresAt = time.Now().Add(s.expiryWindow)
	}
	if job.DateRequired.IsZero() {
		job.DateRequired = job.ExpiresAt
	}

	created, err := s.jobRepo.CreateJob(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("job service: %w", err)
	}
	return created, nil
}

// GetJob returns a job, lazily expiring it when its window has passed. The
// read path and the background sweep share the same expiry handler, so
// whichever observes the deadline first wins and the other sees the result.
func (s *JobService) GetJob(ctx context.Context, jobID int64) (*domain.MarketplaceJob, error) {
	job, err := s.jobRepo.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("job service: %w", err)
	}

	if job.Status == domain.JobStatusAvailable && time.Now().After(job.ExpiresAt) {
		expired, expireErr := s.ExpireJob(ctx, jobID)
		if expireErr == nil {
			return expired, nil
		}
		if !errors.Is(expireErr, domain.ErrInvalidStatusTransition) {
			s.logger.Warn("lazy job expiry failed", zap.Int64("job_id", jobID), zap.Error(expireErr))
		}
		// Lost the race to the sweep; re-read for the settled status.
		return s.jobRepo.GetJob(ctx, jobID)
	}

	return job, nil
}

// ListJobsByClient returns the client's jobs.
func (s *JobService) ListJobsByClient(ctx context.Context, clientID int64) ([]*domain.MarketplaceJob, error) {
	jobs, err := s.jobRepo.ListJobsByClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("job service: %w", err)
	}
	return jobs, nil
}

// UpdateJobStatus dispatches a client-requested transition. Assigned is only
// reachable through application selection and expired only through the
// expiry handler, so both are rejected here.
func (s *JobService) UpdateJobStatus(ctx context.Context, jobID, clientID int64, to domain.JobStatus) (*domain.MarketplaceJob, error) {
	switch to {
	case domain.JobStatusCancelled:
		return s.CancelJob(ctx, jobID, clientID)
	case domain.JobStatusCompleted:
		return s.CompleteJob(ctx, jobID, clientID)
	default:
		return nil, domain.ErrInvalidStatusTransition
	}
}

// CancelJob cancels the client's job and closes its open applications. Each
// rejected application carries its refundable credits into the event stream.
func (s *JobService) CancelJob(ctx context.Context, jobID, clientID int64) (*domain.MarketplaceJob, error) {
	job, from, rejected, err := s.jobRepo.CancelJob(ctx, jobID, clientID)
	if err != nil {
		if isWorkflowError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("job service: %w", err)
	}

	s.bus.Publish(ctx, domain.JobEvent(job, from, domain.JobStatusCancelled, "client cancelled"))
	s.publishRejections(ctx, jobID, rejected, "job cancelled")
	return job, nil
}

// CompleteJob marks the client's assigned job as completed.
func (s *JobService) CompleteJob(ctx context.Context, jobID, clientID int64) (*domain.MarketplaceJob, error) {
	job, err := s.jobRepo.CompleteJob(ctx, jobID, clientID)
	if err != nil {
		if isWorkflowError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("job service: %w", err)
	}

	s.bus.Publish(ctx, domain.JobEvent(job, domain.JobStatusAssigned, domain.JobStatusCompleted, "client completed"))
	return job, nil
}

// ExpireJob expires one job past its window and closes its open
// applications.
func (s *JobService) ExpireJob(ctx context.Context, jobID int64) (*domain.MarketplaceJob, error) {
	job, rejected, err := s.jobRepo.ExpireJob(ctx, jobID)
	if err != nil {
		if isWorkflowError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("job service: %w", err)
	}

	s.bus.Publish(ctx, domain.JobEvent(job, domain.JobStatusAvailable, domain.JobStatusExpired, "expiry window passed"))
	s.publishRejections(ctx, jobID, rejected, "job expired")
	return job, nil
}

// DueForExpiry lists available jobs past their window. Called by the
// background sweep.
func (s *JobService) DueForExpiry(ctx context.Context, limit int) ([]int64, error) {
	ids, err := s.jobRepo.DueForExpiry(ctx, time.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("job service: %w", err)
	}
	return ids, nil
}

func (s *JobService) publishRejections(ctx context.Context, jobID int64, rejected []domain.RejectedSibling, reason string) {
	for _, sibling := range rejected {
		app := &domain.JobApplication{
			ID:               sibling.ApplicationID,
			MarketplaceJobID: jobID,
			TradieID:         sibling.TradieID,
		}
		s.bus.Publish(ctx, domain.ApplicationEvent(app, sibling.From, domain.ApplicationStatusRejected, sibling.CreditsUsed, reason))
	}
}

// isWorkflowError reports whether err is a sentinel the handlers map to a
// client-facing code, as opposed to an infrastructure failure.
func isWorkflowError(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrUnauthorized) ||
		errors.Is(err, domain.ErrInvalidStatusTransition) ||
		errors.Is(err, domain.ErrJobNotAvailable) ||
		errors.Is(err, domain.ErrJobExpired) ||
		errors.Is(err, domain.ErrDuplicateApplication)
}
