package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/tradielink/backend/internal/domain"
	"github.com/tradielink/backend/internal/events"
	"go.uber.org/zap"
)

// ApplicationService owns the job application state machine. Submission
// spends credits and creates the application in one repository transaction;
// the losing side of every close is compensated through events.
type ApplicationService struct {
	appRepo  domain.ApplicationRepository
	jobs     *JobService
	credits  *CreditService
	policies *UsagePolicyTable
	bus      *events.Bus
	logger   *zap.Logger
}

// NewApplicationService creates an ApplicationService.
func NewApplicationService(
	appRepo domain.ApplicationRepository,
	jobs *JobService,
	credits *CreditService,
	policies *UsagePolicyTable,
	bus *events.Bus,
	logger *zap.Logger,
) *ApplicationService {
	return &ApplicationService{
		appRepo:  appRepo,
		jobs:     jobs,
		credits:  credits,
		policies: policies,
		bus:      bus,
		logger:   logger,
	}
}

// CreateApplication submits a tradie's bid on a job, debiting the
// application fee atomically with the insert. Reading the job first gives
// the lazy expiry a chance to settle an overdue job before the submission
// locks it.
func (s *ApplicationService) CreateApplication(ctx context.Context, tradieID int64, app *domain.JobApplication) (*domain.JobApplication, error) {
	if app.CustomQuote < 0 {
		return nil, fmt.Errorf("application service: quote must not be negative: %w", domain.ErrInvalidInput)
	}

	policy, err := s.policies.Lookup(domain.UsageTypeJobApplication)
	if err != nil {
		return nil, err
	}

	if _, err := s.jobs.GetJob(ctx, app.MarketplaceJobID); err != nil {
		if isWorkflowError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("application service: %w", err)
	}

	app.TradieID = tradieID
	created, balance, err := s.appRepo.SubmitApplication(ctx, app, domain.UsageDebit{
		UsageType:     domain.UsageTypeJobApplication,
		Credits:       policy.CreditsRequired,
		MaxPerDay:     policy.MaxPerDay,
		MaxPerMonth:   policy.MaxPerMonth,
		Description:   "job application",
		ReferenceID:   strconv.FormatInt(app.MarketplaceJobID, 10),
		ReferenceType: "marketplace_job",
	})
	if err != nil {
		if isWorkflowError(err) ||
			errors.Is(err, domain.ErrInsufficientBalance) ||
			errors.Is(err, domain.ErrUsageLimitExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("application service: %w", err)
	}

	s.credits.ObserveDebit(ctx, tradieID, balance.CurrentBalance)
	s.bus.Publish(ctx, domain.ApplicationEvent(created, "", domain.ApplicationStatusSubmitted, 0, "tradie applied"))
	return created, nil
}

// GetApplication returns one application. Only the applicant and the job's
// client may read it.
func (s *ApplicationService) GetApplication(ctx context.Context, applicationID, actorID int64) (*domain.JobApplication, error) {
	app, err := s.appRepo.GetApplication(ctx, applicationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("application service: %w", err)
	}
	if app.TradieID == actorID {
		return app, nil
	}
	job, err := s.jobs.GetJob(ctx, app.MarketplaceJobID)
	if err != nil {
		return nil, fmt.Errorf("application service: %w", err)
	}
	if job.ClientID != actorID {
		return nil, domain.ErrUnauthorized
	}
	return app, nil
}

// ListByJob returns a job's applications for its client.
func (s *ApplicationService) ListByJob(ctx context.Context, jobID, clientID int64) ([]*domain.JobApplication, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		if isWorkflowError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("application service: %w", err)
	}
	if job.ClientID != clientID {
		return nil, domain.ErrUnauthorized
	}

	apps, err := s.appRepo.ListByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("application service: %w", err)
	}
	return apps, nil
}

// ListByTradie returns the tradie's own applications.
func (s *ApplicationService) ListByTradie(ctx context.Context, tradieID int64) ([]*domain.JobApplication, error) {
	apps, err := s.appRepo.ListByTradie(ctx, tradieID)
	if err != nil {
		return nil, fmt.Errorf("application service: %w", err)
	}
	return apps, nil
}

// UpdateApplicationStatus dispatches a client-requested transition.
// Withdrawn belongs to the tradie and submitted is entry-only, so only
// under_review, rejected and selected are reachable here.
func (s *ApplicationService) UpdateApplicationStatus(ctx context.Context, applicationID, clientID int64, to domain.ApplicationStatus) (*domain.JobApplication, error) {
	switch to {
	case domain.ApplicationStatusUnderReview:
		return s.MarkUnderReview(ctx, applicationID, clientID)
	case domain.ApplicationStatusRejected:
		return s.RejectApplication(ctx, applicationID, clientID)
	case domain.ApplicationStatusSelected:
		return s.SelectApplication(ctx, applicationID, clientID)
	default:
		return nil, domain.ErrInvalidStatusTransition
	}
}

// MarkUnderReview moves a submitted application under review.
func (s *ApplicationService) MarkUnderReview(ctx context.Context, applicationID, clientID int64) (*domain.JobApplication, error) {
	app, err := s.appRepo.MarkUnderReview(ctx, applicationID, clientID)
	if err != nil {
		if isWorkflowError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("application service: %w", err)
	}

	s.bus.Publish(ctx, domain.ApplicationEvent(app, domain.ApplicationStatusSubmitted, domain.ApplicationStatusUnderReview, 0, "client reviewing"))
	return app, nil
}

// RejectApplication closes one open application; the fee comes back to the
// tradie through the rejection event.
func (s *ApplicationService) RejectApplication(ctx context.Context, applicationID, clientID int64) (*domain.JobApplication, error) {
	app, from, err := s.appRepo.RejectApplication(ctx, applicationID, clientID)
	if err != nil {
		if isWorkflowError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("application service: %w", err)
	}

	s.bus.Publish(ctx, domain.ApplicationEvent(app, from, domain.ApplicationStatusRejected, app.CreditsUsed, "client rejected"))
	return app, nil
}

// SelectApplication picks the winner. The job is assigned to the tradie and
// every other open application is rejected with its refund, all committed
// together before any event fires.
func (s *ApplicationService) SelectApplication(ctx context.Context, applicationID, clientID int64) (*domain.JobApplication, error) {
	selected, from, job, rejected, err := s.appRepo.SelectApplication(ctx, applicationID, clientID)
	if err != nil {
		if isWorkflowError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("application service: %w", err)
	}

	s.bus.Publish(ctx, domain.ApplicationEvent(selected, from, domain.ApplicationStatusSelected, 0, "client selected"))
	s.bus.Publish(ctx, domain.JobEvent(job, domain.JobStatusAvailable, domain.JobStatusAssigned, "application selected"))
	for _, sibling := range rejected {
		app := &domain.JobApplication{
			ID:               sibling.ApplicationID,
			MarketplaceJobID: job.ID,
			TradieID:         sibling.TradieID,
		}
		s.bus.Publish(ctx, domain.ApplicationEvent(app, sibling.From, domain.ApplicationStatusRejected, sibling.CreditsUsed, "another tradie selected"))
	}
	return selected, nil
}

// WithdrawApplication closes the tradie's own open application. The fee is
// refunded unless the tradie opts out.
func (s *ApplicationService) WithdrawApplication(ctx context.Context, applicationID, tradieID int64, forgoRefund bool) (*domain.JobApplication, error) {
	app, from, err := s.appRepo.WithdrawApplication(ctx, applicationID, tradieID)
	if err != nil {
		if isWorkflowError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("application service: %w", err)
	}

	credits := app.CreditsUsed
	if forgoRefund {
		credits = 0
	}
	s.bus.Publish(ctx, domain.ApplicationEvent(app, from, domain.ApplicationStatusWithdrawn, credits, "tradie withdrew"))
	return app, nil
}
