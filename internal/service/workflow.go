package service

import (
	"context"
	"strconv"

	"github.com/tradielink/backend/internal/domain"
	"github.com/tradielink/backend/internal/events"
	"go.uber.org/zap"
)

// transitionKey identifies one edge of a state machine.
type transitionKey struct {
	Entity string
	From   string
	To     string
}

// SideEffect is one reaction to a committed transition.
type SideEffect func(ctx context.Context, event domain.Event)

// WorkflowCoordinator subscribes to the event bus and maps each committed
// transition to its side effects: refunds for losing applications,
// completion bonuses and notifications. Effects run after the transition's
// own commit; a failed effect is logged and never un-commits the transition.
// All compensations are idempotent per reference, so replaying an event is
// safe.
type WorkflowCoordinator struct {
	credits      *CreditService
	jobRepo      domain.JobRepository
	notifier     domain.Notifier
	logger       *zap.Logger
	bonusCredits int

	effects map[transitionKey][]SideEffect
}

// NewWorkflowCoordinator creates the coordinator and builds its transition
// table.
func NewWorkflowCoordinator(
	credits *CreditService,
	jobRepo domain.JobRepository,
	notifier domain.Notifier,
	logger *zap.Logger,
	bonusCredits int,
) *WorkflowCoordinator {
	c := &WorkflowCoordinator{
		credits:      credits,
		jobRepo:      jobRepo,
		notifier:     notifier,
		logger:       logger,
		bonusCredits: bonusCredits,
	}

	appKey := func(from, to domain.ApplicationStatus) transitionKey {
		return transitionKey{Entity: domain.EntityApplication, From: string(from), To: string(to)}
	}
	jobKey := func(from, to domain.JobStatus) transitionKey {
		return transitionKey{Entity: domain.EntityJob, From: string(from), To: string(to)}
	}

	c.effects = map[transitionKey][]SideEffect{
		appKey("", domain.ApplicationStatusSubmitted): {
			c.notifyJobClient(domain.NotifyNewApplication),
		},
		appKey(domain.ApplicationStatusSubmitted, domain.ApplicationStatusRejected): {
			c.refundApplication,
			c.notifyAccount(domain.NotifyApplicationLost),
		},
		appKey(domain.ApplicationStatusUnderReview, domain.ApplicationStatusRejected): {
			c.refundApplication,
			c.notifyAccount(domain.NotifyApplicationLost),
		},
		appKey(domain.ApplicationStatusSubmitted, domain.ApplicationStatusSelected): {
			c.notifyAccount(domain.NotifyApplicationWon),
		},
		appKey(domain.ApplicationStatusUnderReview, domain.ApplicationStatusSelected): {
			c.notifyAccount(domain.NotifyApplicationWon),
		},
		appKey(domain.ApplicationStatusSubmitted, domain.ApplicationStatusWithdrawn): {
			c.refundApplication,
			c.notifyJobClient(domain.NotifyApplicationGone),
		},
		appKey(domain.ApplicationStatusUnderReview, domain.ApplicationStatusWithdrawn): {
			c.refundApplication,
			c.notifyJobClient(domain.NotifyApplicationGone),
		},
		jobKey(domain.JobStatusAvailable, domain.JobStatusCancelled): {
			c.notifyAccount(domain.NotifyJobCancelled),
		},
		jobKey(domain.JobStatusAssigned, domain.JobStatusCancelled): {
			c.notifyAccount(domain.NotifyJobCancelled),
		},
		jobKey(domain.JobStatusAvailable, domain.JobStatusExpired): {
			c.notifyAccount(domain.NotifyJobExpired),
		},
		jobKey(domain.JobStatusAssigned, domain.JobStatusCompleted): {
			c.awardCompletionBonus,
			c.notifySelectedTradie(domain.NotifyJobCompleted),
		},
	}

	return c
}

// Register subscribes the coordinator to the bus.
func (c *WorkflowCoordinator) Register(bus *events.Bus) {
	bus.Subscribe(c.Handle)
}

// Handle dispatches one event through the transition table.
func (c *WorkflowCoordinator) Handle(ctx context.Context, event domain.Event) {
	key := transitionKey{Entity: event.Entity, From: event.From, To: event.To}
	for _, effect := range c.effects[key] {
		effect(ctx, event)
	}
}

// refundApplication returns the application fee named by the event. A zero
// credit amount means the refund was waived.
func (c *WorkflowCoordinator) refundApplication(ctx context.Context, event domain.Event) {
	if event.Credits <= 0 {
		return
	}
	_, err := c.credits.RefundCredits(ctx, event.AccountID, event.Credits,
		"application fee refund: "+event.Reason,
		strconv.FormatInt(event.EntityID, 10), "job_application")
	if err != nil {
		c.logger.Error("application refund failed",
			zap.Int64("application_id", event.EntityID),
			zap.Int64("account_id", event.AccountID),
			zap.Int("credits", event.Credits),
			zap.Error(err))
	}
}

// awardCompletionBonus grants the tradie the completion bonus, keyed on the
// job so a replay cannot award twice.
func (c *WorkflowCoordinator) awardCompletionBonus(ctx context.Context, event domain.Event) {
	if c.bonusCredits <= 0 {
		return
	}
	job, err := c.jobRepo.GetJob(ctx, event.JobID)
	if err != nil || job.SelectedTradieID == nil {
		c.logger.Error("cannot resolve tradie for completion bonus",
			zap.Int64("job_id", event.JobID),
			zap.Error(err))
		return
	}
	_, err = c.credits.AwardBonus(ctx, *job.SelectedTradieID, c.bonusCredits,
		"job completion bonus",
		strconv.FormatInt(event.JobID, 10), "marketplace_job", nil)
	if err != nil {
		c.logger.Error("completion bonus failed",
			zap.Int64("job_id", event.JobID),
			zap.Int64("tradie_id", *job.SelectedTradieID),
			zap.Error(err))
	}
}

// notifyAccount sends a notification to the account the event belongs to.
func (c *WorkflowCoordinator) notifyAccount(kind domain.NotificationKind) SideEffect {
	return func(ctx context.Context, event domain.Event) {
		c.send(ctx, event.AccountID, kind, event)
	}
}

// notifyJobClient sends a notification to the client who owns the event's
// job.
func (c *WorkflowCoordinator) notifyJobClient(kind domain.NotificationKind) SideEffect {
	return func(ctx context.Context, event domain.Event) {
		job, err := c.jobRepo.GetJob(ctx, event.JobID)
		if err != nil {
			c.logger.Warn("cannot resolve job client for notification",
				zap.Int64("job_id", event.JobID),
				zap.String("kind", string(kind)),
				zap.Error(err))
			return
		}
		c.send(ctx, job.ClientID, kind, event)
	}
}

// notifySelectedTradie sends a notification to the tradie assigned to the
// event's job.
func (c *WorkflowCoordinator) notifySelectedTradie(kind domain.NotificationKind) SideEffect {
	return func(ctx context.Context, event domain.Event) {
		job, err := c.jobRepo.GetJob(ctx, event.JobID)
		if err != nil || job.SelectedTradieID == nil {
			c.logger.Warn("cannot resolve tradie for notification",
				zap.Int64("job_id", event.JobID),
				zap.String("kind", string(kind)),
				zap.Error(err))
			return
		}
		c.send(ctx, *job.SelectedTradieID, kind, event)
	}
}

func (c *WorkflowCoordinator) send(ctx context.Context, accountID int64, kind domain.NotificationKind, event domain.Event) {
	data := map[string]string{
		"job_id": strconv.FormatInt(event.JobID, 10),
	}
	if event.Entity == domain.EntityApplication {
		data["application_id"] = strconv.FormatInt(event.EntityID, 10)
	}
	if event.Reason != "" {
		data["reason"] = event.Reason
	}
	if err := c.notifier.Send(ctx, accountID, kind, data); err != nil {
		c.logger.Warn("failed to send workflow notification",
			zap.Int64("account_id", accountID),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
}
