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

type applicationTestEnv struct {
	apps     *ApplicationService
	appRepo  *stubAppRepo
	jobRepo  *fakeJobRepo
	bus      *events.Bus
	credits  *CreditService
	notifier *fakeNotifier
}

func newApplicationTestEnv(t *testing.T) *applicationTestEnv {
	t.Helper()

	balanceRepo := newFakeBalanceRepo()
	jobRepo := newFakeJobRepo()
	notifier := &fakeNotifier{}
	logger := zap.NewNop()
	catalog := NewPackageCatalog()

	alerter := NewBalanceAlerter(notifier, logger, 10, 3)
	topup := NewAutoTopupController(newFakeTopupRepo(), balanceRepo, catalog,
		&fakeGateway{}, notifier, logger, time.Second)
	credits := NewCreditService(balanceRepo, &fakeTransactionRepo{}, NewUsagePolicyTable(),
		catalog, &fakeGateway{}, alerter, topup, logger, time.Second, 20)

	bus := events.NewBus(nil, logger)
	appRepo := &stubAppRepo{}
	jobs := NewJobService(jobRepo, bus, logger, 72*time.Hour)
	apps := NewApplicationService(appRepo, jobs, credits, NewUsagePolicyTable(), bus, logger)

	return &applicationTestEnv{
		apps:     apps,
		appRepo:  appRepo,
		jobRepo:  jobRepo,
		bus:      bus,
		credits:  credits,
		notifier: notifier,
	}
}

func TestApplicationService_CreateApplication(t *testing.T) {
	ctx := context.Background()

	t.Run("Success publishes the submission", func(t *testing.T) {
		env := newApplicationTestEnv(t)
		env.jobRepo.put(&domain.MarketplaceJob{ID: 5, ClientID: 1, Status: domain.JobStatusAvailable, ExpiresAt: time.Now().Add(time.Hour)})

		var submitted []domain.Event
		env.bus.Subscribe(func(_ context.Context, event domain.Event) {
			if event.To == string(domain.ApplicationStatusSubmitted) {
				submitted = append(submitted, event)
			}
		})

		env.appRepo.submitFn = func(app *domain.JobApplication, debit domain.UsageDebit) (*domain.JobApplication, *domain.CreditBalance, error) {
			assert.Equal(t, domain.UsageTypeJobApplication, debit.UsageType)
			assert.Equal(t, 5, debit.Credits)
			assert.Equal(t, "5", debit.ReferenceID)
			created := *app
			created.ID = 11
			created.CreditsUsed = debit.Credits
			created.Status = domain.ApplicationStatusSubmitted
			return &created, &domain.CreditBalance{AccountID: app.TradieID, CurrentBalance: 45}, nil
		}

		app, err := env.apps.CreateApplication(ctx, 7, &domain.JobApplication{
			MarketplaceJobID: 5,
			CustomQuote:      45000,
			ProposedTimeline: "next week",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(11), app.ID)
		require.Len(t, submitted, 1)
		assert.Equal(t, int64(7), submitted[0].AccountID)
	})

	t.Run("Expired job settles before submission", func(t *testing.T) {
		env := newApplicationTestEnv(t)
		env.jobRepo.put(&domain.MarketplaceJob{ID: 5, ClientID: 1, Status: domain.JobStatusAvailable, ExpiresAt: time.Now().Add(-time.Hour)})

		_, err := env.apps.CreateApplication(ctx, 7, &domain.JobApplication{MarketplaceJobID: 5})
		assert.Error(t, err)

		job, err := env.jobRepo.GetJob(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusExpired, job.Status)
	})

	t.Run("Insufficient balance passes through", func(t *testing.T) {
		env := newApplicationTestEnv(t)
		env.jobRepo.put(&domain.MarketplaceJob{ID: 5, ClientID: 1, Status: domain.JobStatusAvailable, ExpiresAt: time.Now().Add(time.Hour)})

		env.appRepo.submitFn = func(*domain.JobApplication, domain.UsageDebit) (*domain.JobApplication, *domain.CreditBalance, error) {
			return nil, nil, domain.ErrInsufficientBalance
		}

		_, err := env.apps.CreateApplication(ctx, 7, &domain.JobApplication{MarketplaceJobID: 5})
		assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	})

	t.Run("Duplicate passes through", func(t *testing.T) {
		env := newApplicationTestEnv(t)
		env.jobRepo.put(&domain.MarketplaceJob{ID: 5, ClientID: 1, Status: domain.JobStatusAvailable, ExpiresAt: time.Now().Add(time.Hour)})

		env.appRepo.submitFn = func(*domain.JobApplication, domain.UsageDebit) (*domain.JobApplication, *domain.CreditBalance, error) {
			return nil, nil, domain.ErrDuplicateApplication
		}

		_, err := env.apps.CreateApplication(ctx, 7, &domain.JobApplication{MarketplaceJobID: 5})
		assert.ErrorIs(t, err, domain.ErrDuplicateApplication)
	})
}

func TestApplicationService_SelectApplication(t *testing.T) {
	ctx := context.Background()

	t.Run("Event carries the winner's prior status", func(t *testing.T) {
		env := newApplicationTestEnv(t)

		var selected []domain.Event
		env.bus.Subscribe(func(_ context.Context, event domain.Event) {
			if event.To == string(domain.ApplicationStatusSelected) {
				selected = append(selected, event)
			}
		})

		// The winner is picked straight from submitted, skipping review.
		env.appRepo.selectFn = func(applicationID, clientID int64) (*domain.JobApplication, domain.ApplicationStatus, *domain.MarketplaceJob, []domain.RejectedSibling, error) {
			winner := &domain.JobApplication{ID: applicationID, MarketplaceJobID: 5, TradieID: 7, Status: domain.ApplicationStatusSelected}
			tradieID := int64(7)
			job := &domain.MarketplaceJob{ID: 5, ClientID: clientID, Status: domain.JobStatusAssigned, SelectedTradieID: &tradieID}
			return winner, domain.ApplicationStatusSubmitted, job, nil, nil
		}

		_, err := env.apps.SelectApplication(ctx, 11, 1)
		require.NoError(t, err)
		require.Len(t, selected, 1)
		assert.Equal(t, string(domain.ApplicationStatusSubmitted), selected[0].From)
	})
}

func TestApplicationService_WithdrawApplication(t *testing.T) {
	ctx := context.Background()

	t.Run("Refund carried on the event", func(t *testing.T) {
		env := newApplicationTestEnv(t)

		var withdrawn []domain.Event
		env.bus.Subscribe(func(_ context.Context, event domain.Event) {
			if event.To == string(domain.ApplicationStatusWithdrawn) {
				withdrawn = append(withdrawn, event)
			}
		})

		env.appRepo.withdrawFn = func(applicationID, tradieID int64) (*domain.JobApplication, domain.ApplicationStatus, error) {
			return &domain.JobApplication{
				ID: applicationID, MarketplaceJobID: 5, TradieID: tradieID,
				CreditsUsed: 5, Status: domain.ApplicationStatusWithdrawn,
			}, domain.ApplicationStatusSubmitted, nil
		}

		_, err := env.apps.WithdrawApplication(ctx, 11, 7, false)
		require.NoError(t, err)
		require.Len(t, withdrawn, 1)
		assert.Equal(t, 5, withdrawn[0].Credits)
	})

	t.Run("Opting out zeroes the refund", func(t *testing.T) {
		env := newApplicationTestEnv(t)

		var withdrawn []domain.Event
		env.bus.Subscribe(func(_ context.Context, event domain.Event) {
			if event.To == string(domain.ApplicationStatusWithdrawn) {
				withdrawn = append(withdrawn, event)
			}
		})

		env.appRepo.withdrawFn = func(applicationID, tradieID int64) (*domain.JobApplication, domain.ApplicationStatus, error) {
			return &domain.JobApplication{
				ID: applicationID, MarketplaceJobID: 5, TradieID: tradieID,
				CreditsUsed: 5, Status: domain.ApplicationStatusWithdrawn,
			}, domain.ApplicationStatusSubmitted, nil
		}

		_, err := env.apps.WithdrawApplication(ctx, 11, 7, true)
		require.NoError(t, err)
		require.Len(t, withdrawn, 1)
		assert.Equal(t, 0, withdrawn[0].Credits)
	})
}

func TestApplicationService_UpdateApplicationStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("Withdrawn is not a client transition", func(t *testing.T) {
		env := newApplicationTestEnv(t)

		_, err := env.apps.UpdateApplicationStatus(ctx, 11, 1, domain.ApplicationStatusWithdrawn)
		assert.ErrorIs(t, err, domain.ErrInvalidStatusTransition)
	})

	t.Run("Reject carries the refund", func(t *testing.T) {
		env := newApplicationTestEnv(t)

		var rejected []domain.Event
		env.bus.Subscribe(func(_ context.Context, event domain.Event) {
			if event.To == string(domain.ApplicationStatusRejected) {
				rejected = append(rejected, event)
			}
		})

		env.appRepo.rejectFn = func(applicationID, clientID int64) (*domain.JobApplication, domain.ApplicationStatus, error) {
			return &domain.JobApplication{
				ID: applicationID, MarketplaceJobID: 5, TradieID: 7,
				CreditsUsed: 5, Status: domain.ApplicationStatusRejected,
			}, domain.ApplicationStatusUnderReview, nil
		}

		_, err := env.apps.UpdateApplicationStatus(ctx, 11, 1, domain.ApplicationStatusRejected)
		require.NoError(t, err)
		require.Len(t, rejected, 1)
		assert.Equal(t, 5, rejected[0].Credits)
		assert.Equal(t, string(domain.ApplicationStatusUnderReview), rejected[0].From)
	})
}
