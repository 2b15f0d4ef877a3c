package app

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/tradielink/backend/internal/config"
	"github.com/tradielink/backend/internal/domain"
	"github.com/tradielink/backend/internal/events"
	"github.com/tradielink/backend/internal/handlers"
	"github.com/tradielink/backend/internal/repository/postgres"
	"github.com/tradielink/backend/internal/service"
	"github.com/tradielink/backend/internal/utils/jwt"
	"github.com/tradielink/backend/internal/utils/password"
	"github.com/tradielink/backend/internal/worker"
	"go.uber.org/zap"
)

// repositories holds the persistence layer.
type repositories struct {
	account     domain.AccountRepository
	balance     domain.BalanceRepository
	transaction domain.TransactionRepository
	autoTopup   domain.AutoTopupRepository
	job         domain.JobRepository
	application domain.ApplicationRepository
}

// services holds the business layer.
type services struct {
	auth         *service.AuthService
	credits      *service.CreditService
	autoTopup    *service.AutoTopupController
	jobs         *service.JobService
	applications *service.ApplicationService
	coordinator  *service.WorkflowCoordinator
}

// handlerSet holds the HTTP layer.
type handlerSet struct {
	auth         *handlers.AuthHandler
	credits      *handlers.CreditsHandler
	jobs         *handlers.JobsHandler
	applications *handlers.ApplicationsHandler
	health       *handlers.HealthHandler
}

// dependencies wires the whole application together.
type dependencies struct {
	repos      *repositories
	services   *services
	handlers   *handlerSet
	bus        *events.Bus
	jwtManager *jwt.Manager
	workerPool *worker.Pool
}

// initDependencies constructs every collaborator explicitly. No globals.
func initDependencies(cfg *config.Config, dbPool *pgxpool.Pool, redisClient *redis.Client, logger *zap.Logger) (*dependencies, error) {
	loc, err := time.LoadLocation(cfg.UsageTimezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load usage timezone %q: %w", cfg.UsageTimezone, err)
	}

	repos := &repositories{
		account:     postgres.NewAccountRepository(dbPool),
		balance:     postgres.NewBalanceRepository(dbPool, loc),
		transaction: postgres.NewTransactionRepository(dbPool),
		autoTopup:   postgres.NewAutoTopupRepository(dbPool),
		job:         postgres.NewJobRepository(dbPool),
		application: postgres.NewApplicationRepository(dbPool, loc),
	}

	passwordHasher := password.NewBCryptHasher(password.DefaultCost)
	jwtManager := jwt.NewManager(cfg.JWTSecret, cfg.JWTTokenTTL)

	policies := service.NewUsagePolicyTable()
	catalog := service.NewPackageCatalog()
	gateway := service.NewPaymentGateway(cfg.PaymentGatewayAddress)

	var notifier domain.Notifier = service.NopNotifier{}
	if cfg.NotifierAddress != "" {
		notifier = service.NewNotifier(cfg.NotifierAddress)
	}

	alerter := service.NewBalanceAlerter(notifier, logger,
		cfg.LowBalanceThreshold, cfg.CriticalBalanceThreshold)
	autoTopup := service.NewAutoTopupController(repos.autoTopup, repos.balance, catalog,
		gateway, notifier, logger, cfg.OperationTimeout)
	credits := service.NewCreditService(repos.balance, repos.transaction, policies, catalog,
		gateway, alerter, autoTopup, logger, cfg.OperationTimeout, cfg.DefaultTransactionLimit)

	bus := events.NewBus(redisClient, logger)
	jobs := service.NewJobService(repos.job, bus, logger, cfg.JobExpiryWindow)
	applications := service.NewApplicationService(repos.application, jobs, credits, policies, bus, logger)

	coordinator := service.NewWorkflowCoordinator(credits, repos.job, notifier, logger,
		cfg.CompletionBonusCredits)
	coordinator.Register(bus)

	svcs := &services{
		auth:         service.NewAuthService(repos.account, passwordHasher, jwtManager, cfg.MinPasswordLength),
		credits:      credits,
		autoTopup:    autoTopup,
		jobs:         jobs,
		applications: applications,
		coordinator:  coordinator,
	}

	hdlrs := &handlerSet{
		auth:         handlers.NewAuthHandler(svcs.auth, logger),
		credits:      handlers.NewCreditsHandler(svcs.credits, svcs.autoTopup, logger),
		jobs:         handlers.NewJobsHandler(svcs.jobs, logger),
		applications: handlers.NewApplicationsHandler(svcs.applications, logger),
		health:       handlers.NewHealthHandler(dbPool, logger),
	}

	workerPool := worker.NewPool(cfg.WorkerPoolSize, cfg.WorkerQueueSize,
		cfg.SweepInterval, cfg.SweepBatchLimit, jobs, credits, logger)

	return &dependencies{
		repos:      repos,
		services:   svcs,
		handlers:   hdlrs,
		bus:        bus,
		jwtManager: jwtManager,
		workerPool: workerPool,
	}, nil
}
