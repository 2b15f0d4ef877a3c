package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/tradielink/backend/internal/config"
	"github.com/tradielink/backend/internal/worker"
	"go.uber.org/zap"
)

// App owns the application lifecycle.
type App struct {
	config     *config.Config
	logger     *zap.Logger
	db         *pgxpool.Pool
	redis      *redis.Client
	router     *chi.Mux
	workerPool *worker.Pool
	server     *http.Server
}

// NewApp builds the application.
func NewApp() (*App, error) {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	dbPool, err := initDatabase(ctx, cfg.DatabaseURI, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to database")

	// Redis is optional; without it events stay in-process.
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, event fan-out disabled", zap.Error(err))
			redisClient = nil
		} else {
			logger.Info("connected to redis", zap.String("address", cfg.RedisAddr))
		}
	}

	deps, err := initDependencies(cfg, dbPool, redisClient, logger)
	if err != nil {
		dbPool.Close()
		return nil, err
	}

	router := setupRouter(deps, deps.jwtManager, logger)
	server := createServer(cfg.RunAddress, router)

	return &App{
		config:     cfg,
		logger:     logger,
		db:         dbPool,
		redis:      redisClient,
		router:     router,
		workerPool: deps.workerPool,
		server:     server,
	}, nil
}

// Run starts the application and blocks until shutdown.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.workerPool.Start(ctx)
	a.logger.Info("worker pool started")

	if err := a.runServer(ctx); err != nil {
		return err
	}

	a.shutdown(cancel)

	return nil
}
