package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration.
type Config struct {
	RunAddress            string        // address and port the HTTP server binds to
	DatabaseURI           string        // PostgreSQL connection URI
	RedisAddr             string        // optional Redis address for event fan-out
	PaymentGatewayAddress string        // external payment gateway base URL
	NotifierAddress       string        // optional notification dispatcher base URL
	JWTSecret             string        // JWT signing secret
	JWTTokenTTL           time.Duration // JWT token lifetime
	LogLevel              string        // logging level

	// Usage caps
	UsageTimezone string // IANA timezone for the daily and monthly cap windows

	// Balance alerts
	LowBalanceThreshold      int
	CriticalBalanceThreshold int

	// Background sweeps
	SweepInterval   time.Duration // how often due jobs and credits are scanned
	SweepBatchLimit int           // max items taken per scan
	WorkerPoolSize  int           // number of sweep workers
	WorkerQueueSize int           // sweep queue capacity

	// Credit operations
	OperationTimeout        time.Duration // per-operation deadline for balance mutations
	CompletionBonusCredits  int           // bonus granted to the tradie on job completion
	JobExpiryWindow         time.Duration // how long a posted job stays open
	DefaultTransactionLimit int           // transactions returned by the dashboard

	// Validation
	MinPasswordLength int
}

// Load reads configuration from flags and environment variables.
// Precedence: env > flags > defaults.
func Load() (*Config, error) {
	cfg := &Config{
		JWTTokenTTL:              24 * time.Hour,
		LogLevel:                 "info",
		UsageTimezone:            "UTC",
		LowBalanceThreshold:      10,
		CriticalBalanceThreshold: 3,
		SweepInterval:            time.Minute,
		SweepBatchLimit:          100,
		WorkerPoolSize:           3,
		WorkerQueueSize:          100,
		OperationTimeout:         5 * time.Second,
		CompletionBonusCredits:   2,
		JobExpiryWindow:          72 * time.Hour,
		DefaultTransactionLimit:  20,
		MinPasswordLength:        6,
	}

	flag.StringVar(&cfg.RunAddress, "a", ":8080", "address and port to run server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.PaymentGatewayAddress, "p", "", "payment gateway address")
	flag.StringVar(&cfg.NotifierAddress, "n", "", "notification dispatcher address")
	flag.StringVar(&cfg.RedisAddr, "r", "", "redis address for event fan-out")
	flag.Parse()

	if envRunAddr, ok := os.LookupEnv("RUN_ADDRESS"); ok {
		cfg.RunAddress = envRunAddr
	}
	if envDBURI, ok := os.LookupEnv("DATABASE_URI"); ok {
		cfg.DatabaseURI = envDBURI
	}
	if envGateway, ok := os.LookupEnv("PAYMENT_GATEWAY_ADDRESS"); ok {
		cfg.PaymentGatewayAddress = envGateway
	}
	if envNotifier, ok := os.LookupEnv("NOTIFIER_ADDRESS"); ok {
		cfg.NotifierAddress = envNotifier
	}
	if envRedis, ok := os.LookupEnv("REDIS_ADDR"); ok {
		cfg.RedisAddr = envRedis
	}

	// JWT secret comes from env only.
	if envJWTSecret, ok := os.LookupEnv("JWT_SECRET"); ok {
		cfg.JWTSecret = envJWTSecret
	} else {
		cfg.JWTSecret = "default-secret-key-change-in-production"
	}

	if envLogLevel, ok := os.LookupEnv("LOG_LEVEL"); ok {
		cfg.LogLevel = envLogLevel
	}
	if envTZ, ok := os.LookupEnv("USAGE_TIMEZONE"); ok {
		cfg.UsageTimezone = envTZ
	}

	readInt := func(name string, target *int) {
		if env, ok := os.LookupEnv(name); ok {
			if v, err := strconv.Atoi(env); err == nil && v > 0 {
				*target = v
			}
		}
	}
	readDuration := func(name string, target *time.Duration) {
		if env, ok := os.LookupEnv(name); ok {
			if v, err := time.ParseDuration(env); err == nil && v > 0 {
				*target = v
			}
		}
	}

	readInt("LOW_BALANCE_THRESHOLD", &cfg.LowBalanceThreshold)
	readInt("CRITICAL_BALANCE_THRESHOLD", &cfg.CriticalBalanceThreshold)
	readInt("SWEEP_BATCH_LIMIT", &cfg.SweepBatchLimit)
	readInt("WORKER_POOL_SIZE", &cfg.WorkerPoolSize)
	readInt("WORKER_QUEUE_SIZE", &cfg.WorkerQueueSize)
	readInt("COMPLETION_BONUS_CREDITS", &cfg.CompletionBonusCredits)
	readInt("DEFAULT_TRANSACTION_LIMIT", &cfg.DefaultTransactionLimit)
	readInt("MIN_PASSWORD_LENGTH", &cfg.MinPasswordLength)
	readDuration("SWEEP_INTERVAL", &cfg.SweepInterval)
	readDuration("OPERATION_TIMEOUT", &cfg.OperationTimeout)
	readDuration("JOB_EXPIRY_WINDOW", &cfg.JobExpiryWindow)
	readDuration("JWT_TOKEN_TTL", &cfg.JWTTokenTTL)

	if cfg.DatabaseURI == "" {
		return nil, fmt.Errorf("database URI is required (use -d flag or DATABASE_URI env)")
	}
	if cfg.PaymentGatewayAddress == "" {
		return nil, fmt.Errorf("payment gateway address is required (use -p flag or PAYMENT_GATEWAY_ADDRESS env)")
	}
	if cfg.CriticalBalanceThreshold > cfg.LowBalanceThreshold {
		return nil, fmt.Errorf("critical balance threshold %d must not exceed low balance threshold %d",
			cfg.CriticalBalanceThreshold, cfg.LowBalanceThreshold)
	}

	return cfg, nil
}
