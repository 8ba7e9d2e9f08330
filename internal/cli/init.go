// Package cli provides the initialization shared by cmd/fintrack,
// cmd/fintrack-worker and cmd/fintrack-admin.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fintrack/internal/backend"
	"fintrack/internal/cache"
	"fintrack/internal/config"
	"fintrack/internal/log"
	"fintrack/internal/query"
	"fintrack/internal/scheduler"
	"fintrack/internal/services"
)

// SetupLogger builds the process logger from LOG_LEVEL and installs it as the
// slog default. Unknown levels fall back to info.
func SetupLogger(level string) *log.Logger {
	cfg := log.DefaultConfig()
	if lvl, err := log.ParseLevel(level); err == nil {
		cfg.Level = lvl
	}
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// OpenBackend opens the configured store and optional event client.
// Exits the process on failure.
func OpenBackend(ctx context.Context, logger *log.Logger, cfg *config.Config) *backend.BackendResult {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend)).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", bcfg.Type)
		os.Exit(1)
	}
	return res
}

const (
	ownerCacheSize = 1024
	ownerCacheTTL  = 10 * time.Minute
)

// Services is the wired domain layer.
type Services struct {
	Transactions *services.TransactionService
	Recurring    *services.RecurringProcessor
}

// BuildServices wires the transaction service and recurring processor over res.
func BuildServices(cfg *config.Config, res *backend.BackendResult) (*Services, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	opts := []services.Option{
		services.WithQueryBuilder(query.Builder{Location: loc}),
		services.WithMutationTimeout(cfg.MutationTimeout),
		services.WithOwnerCache(cache.NewLRUCache[struct{}](ownerCacheSize, ownerCacheTTL)),
	}
	// Only a non-nil client, so the service never sees a typed nil publisher.
	if res.Events != nil {
		opts = append(opts, services.WithPublisher(res.Events))
	}

	txs := services.NewTransactionService(res.Store, opts...)
	recurring := services.NewRecurringProcessor(res.Store, txs, services.RecurringProcessorConfig{
		Concurrency: cfg.RecurringConcurrency,
		Timeout:     cfg.SweepTimeout,
	})
	return &Services{Transactions: txs, Recurring: recurring}, nil
}

// NewScheduler builds the recurring scheduler from cfg.
func NewScheduler(cfg *config.Config, runner scheduler.Runner, logger *log.Logger) (*scheduler.Scheduler, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return scheduler.New(runner, scheduler.Config{
		Schedule:   cfg.RecurringSchedule,
		Location:   loc,
		RunOnStart: cfg.RecurringRunOnStart,
		Logger:     logger.WithComponent(log.ComponentScheduler),
	})
}

// ShutdownContext returns a context cancelled on SIGINT or SIGTERM.
func ShutdownContext(parent context.Context, logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		if parent.Err() == nil {
			logger.Info("Shutdown signal received")
		}
	}()
	return ctx, stop
}

// RunCleanup calls cleanup and logs its error. Nil cleanup is a no-op.
func RunCleanup(logger *log.Logger, cleanup func() error) {
	if cleanup == nil {
		return
	}
	if err := cleanup(); err != nil {
		logger.Warn("Cleanup failed", "error", err)
	}
}

// ShutdownTimeout bounds graceful shutdown of every binary.
const ShutdownTimeout = 30 * time.Second
