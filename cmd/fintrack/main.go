package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/cli"
	apphttp "fintrack/internal/http"
	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/scheduler"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := cli.ShutdownContext(context.Background(), logger)
	defer stop()

	res := cli.OpenBackend(ctx, logger, cfg)
	defer cli.RunCleanup(logger, res.Cleanup)

	svc, err := cli.BuildServices(cfg, res)
	if err != nil {
		logger.Error("Failed to build services", "error", err)
		os.Exit(1)
	}

	loc, _ := cfg.Location()

	var sched *scheduler.Scheduler
	if cfg.RecurringEnabled {
		sched, err = cli.NewScheduler(cfg, svc.Recurring, logger)
		if err != nil {
			logger.Error("Failed to create recurring scheduler", "error", err)
			os.Exit(1)
		}
		// Sweeps outlive the signal; Stop bounds them with the shutdown timeout.
		if err := sched.Start(context.WithoutCancel(ctx)); err != nil {
			logger.Error("Failed to start recurring scheduler", "error", err)
			os.Exit(1)
		}
		logger.Info("Recurring scheduler started",
			"schedule", cfg.RecurringSchedule,
			"timezone", loc.String(),
			"next_run", sched.Next())
	} else {
		logger.Info("Recurring scheduler disabled")
	}

	var ready func(context.Context) error
	if p, ok := res.Store.(pinger); ok {
		ready = p.Ping
	}

	srv := apphttp.NewServer(":"+cfg.Port, svc.Transactions, apphttp.Config{
		Location:    loc,
		CORSOrigins: cfg.CORSAllowedOrigins,
		RateLimit:   ratelimit.DefaultConfig(),
		Ready:       ready,
		Logger:      logger.WithComponent(log.ComponentHTTP),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting fintrack server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"events_enabled", res.Events != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cli.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if sched != nil && sched.IsRunning() {
			if err := sched.Stop(shutdownCtx); err != nil {
				logger.Warn("Recurring scheduler did not stop cleanly", "error", err)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		cli.RunCleanup(logger, res.Cleanup)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
