// Package scheduler fires the recurring sweep on a calendar schedule.
//
// A Scheduler owns one cron instance and runs at most one sweep at a time.
// Triggers that arrive while a sweep is in flight are dropped and logged.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/services"
)

// DefaultSchedule fires at the first instant of every month.
const DefaultSchedule = "0 0 1 * *"

// Runner performs one sweep. *services.RecurringProcessor satisfies it.
type Runner interface {
	Sweep(ctx context.Context, now time.Time) (services.SweepResult, error)
}

// Config holds scheduler settings.
type Config struct {
	// Schedule is a standard five-field cron expression (default: DefaultSchedule)
	Schedule string

	// Location evaluates Schedule and stamps sweeps (default: time.Local)
	Location *time.Location

	// RunOnStart runs one sweep right after Start
	RunOnStart bool

	Now    func() time.Time
	Logger *log.Logger
}

type Scheduler struct {
	runner Runner
	config Config
	logger *log.Logger

	inFlight atomic.Bool

	mu      sync.Mutex
	running bool
	cron    *cron.Cron
	entry   cron.EntryID
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New validates config and returns a stopped scheduler.
func New(runner Runner, config Config) (*Scheduler, error) {
	if runner == nil {
		return nil, errors.New("scheduler requires a runner")
	}
	if config.Schedule == "" {
		config.Schedule = DefaultSchedule
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if _, err := cron.ParseStandard(config.Schedule); err != nil {
		return nil, fmt.Errorf("%w: invalid schedule %q: %v", core.ErrValidation, config.Schedule, err)
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Default(log.ComponentScheduler)
	}
	return &Scheduler{runner: runner, config: config, logger: logger}, nil
}

// Start registers the cron trigger. Returns an error if already running.
// Sweeps run under a context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler is already running")
	}

	c := cron.New(cron.WithLocation(s.config.Location))
	entry, err := c.AddFunc(s.config.Schedule, s.fire)
	if err != nil {
		return fmt.Errorf("register schedule: %w", err)
	}

	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.cron = c
	s.entry = entry
	s.running = true
	c.Start()

	s.logger.InfoContext(ctx, "Scheduler started",
		"schedule", s.config.Schedule,
		"location", s.config.Location.String(),
		"next_run", c.Entry(entry).Next)

	if s.config.RunOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.fire()
		}()
	}
	return nil
}

// Stop removes the trigger and waits for an in-flight sweep to finish or for
// ctx to expire, whichever comes first. Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cronDone := s.cron.Stop()
	cancel := s.cancel
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		cancel()
		s.logger.InfoContext(ctx, "Scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		cancel()
		s.logger.WarnContext(ctx, "Scheduler stop timed out, in-flight sweep cancelled")
		return ctx.Err()
	}
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Next returns the next scheduled fire time, or the zero time when stopped.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

// Trigger runs one sweep now. It returns core.ErrSchedulerOverlap without
// running anything when a sweep is already in flight.
func (s *Scheduler) Trigger(ctx context.Context) (services.SweepResult, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.WarnContext(ctx, "Sweep trigger dropped, previous sweep still running",
			log.FieldErrorType, core.KindSchedulerOverlap)
		return services.SweepResult{}, core.ErrSchedulerOverlap
	}
	defer s.inFlight.Store(false)

	started := s.config.Now()
	res, err := s.runner.Sweep(ctx, started.In(s.config.Location))
	if err != nil {
		return res, err
	}

	s.logger.InfoContext(ctx, "Sweep completed",
		log.FieldTemplates, res.Templates,
		log.FieldCreated, res.Created,
		log.FieldFailed, res.Failed,
		log.FieldDuration, time.Since(started).Milliseconds())
	return res, nil
}

// fire is the cron job. Failures are logged and never stop the scheduler.
func (s *Scheduler) fire() {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()

	if _, err := s.Trigger(ctx); err != nil && !errors.Is(err, core.ErrSchedulerOverlap) {
		log.NewStructuredLogger(s.logger).
			LogError(ctx, "Scheduled sweep failed", err, log.ComponentScheduler, log.OpSweep, nil)
	}
}
