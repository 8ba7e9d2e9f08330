package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

const (
	DefaultSweepConcurrency = 4
	DefaultSweepTimeout     = 10 * time.Minute
)

// SweepResult summarizes one pass over the recurring templates.
type SweepResult struct {
	Templates int
	Created   int
	Failed    int
}

// RecurringProcessorConfig tunes the sweep.
type RecurringProcessorConfig struct {
	// Concurrency bounds parallel materializations (default: 4)
	Concurrency int
	// Timeout bounds a whole sweep (default: 10m)
	Timeout time.Duration
}

// RecurringProcessor replays every recurring template as a new transaction
type RecurringProcessor struct {
	store   storage.Store
	service *TransactionService
	config  RecurringProcessorConfig
}

// NewRecurringProcessor creates a new recurring transaction processor
func NewRecurringProcessor(store storage.Store, service *TransactionService, config RecurringProcessorConfig) *RecurringProcessor {
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultSweepConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultSweepTimeout
	}
	return &RecurringProcessor{store: store, service: service, config: config}
}

// Materialize returns a fresh copy of template t dated now. The copy keeps
// Recurring set and records t as its template; t is left untouched.
func Materialize(t core.Transaction, now time.Time) core.Transaction {
	templateID := t.TemplateID
	if templateID == "" {
		templateID = t.ID
	}
	return core.Transaction{
		Title:       t.Title,
		Description: t.Description,
		Category:    t.Category,
		Amount:      t.Amount,
		Date:        now,
		Type:        t.Type,
		Recurring:   true,
		OwnerID:     t.OwnerID,
		TemplateID:  templateID,
	}
}

// MaterializeOne persists the copy of t through the transaction service.
func (p *RecurringProcessor) MaterializeOne(ctx context.Context, t core.Transaction, now time.Time) (core.Transaction, error) {
	c := Materialize(t, now)
	created, err := p.service.Create(ctx, CreateInput{
		Title:       c.Title,
		Description: c.Description,
		Category:    c.Category,
		Amount:      c.Amount,
		Date:        c.Date,
		Type:        c.Type,
		Recurring:   c.Recurring,
		OwnerID:     c.OwnerID,
		TemplateID:  c.TemplateID,
		Source:      SourceRecurring,
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("materialize template %s: %w", t.ID, err)
	}
	return created, nil
}

// Sweep materializes every recurring template across all owners. A failure to
// load templates aborts the sweep; per-template failures are logged and counted.
func (p *RecurringProcessor) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	if p.store == nil || p.service == nil {
		return SweepResult{}, errors.New("processor not properly initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	templates, err := p.store.FindTransactions(ctx, storage.RecurringTemplates())
	if err != nil {
		return SweepResult{}, core.WrapTimeout("sweep", fmt.Errorf("load recurring templates: %w", err))
	}

	slog.InfoContext(ctx, "Processing recurring transactions",
		log.FieldComponent, log.ComponentRecurring,
		log.FieldTemplates, len(templates),
		"processing_date", now.Format(core.DateLayout))

	var created, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Concurrency)
	for _, t := range templates {
		g.Go(func() error {
			tx, err := p.MaterializeOne(gctx, t, now)
			if err != nil {
				failed.Add(1)
				fields := log.NewFields()
				fields[log.FieldTemplateID] = t.ID
				fields[log.FieldOwnerID] = t.OwnerID
				log.NewStructuredLogger(log.Default(log.ComponentRecurring)).
					LogError(gctx, "Failed to create transaction from recurring template", err, log.ComponentRecurring, log.OpSweep, fields)
				return nil
			}
			created.Add(1)
			slog.DebugContext(gctx, "Created transaction from recurring template",
				log.NewFields().WithTransaction(tx).WithComponent(log.ComponentRecurring).ToSlice()...)
			return nil
		})
	}
	_ = g.Wait()

	res := SweepResult{
		Templates: len(templates),
		Created:   int(created.Load()),
		Failed:    int(failed.Load()),
	}

	slog.InfoContext(ctx, "Recurring transaction processing complete",
		log.FieldComponent, log.ComponentRecurring,
		log.FieldTemplates, res.Templates,
		log.FieldCreated, res.Created,
		log.FieldFailed, res.Failed)

	if err := ctx.Err(); err != nil {
		return res, core.WrapTimeout("sweep", err)
	}
	return res, nil
}
