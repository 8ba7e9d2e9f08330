package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/sheets"
	"fintrack/internal/storage"
)

// JournalWorker mirrors transaction events into the spreadsheet journal.
type JournalWorker struct {
	journal sheets.JournalWriter
	store   storage.Store
}

// NewJournalWorker creates a worker. Events are journaled from their own
// snapshot so each row records the state at the time of the mutation. store is
// optional and only fills in events published without a snapshot.
func NewJournalWorker(journal sheets.JournalWriter, store storage.Store) *JournalWorker {
	return &JournalWorker{journal: journal, store: store}
}

// HandleEvent journals one event. A returned error requeues the message.
func (w *JournalWorker) HandleEvent(ctx context.Context, e amqp.TransactionEvent) error {
	slog.InfoContext(ctx, "Processing transaction event",
		log.FieldComponent, log.ComponentWorker,
		log.FieldEventType, string(e.Type),
		log.FieldTransactionID, e.ID,
		log.FieldSource, e.Source)

	tx, err := w.resolve(ctx, e)
	if err != nil {
		return err
	}

	ref, err := w.journal.AppendEntry(ctx, sheets.JournalEntry{
		Event:       string(e.Type),
		Source:      e.Source,
		Transaction: tx,
		Timestamp:   e.Timestamp,
	})
	if err != nil {
		fields := log.NewFields().WithTransaction(tx)
		fields[log.FieldEventType] = string(e.Type)
		log.NewStructuredLogger(log.Default(log.ComponentSheets)).
			LogError(ctx, "Failed to append journal entry", err, log.ComponentSheets, log.OpAppend, fields)
		return fmt.Errorf("append to journal: %w", err)
	}

	slog.InfoContext(ctx, "Journaled transaction event",
		log.FieldComponent, log.ComponentWorker,
		log.FieldEventType, string(e.Type),
		log.FieldTransactionID, e.ID,
		"sheets_ref", ref)
	return nil
}

func (w *JournalWorker) resolve(ctx context.Context, e amqp.TransactionEvent) (core.Transaction, error) {
	if e.Transaction != nil {
		return e.Transaction.ToTransaction(), nil
	}

	snapshot := core.Transaction{ID: e.ID, OwnerID: e.OwnerID}
	if w.store == nil || e.Type == amqp.EventDeleted {
		return snapshot, nil
	}

	current, err := w.store.GetTransaction(ctx, e.ID)
	switch {
	case err == nil:
		return current, nil
	case errors.Is(err, core.ErrNotFound):
		// Deleted after the event was published; the snapshot is all we have.
		return snapshot, nil
	default:
		return core.Transaction{}, fmt.Errorf("get transaction from storage: %w", err)
	}
}
