package sheets

import (
	"context"
	"time"

	"fintrack/internal/core"
)

// JournalEntry is one line of the transaction journal.
type JournalEntry struct {
	Event       string
	Source      string
	Transaction core.Transaction
	Timestamp   time.Time
}

// Ports for outbound adapters.
type (
	JournalWriter interface {
		// AppendEntry writes e and returns a reference to the written row.
		AppendEntry(ctx context.Context, e JournalEntry) (rowRef string, err error)
	}
)
