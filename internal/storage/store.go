package storage

import (
	"context"
	"time"

	"fintrack/internal/core"
)

// Store is the record store consumed by the services. Implementations wrap
// backend failures with core.ErrStoreUnavailable and missing records with core.ErrNotFound.
type Store interface {
	CreateTransaction(ctx context.Context, t *core.Transaction) error
	GetTransaction(ctx context.Context, id string) (core.Transaction, error)
	FindTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, error)
	UpdateTransaction(ctx context.Context, t core.Transaction) error
	// DeleteTransaction removes the transaction only if ownerID owns it.
	DeleteTransaction(ctx context.Context, id, ownerID string) (core.Transaction, error)

	CreateUser(ctx context.Context, u *core.User) error
	// GetUser returns the user with TransactionIndex derived from owned transactions.
	GetUser(ctx context.Context, id string) (core.User, error)

	Close() error
}

// TransactionFilter is the canonical store filter. Zero-valued fields add no constraint.
type TransactionFilter struct {
	OwnerID   string
	Type      core.TransactionType
	Recurring *bool

	// TemplatesOnly excludes materialized copies.
	TemplatesOnly bool

	// After is an exclusive lower bound on Date.
	After *time.Time
	// From and To are inclusive bounds on Date.
	From *time.Time
	To   *time.Time
}

// Matches reports whether t satisfies every constraint in f.
func (f TransactionFilter) Matches(t core.Transaction) bool {
	if f.OwnerID != "" && t.OwnerID != f.OwnerID {
		return false
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.Recurring != nil && t.Recurring != *f.Recurring {
		return false
	}
	if f.TemplatesOnly && t.TemplateID != "" {
		return false
	}
	if f.After != nil && !t.Date.After(*f.After) {
		return false
	}
	if f.From != nil && t.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && t.Date.After(*f.To) {
		return false
	}
	return true
}

// RecurringTemplates selects every template across all owners.
func RecurringTemplates() TransactionFilter {
	recurring := true
	return TransactionFilter{Recurring: &recurring, TemplatesOnly: true}
}
