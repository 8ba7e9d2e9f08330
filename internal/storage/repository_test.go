package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

func newTestRepository(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "fintrack.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func seedUser(t *testing.T, repo *SQLiteRepository, id string) {
	t.Helper()
	if err := repo.CreateUser(context.Background(), &core.User{ID: id, Name: id, Email: id + "@example.com"}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
}

func seedTransaction(t *testing.T, repo *SQLiteRepository, owner string, date time.Time, typ core.TransactionType, recurring bool) core.Transaction {
	t.Helper()
	tx := core.Transaction{
		Title:       "Item " + date.Format(core.DateLayout),
		Description: "seeded",
		Category:    "Misc",
		Amount:      decimal.RequireFromString("12.34"),
		Date:        date,
		Type:        typ,
		Recurring:   recurring,
		OwnerID:     owner,
	}
	if err := repo.CreateTransaction(context.Background(), &tx); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	return tx
}

func TestSQLiteRepository_CreateAndGet(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	seedUser(t, repo, "u1")

	created := seedTransaction(t, repo, "u1", day(2024, 1, 15), core.Expense, true)
	if created.ID == "" || created.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamps to be assigned: %+v", created)
	}

	got, err := repo.GetTransaction(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if got.Title != created.Title || !got.Amount.Equal(created.Amount) || !got.Date.Equal(created.Date) {
		t.Errorf("round trip mismatch: got %+v want %+v", got, created)
	}
	if got.Type != core.Expense || !got.Recurring || got.OwnerID != "u1" {
		t.Errorf("unexpected flags: %+v", got)
	}

	if _, err := repo.GetTransaction(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteRepository_CreateRequiresOwner(t *testing.T) {
	repo := newTestRepository(t)
	tx := core.Transaction{Title: "x", Description: "x", Category: "x", Amount: decimal.NewFromInt(1),
		Date: day(2024, 1, 1), Type: core.Credit, OwnerID: "ghost"}
	err := repo.CreateTransaction(context.Background(), &tx)
	if !errors.Is(err, core.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable for unknown owner, got %v", err)
	}
}

func TestSQLiteRepository_FindTransactions(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	seedUser(t, repo, "u1")
	seedUser(t, repo, "u2")

	a := seedTransaction(t, repo, "u1", day(2024, 1, 1), core.Expense, false)
	b := seedTransaction(t, repo, "u1", day(2024, 1, 15), core.Credit, true)
	c := seedTransaction(t, repo, "u1", day(2024, 2, 1), core.Expense, false)
	seedTransaction(t, repo, "u2", day(2024, 1, 10), core.Expense, true)

	from, to := day(2024, 1, 1), day(2024, 1, 31)
	after := day(2024, 1, 1)
	yes := true

	tests := []struct {
		name   string
		filter TransactionFilter
		want   []string
	}{
		{"owner only", TransactionFilter{OwnerID: "u1"}, []string{a.ID, b.ID, c.ID}},
		{"inclusive range", TransactionFilter{OwnerID: "u1", From: &from, To: &to}, []string{a.ID, b.ID}},
		{"exclusive after", TransactionFilter{OwnerID: "u1", After: &after}, []string{b.ID, c.ID}},
		{"type", TransactionFilter{OwnerID: "u1", Type: core.Expense}, []string{a.ID, c.ID}},
		{"recurring", TransactionFilter{OwnerID: "u1", Recurring: &yes}, []string{b.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.FindTransactions(ctx, tt.filter)
			if err != nil {
				t.Fatalf("FindTransactions: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d transactions, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].ID != tt.want[i] {
					t.Errorf("position %d: got %s want %s", i, got[i].ID, tt.want[i])
				}
			}
		})
	}

	all, err := repo.FindTransactions(ctx, RecurringTemplates())
	if err != nil || len(all) != 2 {
		t.Fatalf("expected templates from every owner, got %d (%v)", len(all), err)
	}

	copyOfB := core.Transaction{Title: b.Title, Description: b.Description, Category: b.Category,
		Amount: b.Amount, Date: day(2024, 2, 1), Type: b.Type, Recurring: true, OwnerID: "u1", TemplateID: b.ID}
	if err := repo.CreateTransaction(ctx, &copyOfB); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	all, err = repo.FindTransactions(ctx, RecurringTemplates())
	if err != nil || len(all) != 2 {
		t.Fatalf("materialized copies must not be templates, got %d (%v)", len(all), err)
	}
	got, _ := repo.GetTransaction(ctx, copyOfB.ID)
	if got.TemplateID != b.ID || !got.Recurring {
		t.Errorf("lineage not persisted: %+v", got)
	}
}

func TestSQLiteRepository_Update(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	seedUser(t, repo, "u1")
	tx := seedTransaction(t, repo, "u1", day(2024, 1, 1), core.Expense, true)

	tx.Title = "Renamed"
	tx.Recurring = false
	tx.Amount = decimal.RequireFromString("-5")
	if err := repo.UpdateTransaction(ctx, tx); err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}
	got, _ := repo.GetTransaction(ctx, tx.ID)
	if got.Title != "Renamed" || got.Recurring || !got.Amount.Equal(decimal.NewFromInt(-5)) {
		t.Errorf("update not persisted: %+v", got)
	}

	tx.ID = "missing"
	if err := repo.UpdateTransaction(ctx, tx); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteRepository_DeleteScopedToOwner(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	seedUser(t, repo, "u1")
	seedUser(t, repo, "u2")
	tx := seedTransaction(t, repo, "u1", day(2024, 1, 1), core.Expense, false)

	if _, err := repo.DeleteTransaction(ctx, tx.ID, "u2"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign owner, got %v", err)
	}

	deleted, err := repo.DeleteTransaction(ctx, tx.ID, "u1")
	if err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	if deleted.ID != tx.ID {
		t.Errorf("deleted %s, want %s", deleted.ID, tx.ID)
	}
	if _, err := repo.GetTransaction(ctx, tx.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("transaction still present: %v", err)
	}
}

func TestSQLiteRepository_UserIndexIsDerived(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	seedUser(t, repo, "u1")

	a := seedTransaction(t, repo, "u1", day(2024, 1, 1), core.Expense, false)
	b := seedTransaction(t, repo, "u1", day(2024, 1, 2), core.Credit, false)

	u, err := repo.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if len(u.TransactionIndex) != 2 || u.TransactionIndex[0] != a.ID || u.TransactionIndex[1] != b.ID {
		t.Fatalf("unexpected index: %v", u.TransactionIndex)
	}

	if _, err := repo.DeleteTransaction(ctx, a.ID, "u1"); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	u, _ = repo.GetUser(ctx, "u1")
	if len(u.TransactionIndex) != 1 || u.TransactionIndex[0] != b.ID {
		t.Fatalf("index not updated after delete: %v", u.TransactionIndex)
	}

	if _, err := repo.GetUser(ctx, "nobody"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
