package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

func newTx(owner string, date time.Time) core.Transaction {
	return core.Transaction{
		Title:       "t",
		Description: "d",
		Category:    "c",
		Amount:      decimal.NewFromInt(10),
		Date:        date,
		Type:        core.Expense,
		OwnerID:     owner,
	}
}

func TestMemoryStoreCreateAndFind(t *testing.T) {
	ctx := context.Background()
	s := NewWithUsers(core.User{ID: "u1"}, core.User{ID: "u2"})

	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	first := newTx("u1", jan)
	second := newTx("u2", jan)
	third := newTx("u1", jan.AddDate(0, 1, 0))
	for _, tx := range []*core.Transaction{&first, &second, &third} {
		if err := s.CreateTransaction(ctx, tx); err != nil {
			t.Fatalf("CreateTransaction: %v", err)
		}
	}
	if first.ID == "" || first.ID == third.ID {
		t.Fatalf("expected distinct ids, got %q and %q", first.ID, third.ID)
	}

	got, err := s.FindTransactions(ctx, storage.TransactionFilter{OwnerID: "u1"})
	if err != nil || len(got) != 2 || got[0].ID != first.ID || got[1].ID != third.ID {
		t.Fatalf("unexpected find result: %+v err=%v", got, err)
	}

	u, err := s.GetUser(ctx, "u1")
	if err != nil || len(u.TransactionIndex) != 2 || u.TransactionIndex[0] != first.ID {
		t.Fatalf("unexpected user index: %+v err=%v", u, err)
	}
}

func TestMemoryStoreUnknownOwner(t *testing.T) {
	s := New()
	tx := newTx("ghost", time.Now())
	if err := s.CreateTransaction(context.Background(), &tx); !errors.Is(err, core.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("nothing should be stored")
	}
}

func TestMemoryStoreUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewWithUsers(core.User{ID: "u1"})
	tx := newTx("u1", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	if err := s.CreateTransaction(ctx, &tx); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	tx.Title = "changed"
	tx.OwnerID = "someone-else"
	if err := s.UpdateTransaction(ctx, tx); err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}
	got, _ := s.GetTransaction(ctx, tx.ID)
	if got.Title != "changed" || got.OwnerID != "u1" {
		t.Fatalf("update should change fields but keep owner: %+v", got)
	}

	if _, err := s.DeleteTransaction(ctx, tx.ID, "u2"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign owner, got %v", err)
	}
	if _, err := s.DeleteTransaction(ctx, tx.ID, "u1"); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	if _, err := s.GetTransaction(ctx, tx.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.UpdateTransaction(ctx, tx); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update of deleted row, got %v", err)
	}
}

func TestNewFromSeedFile(t *testing.T) {
	dir := t.TempDir()

	s, err := NewFromSeedFile(filepath.Join(dir, "missing.csv"))
	if err != nil {
		t.Fatalf("missing file should not fail: %v", err)
	}
	if _, err := s.GetUser(context.Background(), "u1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected empty store, got %v", err)
	}

	path := filepath.Join(dir, "seed_users.csv")
	content := "# id,name,email\nu1,Ada,ada@example.com\n\nu2, Bob\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	s, err = NewFromSeedFile(path)
	if err != nil {
		t.Fatalf("NewFromSeedFile: %v", err)
	}
	u, err := s.GetUser(context.Background(), "u1")
	if err != nil || u.Name != "Ada" || u.Email != "ada@example.com" {
		t.Fatalf("unexpected u1: %+v, %v", u, err)
	}
	u, err = s.GetUser(context.Background(), "u2")
	if err != nil || u.Name != "Bob" {
		t.Fatalf("unexpected u2: %+v, %v", u, err)
	}
}
