package query

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

func fixedBuilder(now time.Time) Builder {
	return Builder{Now: func() time.Time { return now }, Location: time.UTC}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func matching(f storage.TransactionFilter, txs []core.Transaction) []time.Time {
	var out []time.Time
	for _, tx := range txs {
		if f.Matches(tx) {
			out = append(out, tx.Date)
		}
	}
	return out
}

func TestBuild_CustomWindowIsInclusive(t *testing.T) {
	txs := []core.Transaction{
		{OwnerID: "u1", Type: core.Expense, Date: day(2024, 1, 1)},
		{OwnerID: "u1", Type: core.Expense, Date: day(2024, 1, 15)},
		{OwnerID: "u1", Type: core.Expense, Date: day(2024, 2, 1)},
	}
	f, err := fixedBuilder(day(2024, 6, 1)).Build(Request{
		OwnerID: "u1", Type: "all", Frequency: "custom",
		StartDate: "2024-01-01", EndDate: "2024-01-31",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := matching(f, txs)
	want := []time.Time{day(2024, 1, 1), day(2024, 1, 15)}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestBuild_RelativeWindow(t *testing.T) {
	now := day(2024, 3, 10)
	f, err := fixedBuilder(now).Build(Request{OwnerID: "u1", Type: "expense", Frequency: "7"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if f.After == nil || !f.After.Equal(day(2024, 3, 3)) {
		t.Fatalf("After = %v, want 2024-03-03", f.After)
	}
	if f.From != nil || f.To != nil {
		t.Fatalf("relative window must not set absolute bounds: %+v", f)
	}
	if f.Type != core.Expense {
		t.Fatalf("Type = %q", f.Type)
	}

	tests := []struct {
		date time.Time
		want bool
	}{
		{day(2024, 3, 3), false},
		{day(2024, 3, 4), true},
		{day(2024, 3, 20), true},
	}
	for _, tt := range tests {
		tx := core.Transaction{OwnerID: "u1", Type: core.Expense, Date: tt.date}
		if got := f.Matches(tx); got != tt.want {
			t.Errorf("date %s: Matches = %v, want %v", tt.date.Format(core.DateLayout), got, tt.want)
		}
	}
}

func TestBuild_NonNumericFrequencyMeansFuture(t *testing.T) {
	now := day(2024, 3, 10)
	for _, freq := range []string{"", "weekly", "7days"} {
		f, err := fixedBuilder(now).Build(Request{OwnerID: "u1", Type: "all", Frequency: freq})
		if err != nil {
			t.Fatalf("Build(%q): %v", freq, err)
		}
		if f.After == nil || !f.After.Equal(now) {
			t.Errorf("frequency %q: After = %v, want now", freq, f.After)
		}
	}
}

func TestBuild_CustomWithMissingBound(t *testing.T) {
	for _, req := range []Request{
		{OwnerID: "u1", Frequency: "custom", StartDate: "2024-01-01"},
		{OwnerID: "u1", Frequency: "custom", EndDate: "2024-01-31"},
		{OwnerID: "u1", Frequency: "custom"},
	} {
		f, err := fixedBuilder(day(2024, 6, 1)).Build(req)
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		if f.After != nil || f.From != nil || f.To != nil {
			t.Errorf("expected no date constraint for %+v, got %+v", req, f)
		}
		if f.OwnerID != "u1" {
			t.Errorf("owner constraint lost: %+v", f)
		}
	}
}

func TestBuild_TypeConstraint(t *testing.T) {
	tests := []struct {
		in      string
		want    core.TransactionType
		wantErr bool
	}{
		{"all", "", false},
		{"", "", false},
		{"credit", core.Credit, false},
		{"expense", core.Expense, false},
		{"transfer", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			f, err := fixedBuilder(day(2024, 1, 1)).Build(Request{OwnerID: "u1", Type: tt.in, Frequency: "30"})
			if tt.wantErr {
				if !errors.Is(err, core.ErrValidation) {
					t.Fatalf("expected ErrValidation, got %v", err)
				}
				return
			}
			if err != nil || f.Type != tt.want {
				t.Fatalf("Type = %q, err = %v, want %q", f.Type, err, tt.want)
			}
		})
	}
}

func TestBuild_InvalidCustomDate(t *testing.T) {
	_, err := fixedBuilder(day(2024, 1, 1)).Build(Request{
		OwnerID: "u1", Frequency: "custom", StartDate: "01/01/2024", EndDate: "2024-01-31",
	})
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestBuild_Idempotent(t *testing.T) {
	b := fixedBuilder(day(2024, 3, 10))
	req := Request{OwnerID: "u1", Type: "credit", Frequency: "30"}
	first, err1 := b.Build(req)
	second, err2 := b.Build(req)
	if err1 != nil || err2 != nil {
		t.Fatalf("Build errors: %v, %v", err1, err2)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("builds differ: %+v vs %+v", first, second)
	}
}
