// Package query turns list requests into store filters.
//
// A request selects an owner's transactions by type and by a date window.
// The window is either relative (the last N days, counted back from now) or
// custom (an inclusive start and end date).
package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

const (
	// TypeAll disables the type constraint.
	TypeAll = "all"
	// FrequencyCustom selects the absolute [StartDate, EndDate] window.
	FrequencyCustom = "custom"
)

// Request carries the raw list parameters as received from a caller.
type Request struct {
	OwnerID   string
	Type      string
	Frequency string
	StartDate string
	EndDate   string
}

// Builder builds filters relative to Now in Location.
// Zero values mean time.Now and time.Local.
type Builder struct {
	Now      func() time.Time
	Location *time.Location
}

// Build maps req to a store filter. It never touches the store.
func (b Builder) Build(req Request) (storage.TransactionFilter, error) {
	f := storage.TransactionFilter{OwnerID: req.OwnerID}

	txType, err := parseType(req.Type)
	if err != nil {
		return storage.TransactionFilter{}, err
	}
	f.Type = txType

	if strings.TrimSpace(req.Frequency) == FrequencyCustom {
		return b.customWindow(f, req)
	}

	// Non-numeric frequencies count as zero days, leaving only the future.
	days, err := strconv.Atoi(strings.TrimSpace(req.Frequency))
	if err != nil {
		days = 0
	}
	after := b.now().AddDate(0, 0, -days)
	f.After = &after
	return f, nil
}

func (b Builder) customWindow(f storage.TransactionFilter, req Request) (storage.TransactionFilter, error) {
	if strings.TrimSpace(req.StartDate) == "" || strings.TrimSpace(req.EndDate) == "" {
		return f, nil
	}
	from, err := core.ParseDate(req.StartDate, b.Location)
	if err != nil {
		return storage.TransactionFilter{}, fmt.Errorf("startDate: %w", err)
	}
	to, err := core.ParseDate(req.EndDate, b.Location)
	if err != nil {
		return storage.TransactionFilter{}, fmt.Errorf("endDate: %w", err)
	}
	f.From = &from
	f.To = &to
	return f, nil
}

func (b Builder) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

func parseType(s string) (core.TransactionType, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, TypeAll) {
		return "", nil
	}
	return core.ParseTransactionType(s)
}
