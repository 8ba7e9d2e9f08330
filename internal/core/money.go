// Package core provides amount and date parsing utilities.
//
// This file contains the helpers used to turn request strings into the
// decimal amounts and effective dates stored on a Transaction.
package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-day format accepted for transaction dates and query bounds.
const DateLayout = "2006-01-02"

// ParseAmount converts a decimal string to an amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. The sign is
// preserved: the transaction type, not the amount, carries the direction.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,34") -> 12.34, nil
//	ParseAmount("abc")   -> 0, ErrValidation
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty amount", ErrValidation)
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: invalid amount %q", ErrValidation, s)
	}
	return d, nil
}

// ParseDate parses a calendar day (2006-01-02, midnight in loc) or an RFC3339 instant.
// A nil loc means time.Local.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty date", ErrValidation)
	}
	if loc == nil {
		loc = time.Local
	}
	if t, err := time.ParseInLocation(DateLayout, s, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: invalid date %q (want %s or RFC3339)", ErrValidation, s, DateLayout)
}

// FormatAmount renders an amount with two decimals for display.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
