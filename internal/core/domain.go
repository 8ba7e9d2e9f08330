package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Credit  TransactionType = "credit"
	Expense TransactionType = "expense"
)

type (
	// TransactionType carries the direction of a transaction; the amount sign does not.
	TransactionType string

	Transaction struct {
		ID          string
		Title       string
		Description string
		Category    string
		Amount      decimal.Decimal
		Date        time.Time
		Type        TransactionType
		Recurring   bool
		OwnerID     string
		CreatedAt   time.Time
		UpdatedAt   time.Time

		// TemplateID links a materialized copy to the template it was replayed
		// from. It is empty for transactions created directly.
		TemplateID string
	}

	User struct {
		ID    string
		Name  string
		Email string
		// TransactionIndex lists the ids of the user's transactions in insertion order.
		// It is derived by the store on read and never written directly.
		TransactionIndex []string
	}
)

const maxTextLength = 200

// IsValid reports whether t is one of the known transaction types.
func (t TransactionType) IsValid() bool {
	switch t {
	case Credit, Expense:
		return true
	}
	return false
}

func (t TransactionType) String() string {
	return string(t)
}

// ParseTransactionType normalizes s and checks it against the known types.
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: unknown transaction type %q", ErrValidation, s)
	}
	return t, nil
}

// Validate checks the fields required at creation time.
func (t Transaction) Validate() error {
	var missing []string
	if strings.TrimSpace(t.Title) == "" {
		missing = append(missing, "title")
	}
	if t.Amount.IsZero() {
		missing = append(missing, "amount")
	}
	if strings.TrimSpace(t.Description) == "" {
		missing = append(missing, "description")
	}
	if t.Date.IsZero() {
		missing = append(missing, "date")
	}
	if strings.TrimSpace(t.Category) == "" {
		missing = append(missing, "category")
	}
	if t.Type == "" {
		missing = append(missing, "transactionType")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s", ErrValidation, strings.Join(missing, ", "))
	}

	if !t.Type.IsValid() {
		return fmt.Errorf("%w: unknown transaction type %q", ErrValidation, t.Type)
	}
	if len(t.Title) > maxTextLength {
		return fmt.Errorf("%w: title too long (max %d characters)", ErrValidation, maxTextLength)
	}
	if len(t.Description) > maxTextLength {
		return fmt.Errorf("%w: description too long (max %d characters)", ErrValidation, maxTextLength)
	}
	return nil
}

// IsTemplate reports whether t is replayed by the monthly sweep. Materialized
// copies keep Recurring set but are never replayed themselves.
func (t Transaction) IsTemplate() bool {
	return t.Recurring && t.TemplateID == ""
}
