package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// EventType names a transaction lifecycle change.
type EventType string

const (
	EventCreated EventType = "transaction.created"
	EventUpdated EventType = "transaction.updated"
	EventDeleted EventType = "transaction.deleted"
)

// TransactionPayload is the wire form of a transaction snapshot.
type TransactionPayload struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Date        time.Time       `json:"date"`
	Type        string          `json:"transaction_type"`
	Recurring   bool            `json:"recurring"`
	OwnerID     string          `json:"owner_id"`
	TemplateID  string          `json:"template_id,omitempty"`
}

// TransactionEvent is published after every successful mutation.
// Source tells consumers where the mutation came from (api, recurring).
type TransactionEvent struct {
	Type        EventType           `json:"type"`
	ID          string              `json:"id"`
	OwnerID     string              `json:"owner_id"`
	Source      string              `json:"source"`
	Transaction *TransactionPayload `json:"transaction,omitempty"`
	Timestamp   time.Time           `json:"timestamp"`
}

// NewTransactionEvent snapshots t into an event stamped with the current time.
func NewTransactionEvent(typ EventType, source string, t core.Transaction) TransactionEvent {
	return TransactionEvent{
		Type:        typ,
		ID:          t.ID,
		OwnerID:     t.OwnerID,
		Source:      source,
		Transaction: PayloadFrom(t),
		Timestamp:   time.Now().UTC(),
	}
}

func PayloadFrom(t core.Transaction) *TransactionPayload {
	return &TransactionPayload{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Category:    t.Category,
		Amount:      t.Amount,
		Date:        t.Date,
		Type:        t.Type.String(),
		Recurring:   t.Recurring,
		OwnerID:     t.OwnerID,
		TemplateID:  t.TemplateID,
	}
}

// ToTransaction converts the payload back into the domain type.
func (p TransactionPayload) ToTransaction() core.Transaction {
	return core.Transaction{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Category:    p.Category,
		Amount:      p.Amount,
		Date:        p.Date,
		Type:        core.TransactionType(p.Type),
		Recurring:   p.Recurring,
		OwnerID:     p.OwnerID,
		TemplateID:  p.TemplateID,
	}
}

// ToJSON converts the event to JSON bytes
func (e TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// TransactionEventFromJSON decodes and sanity-checks an event body.
func TransactionEventFromJSON(data []byte) (TransactionEvent, error) {
	var e TransactionEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return TransactionEvent{}, err
	}
	switch e.Type {
	case EventCreated, EventUpdated, EventDeleted:
	default:
		return TransactionEvent{}, fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.ID == "" {
		return TransactionEvent{}, fmt.Errorf("event %s has no transaction id", e.Type)
	}
	return e, nil
}
