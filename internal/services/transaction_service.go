package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/query"
	"fintrack/internal/storage"
)

// Mutation sources carried on published events.
const (
	SourceAPI       = "api"
	SourceRecurring = "recurring"
)

const DefaultMutationTimeout = 5 * time.Second

// ErrUnknownOwner marks a not-found error caused by the owning user rather than the transaction.
var ErrUnknownOwner = errors.New("user not found")

// EventPublisher is satisfied by *amqp.Client.
type EventPublisher interface {
	PublishTransactionEvent(ctx context.Context, e amqp.TransactionEvent) error
}

// CreateInput carries the fields of a new transaction.
type CreateInput struct {
	Title       string
	Description string
	Category    string
	Amount      decimal.Decimal
	Date        time.Time
	Type        core.TransactionType
	Recurring   bool
	OwnerID     string
	TemplateID  string
	Source      string
}

// UpdateInput holds a partial update. Nil fields are left unchanged, and so are
// empty strings, zero amounts and zero dates. Recurring applies whenever it is set.
type UpdateInput struct {
	Title       *string
	Description *string
	Category    *string
	Amount      *decimal.Decimal
	Date        *time.Time
	Type        *string
	Recurring   *bool
	Source      string
}

// TransactionService is the only write path for transactions. It validates,
// persists through the store and publishes an event per successful mutation.
type TransactionService struct {
	store     storage.Store
	publisher EventPublisher
	builder   query.Builder
	timeout   time.Duration
	owners    cache.Cache[struct{}]
}

type Option func(*TransactionService)

// WithPublisher enables event publishing. A nil publisher disables it.
func WithPublisher(p EventPublisher) Option {
	return func(s *TransactionService) { s.publisher = p }
}

func WithQueryBuilder(b query.Builder) Option {
	return func(s *TransactionService) { s.builder = b }
}

// WithOwnerCache remembers owners that were found, so repeated mutations for
// the same user skip the store lookup. Users are never deleted.
func WithOwnerCache(c cache.Cache[struct{}]) Option {
	return func(s *TransactionService) { s.owners = c }
}

func WithMutationTimeout(d time.Duration) Option {
	return func(s *TransactionService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewTransactionService(store storage.Store, opts ...Option) *TransactionService {
	s := &TransactionService{store: store, timeout: DefaultMutationTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates in, checks the owner exists and persists the transaction.
func (s *TransactionService) Create(ctx context.Context, in CreateInput) (core.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx := core.Transaction{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Category:    strings.TrimSpace(in.Category),
		Amount:      in.Amount,
		Date:        in.Date,
		Type:        in.Type,
		Recurring:   in.Recurring,
		OwnerID:     in.OwnerID,
		TemplateID:  in.TemplateID,
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}

	if err := s.requireOwner(ctx, in.OwnerID); err != nil {
		return core.Transaction{}, core.WrapTimeout("create transaction", err)
	}

	if err := s.store.CreateTransaction(ctx, &tx); err != nil {
		return core.Transaction{}, core.WrapTimeout("create transaction", err)
	}

	slog.InfoContext(ctx, "Transaction created", mutationFields(log.OpCreate, in.Source, tx)...)

	s.publish(ctx, amqp.EventCreated, in.Source, tx)
	return tx, nil
}

// Update applies the set fields of in to transaction id and returns the stored result.
func (s *TransactionService) Update(ctx context.Context, id string, in UpdateInput) (core.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, core.WrapTimeout("update transaction", err)
	}

	if err := applyUpdate(&tx, in); err != nil {
		return core.Transaction{}, err
	}

	if err := s.store.UpdateTransaction(ctx, tx); err != nil {
		return core.Transaction{}, core.WrapTimeout("update transaction", err)
	}

	updated, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, core.WrapTimeout("reload transaction", err)
	}

	slog.InfoContext(ctx, "Transaction updated", mutationFields(log.OpUpdate, in.Source, updated)...)
	s.publish(ctx, amqp.EventUpdated, in.Source, updated)
	return updated, nil
}

func applyUpdate(tx *core.Transaction, in UpdateInput) error {
	// Type is checked first so an invalid value rejects the whole update.
	if in.Type != nil && strings.TrimSpace(*in.Type) != "" {
		t, err := core.ParseTransactionType(*in.Type)
		if err != nil {
			return err
		}
		tx.Type = t
	}
	if v := trimmed(in.Title); v != "" {
		tx.Title = v
	}
	if v := trimmed(in.Description); v != "" {
		tx.Description = v
	}
	if v := trimmed(in.Category); v != "" {
		tx.Category = v
	}
	if in.Amount != nil && !in.Amount.IsZero() {
		tx.Amount = *in.Amount
	}
	if in.Date != nil && !in.Date.IsZero() {
		tx.Date = *in.Date
	}
	if in.Recurring != nil {
		tx.Recurring = *in.Recurring
	}
	// The merged record must pass the same checks as Create, or sweeps could
	// never copy it again.
	return tx.Validate()
}

// Delete removes transaction id if ownerID exists and owns it.
func (s *TransactionService) Delete(ctx context.Context, id, ownerID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.requireOwner(ctx, ownerID); err != nil {
		return core.WrapTimeout("delete transaction", err)
	}

	deleted, err := s.store.DeleteTransaction(ctx, id, ownerID)
	if err != nil {
		return core.WrapTimeout("delete transaction", err)
	}

	slog.InfoContext(ctx, "Transaction deleted", mutationFields(log.OpDelete, SourceAPI, deleted)...)
	s.publish(ctx, amqp.EventDeleted, SourceAPI, deleted)
	return nil
}

// List returns the owner's transactions selected by req, in insertion order.
func (s *TransactionService) List(ctx context.Context, req query.Request) ([]core.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.requireOwner(ctx, req.OwnerID); err != nil {
		return nil, core.WrapTimeout("list transactions", err)
	}

	filter, err := s.builder.Build(req)
	if err != nil {
		return nil, err
	}

	txs, err := s.store.FindTransactions(ctx, filter)
	if err != nil {
		return nil, core.WrapTimeout("list transactions", err)
	}
	return txs, nil
}

func (s *TransactionService) Get(ctx context.Context, id string) (core.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.store.GetTransaction(ctx, id)
	return tx, core.WrapTimeout("get transaction", err)
}

// Index returns the ordered transaction ids owned by ownerID.
func (s *TransactionService) Index(ctx context.Context, ownerID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	u, err := s.store.GetUser(ctx, ownerID)
	if err != nil {
		return nil, core.WrapTimeout("transaction index", err)
	}
	return u.TransactionIndex, nil
}

// CreateUser registers a user. Users are managed from the admin CLI only.
func (s *TransactionService) CreateUser(ctx context.Context, name, email string) (core.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	u := core.User{Name: strings.TrimSpace(name), Email: strings.TrimSpace(email)}
	if u.Name == "" || u.Email == "" {
		return core.User{}, fmt.Errorf("%w: name and email are required", core.ErrValidation)
	}
	if err := s.store.CreateUser(ctx, &u); err != nil {
		return core.User{}, core.WrapTimeout("create user", err)
	}
	slog.InfoContext(ctx, "User created", log.FieldOwnerID, u.ID)
	return u, nil
}

// publish is best effort: the mutation already succeeded.
func (s *TransactionService) publish(ctx context.Context, typ amqp.EventType, source string, tx core.Transaction) {
	if s.publisher == nil {
		return
	}
	e := amqp.NewTransactionEvent(typ, sourceOrDefault(source), tx)
	if err := s.publisher.PublishTransactionEvent(context.WithoutCancel(ctx), e); err != nil {
		fields := log.NewFields().WithTransaction(tx)
		fields[log.FieldEventType] = string(typ)
		log.NewStructuredLogger(log.Default(log.ComponentAMQP)).
			LogError(ctx, "Failed to publish transaction event", err, log.ComponentAMQP, log.OpPublish, fields)
	}
}

func mutationFields(op, source string, tx core.Transaction) []any {
	fields := log.NewFields().WithTransaction(tx).WithOperation(op).WithComponent(log.ComponentTransaction)
	fields[log.FieldSource] = sourceOrDefault(source)
	return fields.ToSlice()
}

func (s *TransactionService) requireOwner(ctx context.Context, ownerID string) error {
	if s.owners != nil {
		if _, ok := s.owners.Get(ownerID); ok {
			return nil
		}
	}
	if _, err := s.store.GetUser(ctx, ownerID); err != nil {
		return ownerError(err)
	}
	if s.owners != nil {
		s.owners.Set(ownerID, struct{}{})
	}
	return nil
}

func ownerError(err error) error {
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("resolve owner: %w: %w", ErrUnknownOwner, err)
	}
	return fmt.Errorf("resolve owner: %w", err)
}

func sourceOrDefault(source string) string {
	if source == "" {
		return SourceAPI
	}
	return source
}

func trimmed(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}
