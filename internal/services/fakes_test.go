package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/storage"
	"fintrack/internal/storage/memory"
)

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []amqp.TransactionEvent
	err    error
}

func (p *recordingPublisher) PublishTransactionEvent(_ context.Context, e amqp.TransactionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) types() []amqp.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []amqp.EventType
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// faultyStore wraps the memory store and fails selected calls.
type faultyStore struct {
	*memory.Store
	failCreate func(t *core.Transaction) bool
	blockFind  bool
}

var errInjected = errors.New("injected fault")

func (s *faultyStore) CreateTransaction(ctx context.Context, t *core.Transaction) error {
	if s.failCreate != nil && s.failCreate(t) {
		return errors.Join(core.ErrStoreUnavailable, errInjected)
	}
	return s.Store.CreateTransaction(ctx, t)
}

func (s *faultyStore) FindTransactions(ctx context.Context, f storage.TransactionFilter) ([]core.Transaction, error) {
	if s.blockFind {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.Store.FindTransactions(ctx, f)
}

// countingStore counts GetUser calls.
type countingStore struct {
	*memory.Store
	getUser atomic.Int64
}

func (s *countingStore) GetUser(ctx context.Context, id string) (core.User, error) {
	s.getUser.Add(1)
	return s.Store.GetUser(ctx, id)
}
