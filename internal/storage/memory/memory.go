package memory

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// Store keeps users and transactions in process memory. Transactions are kept
// in insertion order so FindTransactions and the derived index are stable.
type Store struct {
	mu    sync.RWMutex
	users map[string]core.User
	items []core.Transaction
	now   func() time.Time
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{users: make(map[string]core.User), now: time.Now}
}

// NewWithUsers seeds the store with the given users.
func NewWithUsers(users ...core.User) *Store {
	s := New()
	for _, u := range users {
		u.TransactionIndex = nil
		s.users[u.ID] = u
	}
	return s
}

func (s *Store) CreateTransaction(_ context.Context, t *core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[t.OwnerID]; !ok {
		return fmt.Errorf("insert transaction: %w: unknown owner %s", core.ErrStoreUnavailable, t.OwnerID)
	}
	now := s.now()
	t.ID = uuid.NewString()
	t.CreatedAt = now
	t.UpdatedAt = now
	s.items = append(s.items, *t)
	return nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.items[i], nil
	}
	return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
}

func (s *Store) FindTransactions(_ context.Context, f storage.TransactionFilter) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Transaction
	for _, t := range s.items {
		if f.Matches(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) UpdateTransaction(_ context.Context, t core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(t.ID)
	if i < 0 {
		return fmt.Errorf("transaction %s: %w", t.ID, core.ErrNotFound)
	}
	t.OwnerID = s.items[i].OwnerID
	t.TemplateID = s.items[i].TemplateID
	t.CreatedAt = s.items[i].CreatedAt
	t.UpdatedAt = s.now()
	s.items[i] = t
	return nil
}

func (s *Store) DeleteTransaction(_ context.Context, id, ownerID string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 || s.items[i].OwnerID != ownerID {
		return core.Transaction{}, fmt.Errorf("transaction %s for user %s: %w", id, ownerID, core.ErrNotFound)
	}
	deleted := s.items[i]
	s.items = append(s.items[:i], s.items[i+1:]...)
	return deleted, nil
}

func (s *Store) CreateUser(_ context.Context, u *core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if _, exists := s.users[u.ID]; exists {
		return fmt.Errorf("insert user: %w: duplicate id %s", core.ErrStoreUnavailable, u.ID)
	}
	stored := *u
	stored.TransactionIndex = nil
	s.users[u.ID] = stored
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, fmt.Errorf("user %s: %w", id, core.ErrNotFound)
	}
	u.TransactionIndex = nil
	for _, t := range s.items {
		if t.OwnerID == id {
			u.TransactionIndex = append(u.TransactionIndex, t.ID)
		}
	}
	return u, nil
}

func (s *Store) Close() error { return nil }

// Len returns the number of stored transactions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Store) indexOf(id string) int {
	for i, t := range s.items {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// NewFromSeedFile seeds users from a file of "id,name,email" lines. Blank lines
// and lines starting with # are skipped. A missing file yields an empty store.
func NewFromSeedFile(path string) (*Store, error) {
	s := New()
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comment = '#'
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read seed file %s: %w", path, err)
		}
		id := strings.TrimSpace(rec[0])
		if id == "" {
			continue
		}
		u := core.User{ID: id}
		if len(rec) > 1 {
			u.Name = strings.TrimSpace(rec[1])
		}
		if len(rec) > 2 {
			u.Email = strings.TrimSpace(rec[2])
		}
		s.users[u.ID] = u
	}
	return s, nil
}
