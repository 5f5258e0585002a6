// Package memory provides an in-memory Store used by tests and the
// memory backend. Safe for concurrent use.
package memory

import (
	"context"
	"fmt"
	"sync"

	"finanzas/internal/core"
	"finanzas/internal/storage"
)

type Store struct {
	mu            sync.Mutex
	nextID        int
	accounts      map[string]core.Account
	transactions  map[string]core.Transaction
	subscriptions map[string]core.Subscription

	// order preserves insertion order for deterministic listings.
	txOrder []string
}

func New() *Store {
	return &Store{
		accounts:      make(map[string]core.Account),
		transactions:  make(map[string]core.Transaction),
		subscriptions: make(map[string]core.Subscription),
	}
}

func (s *Store) newID() string {
	s.nextID++
	return fmt.Sprintf("mem-%d", s.nextID)
}

func (s *Store) ListAccounts(_ context.Context) ([]core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	return out, nil
}

func (s *Store) GetAccount(_ context.Context, id string) (core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return core.Account{}, fmt.Errorf("account %s: %w", id, storage.ErrNotFound)
	}
	return a, nil
}

func (s *Store) CreateAccount(_ context.Context, a core.Account) (core.Account, error) {
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = s.newID()
	s.accounts[a.ID] = a
	return a, nil
}

func (s *Store) UpdateAccount(_ context.Context, a core.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.ID]; !ok {
		return fmt.Errorf("account %s: %w", a.ID, storage.ErrNotFound)
	}
	s.accounts[a.ID] = a
	return nil
}

func (s *Store) DeleteAccount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[id]; !ok {
		return fmt.Errorf("account %s: %w", id, storage.ErrNotFound)
	}
	delete(s.accounts, id)
	return nil
}

func (s *Store) ListTransactions(_ context.Context) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, 0, len(s.transactions))
	for _, id := range s.txOrder {
		if tx, ok := s.transactions[id]; ok {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[id]
	if !ok {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, storage.ErrNotFound)
	}
	return tx, nil
}

func (s *Store) CreateTransaction(_ context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx.ID = s.newID()
	if tx.Installments < 1 {
		tx.Installments = 1
	}
	s.transactions[tx.ID] = tx
	s.txOrder = append(s.txOrder, tx.ID)
	return tx, nil
}

func (s *Store) UpdateTransaction(_ context.Context, tx core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[tx.ID]; !ok {
		return fmt.Errorf("transaction %s: %w", tx.ID, storage.ErrNotFound)
	}
	s.transactions[tx.ID] = tx
	return nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[id]; !ok {
		return fmt.Errorf("transaction %s: %w", id, storage.ErrNotFound)
	}
	delete(s.transactions, id)
	return nil
}

func (s *Store) ListSubscriptions(_ context.Context) ([]core.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Subscription, 0, len(s.subscriptions))
	for _, sub := range s.subscriptions {
		out = append(out, sub)
	}
	return out, nil
}

func (s *Store) GetSubscription(_ context.Context, id string) (core.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscriptions[id]
	if !ok {
		return core.Subscription{}, fmt.Errorf("subscription %s: %w", id, storage.ErrNotFound)
	}
	return sub, nil
}

func (s *Store) CreateSubscription(_ context.Context, sub core.Subscription) (core.Subscription, error) {
	if err := sub.Validate(); err != nil {
		return core.Subscription{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sub.ID = s.newID()
	s.subscriptions[sub.ID] = sub
	return sub, nil
}

func (s *Store) UpdateSubscription(_ context.Context, sub core.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscriptions[sub.ID]; !ok {
		return fmt.Errorf("subscription %s: %w", sub.ID, storage.ErrNotFound)
	}
	s.subscriptions[sub.ID] = sub
	return nil
}
