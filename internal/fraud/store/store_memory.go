// Package store persists scored transactions in memory or Postgres.
package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"bankguard/internal/fraud/models"
	"bankguard/pkg/platform/sentinel"
)

type InMemory struct {
	mu           sync.RWMutex
	transactions map[string]*models.Transaction
}

func NewInMemory() *InMemory {
	return &InMemory{transactions: make(map[string]*models.Transaction)}
}

func (s *InMemory) Save(_ context.Context, txn *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.transactions[txn.ID]; exists {
		return sentinel.ErrDuplicate
	}
	s.transactions[txn.ID] = txn.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id string) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	txn, ok := s.transactions[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return txn.Clone(), nil
}

// ListForCustomer returns the customer's transactions in [from, to], newest first.
func (s *InMemory) ListForCustomer(_ context.Context, customerID string, from, to time.Time) ([]*models.Transaction, error) {
	return s.filter(func(t *models.Transaction) bool {
		return t.CustomerID == customerID && !t.Timestamp.Before(from) && !t.Timestamp.After(to)
	}), nil
}

func (s *InMemory) ListFlagged(_ context.Context) ([]*models.Transaction, error) {
	return s.filter(func(t *models.Transaction) bool { return t.FlaggedForReview }), nil
}

func (s *InMemory) filter(keep func(*models.Transaction) bool) []*models.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Transaction, 0)
	for _, t := range s.transactions {
		if keep(t) {
			out = append(out, t.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.Transaction) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}
