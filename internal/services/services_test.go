package services

import (
	"context"
	"errors"
	"sync"

	"scontrini/internal/core"
	"scontrini/internal/store"
)

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu      sync.Mutex
	created [][]string
	deleted []string
	err     error
}

func (p *recordingPublisher) PublishExpensesCreated(_ context.Context, ids []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, ids)
	return p.err
}

func (p *recordingPublisher) PublishExpenseDeleted(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, id)
	return p.err
}

// failingStore wraps a store and fails batch writes.
type failingStore struct {
	store.Store
}

var errDiskFull = errors.New("disk full")

func (failingStore) AddExpensesBatch(context.Context, []core.ExpenseDraft) ([]core.Expense, error) {
	return nil, errDiskFull
}

func categories(ids ...string) []core.Category {
	out := make([]core.Category, len(ids))
	for i, id := range ids {
		out[i] = core.Category{ID: id, Name: id}
	}
	return out
}

func cents(c int64) core.Money { return core.Money{Cents: c} }
