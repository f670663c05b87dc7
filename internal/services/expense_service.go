package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"scontrini/internal/core"
	"scontrini/internal/store"
)

// EventPublisher announces expense changes to other processes.
type EventPublisher interface {
	PublishExpensesCreated(ctx context.Context, ids []string) error
	PublishExpenseDeleted(ctx context.Context, id string) error
}

// BatchItemError names the item that made a batch commit fail.
type BatchItemError struct {
	Index       int
	Description string
	Err         error
}

func (e *BatchItemError) Error() string {
	return fmt.Sprintf("expense %q: %v", e.Description, e.Err)
}

func (e *BatchItemError) Unwrap() error { return e.Err }

// ExpensePatch is a partial update. Nil fields are left unchanged.
type ExpensePatch struct {
	Amount      *core.Money
	Description *string
	CategoryID  *string
	Date        *time.Time
}

// Summary is the expense overview for a date range.
type Summary struct {
	Range      core.DateRange
	Totals     core.Totals
	ByCategory []core.CategoryAmount
	Expenses   []core.Expense
	Categories []core.Category
}

// ExpenseService orchestrates expense operations across the store and the
// event bus. Publishing is best effort.
type ExpenseService struct {
	store  store.Store
	events EventPublisher
	now    func() time.Time
}

func NewExpenseService(st store.Store, events EventPublisher) *ExpenseService {
	return &ExpenseService{
		store:  st,
		events: events,
		now:    time.Now,
	}
}

// SetClock replaces the time source used for commit timestamps.
func (s *ExpenseService) SetClock(now func() time.Time) {
	s.now = now
}

// CommitBatch validates every reviewed item against the current categories
// and stores them as expenses dated now, all or nothing.
func (s *ExpenseService) CommitBatch(ctx context.Context, items []core.ExtractedItem) ([]core.Expense, error) {
	if len(items) == 0 {
		return nil, store.ErrEmptyBatch
	}

	categories, err := s.store.GetCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}

	now := s.now()
	drafts := make([]core.ExpenseDraft, len(items))
	for i, it := range items {
		if err := it.Validate(categories); err != nil {
			return nil, &BatchItemError{Index: i, Description: it.Description, Err: err}
		}
		drafts[i] = core.ExpenseDraft{
			Amount:      it.Amount,
			Description: strings.TrimSpace(it.Description),
			CategoryID:  it.CategoryID,
			Date:        now,
		}
	}

	created, err := s.store.AddExpensesBatch(ctx, drafts)
	if err != nil {
		var de *store.DraftError
		if errors.As(err, &de) {
			return nil, &BatchItemError{Index: de.Index, Description: de.Description, Err: de.Err}
		}
		return nil, fmt.Errorf("save batch: %w", err)
	}

	slog.InfoContext(ctx, "Committed expense batch", "count", len(created))
	s.publishCreated(ctx, created)
	return created, nil
}

// AddExpense stores a single expense. A zero date means now.
func (s *ExpenseService) AddExpense(ctx context.Context, draft core.ExpenseDraft) (core.Expense, error) {
	if draft.Date.IsZero() {
		draft.Date = s.now()
	}
	draft.Description = strings.TrimSpace(draft.Description)

	categories, err := s.store.GetCategories(ctx)
	if err != nil {
		return core.Expense{}, fmt.Errorf("load categories: %w", err)
	}
	if err := draft.Validate(categories); err != nil {
		return core.Expense{}, fmt.Errorf("invalid expense: %w", err)
	}

	created, err := s.store.AddExpensesBatch(ctx, []core.ExpenseDraft{draft})
	if err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}
	s.publishCreated(ctx, created)
	return created[0], nil
}

func (s *ExpenseService) ListExpenses(ctx context.Context, f store.ExpenseFilter) ([]core.Expense, error) {
	expenses, err := s.store.ListExpenses(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	store.SortByDateDesc(expenses)
	return expenses, nil
}

func (s *ExpenseService) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	e, err := s.store.GetExpense(ctx, id)
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense %s: %w", id, err)
	}
	return e, nil
}

// UpdateExpense applies patch and re-validates the whole expense. The id
// never changes.
func (s *ExpenseService) UpdateExpense(ctx context.Context, id string, patch ExpensePatch) (core.Expense, error) {
	e, err := s.GetExpense(ctx, id)
	if err != nil {
		return core.Expense{}, err
	}
	if patch.Amount != nil {
		e.Amount = *patch.Amount
	}
	if patch.Description != nil {
		e.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.CategoryID != nil {
		e.CategoryID = *patch.CategoryID
	}
	if patch.Date != nil {
		e.Date = *patch.Date
	}

	categories, err := s.store.GetCategories(ctx)
	if err != nil {
		return core.Expense{}, fmt.Errorf("load categories: %w", err)
	}
	if err := e.Validate(categories); err != nil {
		return core.Expense{}, fmt.Errorf("invalid expense: %w", err)
	}
	if err := s.store.UpdateExpense(ctx, e); err != nil {
		return core.Expense{}, fmt.Errorf("update expense %s: %w", id, err)
	}
	return e, nil
}

// DeleteExpense removes the expense and announces it.
func (s *ExpenseService) DeleteExpense(ctx context.Context, id string) error {
	if err := s.store.DeleteExpense(ctx, id); err != nil {
		return fmt.Errorf("delete expense %s: %w", id, err)
	}

	if s.events == nil {
		slog.WarnContext(ctx, "Event publisher not available, skipping delete event", "id", id)
		return nil
	}
	if err := s.events.PublishExpenseDeleted(ctx, id); err != nil {
		// The expense is already gone locally.
		slog.ErrorContext(ctx, "Failed to publish delete event", "id", id, "error", err)
	}
	return nil
}

// Summarize loads the expenses in r and the categories concurrently and
// aggregates them.
func (s *ExpenseService) Summarize(ctx context.Context, r core.DateRange) (Summary, error) {
	var (
		expenses   []core.Expense
		categories []core.Category
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		expenses, err = s.ListExpenses(gctx, store.ExpenseFilter{Range: r})
		return err
	})
	g.Go(func() error {
		var err error
		categories, err = s.store.GetCategories(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Summary{}, fmt.Errorf("summarize: %w", err)
	}

	return Summary{
		Range:      r,
		Totals:     core.Summarize(expenses),
		ByCategory: core.ByCategory(expenses, categories),
		Expenses:   expenses,
		Categories: categories,
	}, nil
}

func (s *ExpenseService) publishCreated(ctx context.Context, created []core.Expense) {
	if s.events == nil {
		slog.WarnContext(ctx, "Event publisher not available, skipping created event")
		return
	}
	ids := make([]string, len(created))
	for i, e := range created {
		ids[i] = e.ID
	}
	if err := s.events.PublishExpensesCreated(ctx, ids); err != nil {
		slog.ErrorContext(ctx, "Failed to publish created event", "count", len(ids), "error", err)
	}
}

// Ping reports whether the store is reachable.
func (s *ExpenseService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Close closes the store and, when it holds one, the event publisher.
func (s *ExpenseService) Close() error {
	var errs []error

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if c, ok := s.events.(io.Closer); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("events: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close expense service: %w", errors.Join(errs...))
	}
	return nil
}
