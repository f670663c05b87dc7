// Package store defines the persistence ports used by the services and the
// helpers shared by the concrete backends.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"scontrini/internal/core"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrCategoryInUse     = errors.New("category is assigned to one or more expenses")
	ErrDuplicateCategory = errors.New("category already exists")
	ErrEmptyBatch        = errors.New("empty batch")
)

// Ports for outbound adapters.
type (
	CategoryStore interface {
		GetCategories(ctx context.Context) ([]core.Category, error)
		AddCategory(ctx context.Context, c core.Category) error
		UpdateCategory(ctx context.Context, c core.Category) error
		// DeleteCategory fails with ErrCategoryInUse while any expense
		// references the category.
		DeleteCategory(ctx context.Context, id string) error
	}

	ExpenseStore interface {
		ListExpenses(ctx context.Context, f ExpenseFilter) ([]core.Expense, error)
		GetExpense(ctx context.Context, id string) (core.Expense, error)
		// AddExpensesBatch assigns ids and persists every draft, or none.
		AddExpensesBatch(ctx context.Context, drafts []core.ExpenseDraft) ([]core.Expense, error)
		UpdateExpense(ctx context.Context, e core.Expense) error
		DeleteExpense(ctx context.Context, id string) error
	}

	Store interface {
		CategoryStore
		ExpenseStore
		Ping(ctx context.Context) error
		Close() error
	}
)

// ExpenseFilter narrows ListExpenses. Zero fields are ignored.
type ExpenseFilter struct {
	Range      core.DateRange
	CategoryID string
	IDs        []string
}

// Match reports whether e passes the filter.
func (f ExpenseFilter) Match(e core.Expense) bool {
	if !f.Range.Contains(e.Date) {
		return false
	}
	if f.CategoryID != "" && e.CategoryID != f.CategoryID {
		return false
	}
	if len(f.IDs) > 0 {
		for _, id := range f.IDs {
			if id == e.ID {
				return true
			}
		}
		return false
	}
	return true
}

// NewID generates expense ids.
func NewID() string {
	return uuid.NewString()
}

// SortByDateDesc orders expenses most recent first.
func SortByDateDesc(expenses []core.Expense) {
	sort.SliceStable(expenses, func(i, j int) bool {
		if !expenses[i].Date.Equal(expenses[j].Date) {
			return expenses[i].Date.After(expenses[j].Date)
		}
		return expenses[i].ID < expenses[j].ID
	})
}

// Materialize validates every draft against the category set and assigns
// ids. Nothing is returned unless all drafts are valid.
func Materialize(drafts []core.ExpenseDraft, categories []core.Category) ([]core.Expense, error) {
	if len(drafts) == 0 {
		return nil, ErrEmptyBatch
	}
	out := make([]core.Expense, 0, len(drafts))
	for i, d := range drafts {
		if err := d.Validate(categories); err != nil {
			return nil, &DraftError{Index: i, Description: d.Description, Err: err}
		}
		out = append(out, d.WithID(NewID()))
	}
	return out, nil
}

// DraftError reports which draft of a batch was rejected by the store.
type DraftError struct {
	Index       int
	Description string
	Err         error
}

func (e *DraftError) Error() string {
	return fmt.Sprintf("expense %q: %v", e.Description, e.Err)
}

func (e *DraftError) Unwrap() error { return e.Err }
