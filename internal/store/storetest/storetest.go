// Package storetest holds a behavioural suite every store backend must pass.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scontrini/internal/core"
	"scontrini/internal/store"
)

// Factory builds an empty store seeded with the given categories.
type Factory func(t *testing.T, seed []core.Category) store.Store

// Seed is the category set used by the suite.
func Seed() []core.Category {
	return []core.Category{
		{ID: "grocery", Name: "Grocery", Icon: "shopping-basket"},
		{ID: "electronics", Name: "Electronics"},
		{ID: "other", Name: "Other"},
	}
}

var base = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func draft(desc string, cents int64, cat string, at time.Time) core.ExpenseDraft {
	return core.ExpenseDraft{Description: desc, Amount: core.Money{Cents: cents}, CategoryID: cat, Date: at}
}

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("categories are seeded", func(t *testing.T) {
		s := newStore(t, Seed())
		cats, err := s.GetCategories(context.Background())
		require.NoError(t, err)
		assert.ElementsMatch(t, core.CategoryIDs(Seed()), core.CategoryIDs(cats))
	})

	t.Run("batch assigns distinct ids", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t, Seed())
		created, err := s.AddExpensesBatch(ctx, []core.ExpenseDraft{
			draft("A", 100, "grocery", base),
			draft("B", 200, "other", base),
		})
		require.NoError(t, err)
		require.Len(t, created, 2)
		assert.NotEmpty(t, created[0].ID)
		assert.NotEqual(t, created[0].ID, created[1].ID)

		all, err := s.ListExpenses(ctx, store.ExpenseFilter{})
		require.NoError(t, err)
		require.Len(t, all, 2)
		for _, e := range all {
			assert.True(t, e.Date.Equal(base), "date %v", e.Date)
		}
	})

	t.Run("invalid item rejects whole batch", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t, Seed())
		_, err := s.AddExpensesBatch(ctx, []core.ExpenseDraft{
			draft("Bread", 250, "grocery", base),
			draft("Refund", -500, "grocery", base),
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrInvalidAmount)
		assert.Contains(t, err.Error(), "Refund")

		all, err := s.ListExpenses(ctx, store.ExpenseFilter{})
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("unknown category rejects whole batch", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t, Seed())
		_, err := s.AddExpensesBatch(ctx, []core.ExpenseDraft{
			draft("Bread", 250, "grocery", base),
			draft("Tyre", 9000, "cars", base),
		})
		require.Error(t, err)
		all, err := s.ListExpenses(ctx, store.ExpenseFilter{})
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("empty batch", func(t *testing.T) {
		s := newStore(t, Seed())
		_, err := s.AddExpensesBatch(context.Background(), nil)
		assert.ErrorIs(t, err, store.ErrEmptyBatch)
	})

	t.Run("list filters and order", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t, Seed())
		created, err := s.AddExpensesBatch(ctx, []core.ExpenseDraft{
			draft("old", 100, "grocery", base.AddDate(0, 0, -10)),
			draft("late evening", 200, "electronics", time.Date(2025, 3, 13, 23, 30, 0, 0, time.UTC)),
			draft("today", 300, "grocery", base),
		})
		require.NoError(t, err)

		all, err := s.ListExpenses(ctx, store.ExpenseFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "today", all[0].Description)
		assert.Equal(t, "old", all[2].Description)

		byCat, err := s.ListExpenses(ctx, store.ExpenseFilter{CategoryID: "grocery"})
		require.NoError(t, err)
		assert.Len(t, byCat, 2)

		r := core.DateRange{From: time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC), To: time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC)}
		inRange, err := s.ListExpenses(ctx, store.ExpenseFilter{Range: r})
		require.NoError(t, err)
		require.Len(t, inRange, 1)
		assert.Equal(t, "late evening", inRange[0].Description)

		byID, err := s.ListExpenses(ctx, store.ExpenseFilter{IDs: []string{created[0].ID, created[2].ID}})
		require.NoError(t, err)
		assert.Len(t, byID, 2)
	})

	t.Run("get update delete expense", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t, Seed())
		created, err := s.AddExpensesBatch(ctx, []core.ExpenseDraft{draft("Phone", 49900, "electronics", base)})
		require.NoError(t, err)
		id := created[0].ID

		got, err := s.GetExpense(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "Phone", got.Description)
		assert.Equal(t, int64(49900), got.Amount.Cents)

		got.Description = "Phone case"
		got.Amount = core.Money{Cents: 1500}
		require.NoError(t, s.UpdateExpense(ctx, got))
		again, err := s.GetExpense(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "Phone case", again.Description)
		assert.Equal(t, int64(1500), again.Amount.Cents)

		missing := got
		missing.ID = "missing"
		assert.ErrorIs(t, s.UpdateExpense(ctx, missing), store.ErrNotFound)

		require.NoError(t, s.DeleteExpense(ctx, id))
		_, err = s.GetExpense(ctx, id)
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.ErrorIs(t, s.DeleteExpense(ctx, id), store.ErrNotFound)
	})

	t.Run("category lifecycle", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t, Seed())

		require.NoError(t, s.AddCategory(ctx, core.Category{ID: "books", Name: "Books", Icon: "book"}))
		err := s.AddCategory(ctx, core.Category{ID: "books-2", Name: "BOOKS"})
		assert.ErrorIs(t, err, store.ErrDuplicateCategory)

		require.NoError(t, s.UpdateCategory(ctx, core.Category{ID: "books", Name: "Books & Magazines", Icon: "book-open"}))
		err = s.UpdateCategory(ctx, core.Category{ID: "books", Name: "grocery"})
		assert.ErrorIs(t, err, store.ErrDuplicateCategory)
		err = s.UpdateCategory(ctx, core.Category{ID: "nope", Name: "Nope"})
		assert.ErrorIs(t, err, store.ErrNotFound)

		cats, err := s.GetCategories(ctx)
		require.NoError(t, err)
		c, ok := core.FindCategory(cats, "books")
		require.True(t, ok)
		assert.Equal(t, "Books & Magazines", c.Name)
		assert.Equal(t, "book-open", c.Icon)

		require.NoError(t, s.DeleteCategory(ctx, "books"))
		assert.ErrorIs(t, s.DeleteCategory(ctx, "books"), store.ErrNotFound)
	})

	t.Run("referenced category cannot be deleted", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t, Seed())
		_, err := s.AddExpensesBatch(ctx, []core.ExpenseDraft{draft("Milk", 350, "grocery", base)})
		require.NoError(t, err)

		err = s.DeleteCategory(ctx, "grocery")
		require.Error(t, err)
		assert.True(t, errors.Is(err, store.ErrCategoryInUse), "got %v", err)

		cats, err := s.GetCategories(ctx)
		require.NoError(t, err)
		assert.True(t, core.HasCategory(cats, "grocery"))
		all, err := s.ListExpenses(ctx, store.ExpenseFilter{})
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "grocery", all[0].CategoryID)
	})

	t.Run("ping", func(t *testing.T) {
		s := newStore(t, Seed())
		assert.NoError(t, s.Ping(context.Background()))
	})
}
