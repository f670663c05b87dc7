package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"scontrini/internal/amqp"
	"scontrini/internal/core"
	"scontrini/internal/sheets"
	"scontrini/internal/store"
)

// ExportWorker mirrors expense events into a spreadsheet.
type ExportWorker struct {
	store    store.Store
	exporter sheets.Exporter
}

func NewExportWorker(st store.Store, exporter sheets.Exporter) *ExportWorker {
	return &ExportWorker{store: st, exporter: exporter}
}

// Handlers binds the worker to the event consumer.
func (w *ExportWorker) Handlers() amqp.Handlers {
	return amqp.Handlers{
		ExpensesCreated: w.HandleExpensesCreated,
		ExpenseDeleted:  w.HandleExpenseDeleted,
	}
}

// HandleExpensesCreated loads the announced expenses and appends one row
// each. Ids that no longer exist are skipped.
func (w *ExportWorker) HandleExpensesCreated(ctx context.Context, msg *amqp.ExpensesCreatedMessage) error {
	slog.InfoContext(ctx, "Processing expenses created event", "count", len(msg.IDs))
	if len(msg.IDs) == 0 {
		return nil
	}

	expenses, err := w.store.ListExpenses(ctx, store.ExpenseFilter{IDs: msg.IDs})
	if err != nil {
		return fmt.Errorf("load expenses: %w", err)
	}
	if missing := len(msg.IDs) - len(expenses); missing > 0 {
		slog.WarnContext(ctx, "Some announced expenses no longer exist", "missing", missing)
	}
	if len(expenses) == 0 {
		return nil
	}

	categories, err := w.store.GetCategories(ctx)
	if err != nil {
		return fmt.Errorf("load categories: %w", err)
	}

	ordered := orderByIDs(expenses, msg.IDs)
	ref, err := w.exporter.AppendRows(ctx, sheets.RowsFor(ordered, categories))
	if err != nil {
		return fmt.Errorf("append to sheets: %w", err)
	}

	slog.InfoContext(ctx, "Exported expenses",
		"count", len(ordered),
		"sheets_ref", ref)
	return nil
}

// HandleExpenseDeleted removes the row of a deleted expense. A missing row
// is not an error.
func (w *ExportWorker) HandleExpenseDeleted(ctx context.Context, msg *amqp.ExpenseDeletedMessage) error {
	slog.InfoContext(ctx, "Processing expense deleted event", "id", msg.ID)

	if _, err := w.store.GetExpense(ctx, msg.ID); err == nil {
		slog.WarnContext(ctx, "Expense still exists, keeping exported row", "id", msg.ID)
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("check expense: %w", err)
	}

	found, err := w.exporter.DeleteByExpenseID(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("delete exported row: %w", err)
	}
	if !found {
		slog.WarnContext(ctx, "No exported row for deleted expense", "id", msg.ID)
		return nil
	}
	slog.InfoContext(ctx, "Removed exported row", "id", msg.ID)
	return nil
}

func orderByIDs(expenses []core.Expense, ids []string) []core.Expense {
	byID := make(map[string]core.Expense, len(expenses))
	for _, e := range expenses {
		byID[e.ID] = e
	}
	out := make([]core.Expense, 0, len(expenses))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			out = append(out, e)
			delete(byID, id)
		}
	}
	return out
}
