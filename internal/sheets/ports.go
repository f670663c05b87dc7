package sheets

import (
	"context"
	"time"

	"scontrini/internal/core"
)

// Row is one exported expense: date, description, amount, category name
// and the expense id, in column order.
type Row struct {
	Date        time.Time
	Description string
	Amount      core.Money
	Category    string
	ExpenseID   string
}

// Header labels the exported columns.
var Header = []string{"Date", "Description", "Amount", "Category", "ID"}

// Ports for outbound adapters.
type (
	ExpenseWriter interface {
		AppendRows(ctx context.Context, rows []Row) (rowRef string, err error)
	}

	ExpenseDeleter interface {
		// DeleteByExpenseID removes the row holding id and reports whether
		// one was found.
		DeleteByExpenseID(ctx context.Context, id string) (bool, error)
	}

	Exporter interface {
		ExpenseWriter
		ExpenseDeleter
	}
)

// RowsFor turns expenses into rows, resolving category names. Unknown ids
// are exported as "Other".
func RowsFor(expenses []core.Expense, categories []core.Category) []Row {
	rows := make([]Row, len(expenses))
	for i, e := range expenses {
		name := "Other"
		if c, ok := core.FindCategory(categories, e.CategoryID); ok {
			name = c.Name
		}
		rows[i] = Row{
			Date:        e.Date,
			Description: e.Description,
			Amount:      e.Amount,
			Category:    name,
			ExpenseID:   e.ID,
		}
	}
	return rows
}
