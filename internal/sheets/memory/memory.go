package memory

import (
	"context"
	"fmt"
	"sync"

	"scontrini/internal/sheets"
)

// Exporter keeps exported rows in memory.
type Exporter struct {
	mu   sync.Mutex
	rows []sheets.Row
}

var _ sheets.Exporter = (*Exporter)(nil)

func New() *Exporter {
	return &Exporter{}
}

// AppendRows stores the rows and returns a synthetic row reference.
func (e *Exporter) AppendRows(_ context.Context, rows []sheets.Row) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := len(e.rows) + 1
	e.rows = append(e.rows, rows...)
	return fmt.Sprintf("mem:%d-%d", start, len(e.rows)), nil
}

func (e *Exporter) DeleteByExpenseID(_ context.Context, id string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, r := range e.rows {
		if r.ExpenseID == id {
			e.rows = append(e.rows[:i:i], e.rows[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// Rows returns a copy of the exported rows.
func (e *Exporter) Rows() []sheets.Row {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]sheets.Row(nil), e.rows...)
}
