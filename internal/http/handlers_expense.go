package http

import (
	"fmt"
	"net/http"

	"scontrini/internal/core"
	applog "scontrini/internal/log"
)

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	filter, err := s.expenseFilter(r)
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	expenses, err := s.expenses.ListExpenses(r.Context(), filter)
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	categories, err := s.categories.ListCategories(r.Context())
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}

	s.render(w, r, NewHTMXResponse(), "expense_list", expenseListView{
		Expenses:   expenses,
		Categories: categories,
		Total:      core.Summarize(expenses).Total,
	})
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBody)
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}

	draft, err := parseExpenseDraft(formValues(r.PostForm), s.now().Location())
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}

	exp, err := s.expenses.AddExpense(r.Context(), draft)
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	s.count(&s.metrics.expensesAdded, 1)

	applog.FromContext(r.Context()).InfoContext(r.Context(), "Expense created",
		applog.NewFields().
			WithExpense(exp.ID, exp.Description, exp.Amount.Cents, exp.CategoryID).
			WithOperation(applog.OpCreate).
			ToSlice()...)

	NewHTMXResponse().
		Status(http.StatusCreated).
		TriggerExpensesChanged(1).
		TriggerFormReset().
		TriggerSuccessNotification(fmt.Sprintf("Saved %s (%s)", exp.Description, formatEuros(exp.Amount))).
		Write(w)
}

// handleExpenseRow renders one row; the edit form's cancel button uses it.
func (s *Server) handleExpenseRow(w http.ResponseWriter, r *http.Request) {
	s.renderExpense(w, r, NewHTMXResponse(), "expense_row", r.PathValue("id"))
}

func (s *Server) handleEditExpense(w http.ResponseWriter, r *http.Request) {
	s.renderExpense(w, r, NewHTMXResponse(), "expense_edit", r.PathValue("id"))
}

func (s *Server) renderExpense(w http.ResponseWriter, r *http.Request, b *HTMXResponseBuilder, tmpl, id string) {
	exp, err := s.expenses.GetExpense(r.Context(), id)
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	categories, err := s.categories.ListCategories(r.Context())
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	s.render(w, r, b, tmpl, expenseRowView{Expense: exp, Categories: categories})
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		BadRequestError("Malformed request").Write(w)
		return
	}

	patch, err := parseExpensePatch(parser, s.now().Location())
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}

	id := r.PathValue("id")
	if _, err := s.expenses.UpdateExpense(r.Context(), id, patch); err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}

	s.renderExpense(w, r, NewHTMXResponse().
		TriggerExpensesChanged(1).
		TriggerSuccessNotification("Expense updated"), "expense_row", id)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.expenses.DeleteExpense(r.Context(), id); err != nil {
		writeError(w, r, applog.OpDelete, err)
		return
	}
	s.count(&s.metrics.expensesDeleted, 1)

	applog.FromContext(r.Context()).InfoContext(r.Context(), "Expense deleted",
		applog.FieldExpenseID, id,
		applog.FieldOperation, applog.OpDelete)

	// Empty 200 so HTMX swaps the row out.
	NewHTMXResponse().
		TriggerExpensesChanged(0).
		TriggerSuccessNotification("Expense deleted").
		Write(w)
}
