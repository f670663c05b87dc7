package http

import (
	"net/http"

	"scontrini/internal/core"
	applog "scontrini/internal/log"
	"scontrini/internal/services"
)

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	s.renderCategories(w, r, NewHTMXResponse(), "category_list")
}

// handleCategoryOptions renders <option>s for the category pickers; all=1
// adds the "All categories" choice used by the list filter.
func (s *Server) handleCategoryOptions(w http.ResponseWriter, r *http.Request) {
	tmpl := "category_options"
	if r.URL.Query().Get("all") == "1" {
		tmpl = "category_filter_options"
	}
	s.renderCategories(w, r, NewHTMXResponse(), tmpl)
}

func (s *Server) renderCategories(w http.ResponseWriter, r *http.Request, b *HTMXResponseBuilder, tmpl string) {
	categories, err := s.categories.ListCategories(r.Context())
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	s.render(w, r, b, tmpl, categoryListView{Categories: categories})
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBody)
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	form := formValues(r.PostForm)

	cat, err := s.categories.AddCategory(r.Context(), form.Get("name"), form.Get("icon"))
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	s.logCategory(r, "Category created", cat, applog.OpCreate)

	s.renderCategories(w, r, NewHTMXResponse().
		Status(http.StatusCreated).
		TriggerCategoriesChanged().
		TriggerFormReset().
		TriggerSuccessNotification("Category "+cat.Name+" added"), "category_list")
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		BadRequestError("Malformed request").Write(w)
		return
	}

	var patch services.CategoryPatch
	if v := parser.Get("name"); v != "" {
		patch.Name = &v
	}
	if v := parser.Get("icon"); v != "" {
		patch.Icon = &v
	}

	cat, err := s.categories.UpdateCategory(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	s.logCategory(r, "Category updated", cat, applog.OpUpdate)

	s.renderCategories(w, r, NewHTMXResponse().
		TriggerCategoriesChanged().
		TriggerSuccessNotification("Category updated"), "category_list")
}

// handleDeleteCategory refuses categories still referenced by expenses.
func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.categories.DeleteCategory(r.Context(), id); err != nil {
		writeError(w, r, applog.OpDelete, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Category deleted",
		applog.FieldCategoryID, id,
		applog.FieldOperation, applog.OpDelete)

	s.renderCategories(w, r, NewHTMXResponse().
		TriggerCategoriesChanged().
		TriggerSuccessNotification("Category deleted"), "category_list")
}

// handleSuggest answers {"categoryId": id} or {"categoryId": null}.
func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	desc := sanitizeInput(r.URL.Query().Get("description"))
	if desc == "" {
		writeError(w, r, applog.OpSuggest, core.ErrEmptyDescription)
		return
	}

	var body struct {
		CategoryID *string `json:"categoryId"`
	}
	if id, ok := s.receipts.Suggest(r.Context(), desc); ok {
		body.CategoryID = &id
	}
	NewHTMXResponse().BodyJSON(body).Write(w)
}

func (s *Server) logCategory(r *http.Request, msg string, c core.Category, op string) {
	applog.FromContext(r.Context()).InfoContext(r.Context(), msg,
		applog.FieldCategoryID, c.ID,
		"category_name", c.Name,
		applog.FieldOperation, op)
}
