package http

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"strings"

	"scontrini/internal/core"
	"scontrini/internal/receipt"
	"scontrini/internal/services"
)

var templateFuncs = template.FuncMap{
	"euros":        formatEuros,
	"date":         formatDate,
	"categoryName": categoryName,
	"share": func(part, total core.Money) int {
		if total.Cents <= 0 {
			return 0
		}
		return int(part.Cents * 100 / total.Cents)
	},
	"row": func(e core.Expense, categories []core.Category) expenseRowView {
		return expenseRowView{Expense: e, Categories: categories}
	},
	"amountInput": func(m core.Money) string {
		if m.Cents == 0 {
			return ""
		}
		return m.String()
	},
}

// parseTemplates loads every page and partial from fsys.
func parseTemplates(fsys fs.FS) (*template.Template, error) {
	t, err := template.New("").Funcs(templateFuncs).ParseFS(fsys, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return t, nil
}

// renderTo executes a template into memory so a failure can still become
// a clean error response.
func renderTo(t *template.Template, name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

type reviewItemView struct {
	Index int
	State string
	// Item is the value shown; Draft is set while editing.
	Item  core.ExtractedItem
	Draft core.ExtractedItem
}

type reviewView struct {
	ID         string
	Items      []reviewItemView
	Remaining  int
	Total      core.Money
	Editing    bool
	Categories []core.Category
}

func newReviewView(r receipt.Review, categories []core.Category) reviewView {
	v := reviewView{
		ID:         r.ID,
		Items:      make([]reviewItemView, 0, len(r.Items)),
		Total:      r.Total(),
		Editing:    r.HasEditing(),
		Categories: categories,
	}
	for i, s := range r.Items {
		item := reviewItemView{Index: i, State: receipt.StateName(s)}
		switch st := s.(type) {
		case receipt.Display:
			item.Item = st.Item
			v.Remaining++
		case receipt.Editing:
			item.Item = st.Original
			item.Draft = st.Draft
			v.Remaining++
		case receipt.Removed:
			continue
		}
		v.Items = append(v.Items, item)
	}
	return v
}

type rangeOption struct {
	Value core.RangePreset
	Label string
}

var rangeOptions = []rangeOption{
	{core.RangeToday, "Today"},
	{core.RangeYesterday, "Yesterday"},
	{core.RangeLast7Days, "Last 7 days"},
	{core.RangeThisMonth, "This month"},
	{core.RangeLastMonth, "Last month"},
}

type summaryView struct {
	services.Summary
	Selected core.RangePreset
	Options  []rangeOption
	From     string
	To       string
}

func newSummaryView(s services.Summary, selected core.RangePreset) summaryView {
	if selected == "" {
		selected = core.RangeThisMonth
	}
	return summaryView{
		Summary:  s,
		Selected: selected,
		Options:  rangeOptions,
		From:     formatDate(s.Range.From),
		To:       formatDate(s.Range.To),
	}
}

type expenseListView struct {
	Expenses   []core.Expense
	Categories []core.Category
	Total      core.Money
}

type expenseRowView struct {
	Expense    core.Expense
	Categories []core.Category
}

type categoryListView struct {
	Categories []core.Category
}

type pageView struct {
	Today       string
	AcceptTypes string
	MaxUploadMB int
	Categories  []core.Category
	Summary     summaryView
	Expenses    expenseListView
}

func acceptTypes() string {
	return strings.Join(receipt.SupportedTypes(), ",")
}
