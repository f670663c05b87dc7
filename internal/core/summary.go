package core

import (
	"errors"
	"sort"
	"time"
)

// RangePreset names a predefined summary window.
type RangePreset string

const (
	RangeToday     RangePreset = "today"
	RangeYesterday RangePreset = "yesterday"
	RangeLast7Days RangePreset = "last7days"
	RangeThisMonth RangePreset = "thisMonth"
	RangeLastMonth RangePreset = "lastMonth"
	RangeCustom    RangePreset = "custom"
)

var ErrInvalidRange = errors.New("invalid date range")

// DateRange is a day-granular window. Both ends are inclusive days; a zero
// end means open.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls on or after From and on or before the
// last instant of To's day.
func (r DateRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(StartOfDay(r.From)) {
		return false
	}
	if !r.To.IsZero() && !t.Before(StartOfDay(r.To).AddDate(0, 0, 1)) {
		return false
	}
	return true
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ResolveRange turns a preset into concrete dates relative to now.
// For RangeCustom, from and to are used as given.
func ResolveRange(preset RangePreset, now, from, to time.Time) (DateRange, error) {
	today := StartOfDay(now)
	switch preset {
	case RangeToday, "":
		return DateRange{From: today, To: today}, nil
	case RangeYesterday:
		y := today.AddDate(0, 0, -1)
		return DateRange{From: y, To: y}, nil
	case RangeLast7Days:
		return DateRange{From: today.AddDate(0, 0, -6), To: today}, nil
	case RangeThisMonth:
		first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
		return DateRange{From: first, To: first.AddDate(0, 1, -1)}, nil
	case RangeLastMonth:
		first := time.Date(today.Year(), today.Month()-1, 1, 0, 0, 0, 0, today.Location())
		return DateRange{From: first, To: first.AddDate(0, 1, -1)}, nil
	case RangeCustom:
		if from.IsZero() || to.IsZero() || to.Before(from) {
			return DateRange{}, ErrInvalidRange
		}
		return DateRange{From: StartOfDay(from), To: StartOfDay(to)}, nil
	default:
		return DateRange{}, ErrInvalidRange
	}
}

// Totals is the aggregate over a set of expenses.
type Totals struct {
	Total Money
	Count int
}

// Summarize adds up the expenses.
func Summarize(expenses []Expense) Totals {
	var t Totals
	for _, e := range expenses {
		t.Total.Cents += e.Amount.Cents
		t.Count++
	}
	return t
}

// CategoryAmount is a total for one category.
type CategoryAmount struct {
	CategoryID string
	Name       string
	Icon       string
	Amount     Money
}

// ByCategory groups totals by category. Expenses pointing at unknown
// categories are counted under the "other" category (or a synthetic
// "Other" bucket when that category does not exist). Zero totals are
// dropped and the result is sorted by amount, largest first.
func ByCategory(expenses []Expense, categories []Category) []CategoryAmount {
	totals := make(map[string]int64)
	otherID, hasOther := OtherCategory(categories)
	if !hasOther {
		otherID = OtherCategoryID
	}
	for _, e := range expenses {
		id := e.CategoryID
		if !HasCategory(categories, id) {
			id = otherID
		}
		totals[id] += e.Amount.Cents
	}

	out := make([]CategoryAmount, 0, len(totals))
	for id, cents := range totals {
		if cents <= 0 {
			continue
		}
		row := CategoryAmount{CategoryID: id, Name: "Other", Amount: Money{Cents: cents}}
		if c, ok := FindCategory(categories, id); ok {
			row.Name = c.Name
			row.Icon = c.Icon
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].Name < out[j].Name
	})
	return out
}
