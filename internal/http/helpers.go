package http

import (
	"strings"
	"time"

	"scontrini/internal/core"
)

// formatEuros formats money as a Euro amount with a comma separator
// (e.g. "€12,34").
func formatEuros(m core.Money) string {
	s := strings.Replace(m.String(), ".", ",", 1)
	if strings.HasPrefix(s, "-") {
		return "-€" + s[1:]
	}
	return "€" + s
}

// sanitizeInput drops control characters other than tab and newlines and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

// formatDate renders a date the way the date inputs expect it.
func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

// categoryName resolves an id for display, falling back to the id itself.
func categoryName(categories []core.Category, id string) string {
	if c, ok := core.FindCategory(categories, id); ok {
		return c.Name
	}
	return id
}
