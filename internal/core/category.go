package core

import (
	"strings"
	"unicode"
)

// DefaultCategories is the seed used when a store starts empty.
func DefaultCategories() []Category {
	return []Category{
		{ID: "outside-food", Name: "Outside Food", Icon: "utensils"},
		{ID: "grocery", Name: "Grocery", Icon: "shopping-basket"},
		{ID: "transportation", Name: "Transportation", Icon: "car"},
		{ID: "housing", Name: "Housing", Icon: "home"},
		{ID: "utilities", Name: "Utilities", Icon: "lightbulb"},
		{ID: "entertainment", Name: "Entertainment", Icon: "film"},
		{ID: "shopping", Name: "Shopping", Icon: "shopping-bag"},
		{ID: "clothing", Name: "Clothing", Icon: "shirt"},
		{ID: "electronics", Name: "Electronics", Icon: "smartphone"},
		{ID: "books", Name: "Books", Icon: "book"},
		{ID: "tools", Name: "Tools", Icon: "wrench"},
		{ID: "health", Name: "Health", Icon: "heart-pulse"},
		{ID: OtherCategoryID, Name: "Other", Icon: "circle-help"},
	}
}

// Slugify derives a category id from its name: lowercase, whitespace runs
// become a single dash and anything outside [a-z0-9-] is dropped.
func Slugify(name string) string {
	var b strings.Builder
	inSpace := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte('-')
			}
			inSpace = true
			continue
		}
		inSpace = false
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	slug := b.String()
	if slug == "" {
		return "category"
	}
	return slug
}

// FallbackCategoryID picks the id used when a suggestion is missing or
// invalid: the "other" category, else the first one. It returns false for
// an empty set.
func FallbackCategoryID(categories []Category) (string, bool) {
	if len(categories) == 0 {
		return "", false
	}
	if id, ok := OtherCategory(categories); ok {
		return id, true
	}
	return categories[0].ID, true
}

// OtherCategory returns the id of the catch-all category, matched by id
// first and by name second.
func OtherCategory(categories []Category) (string, bool) {
	for _, c := range categories {
		if c.ID == OtherCategoryID {
			return c.ID, true
		}
	}
	for _, c := range categories {
		if strings.EqualFold(strings.TrimSpace(c.Name), "other") {
			return c.ID, true
		}
	}
	return "", false
}
