package receipt

import (
	"errors"

	"scontrini/internal/core"
)

// ErrNoCategories is the precondition failure raised before extraction
// when there is nothing to reconcile against.
var ErrNoCategories = errors.New("no categories defined: create a category first")

// Reconcile keeps each item's category when it is known and substitutes
// the fallback category otherwise. It returns one item per input item.
func Reconcile(items []RawItem, categories []core.Category) ([]core.ExtractedItem, error) {
	fallback, ok := core.FallbackCategoryID(categories)
	if !ok {
		return nil, ErrNoCategories
	}
	out := make([]core.ExtractedItem, len(items))
	for i, it := range items {
		id := it.CategoryID
		if !core.HasCategory(categories, id) {
			id = fallback
		}
		out[i] = core.ExtractedItem{Description: it.Description, Amount: it.Amount, CategoryID: id}
	}
	return out, nil
}
