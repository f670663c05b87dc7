package receipt

import (
	"errors"
	"fmt"
	"time"

	"scontrini/internal/core"
)

var (
	ErrInvalidTransition = errors.New("invalid review transition")
	ErrStillEditing      = errors.New("finish or cancel editing before saving")
	ErrNothingToCommit   = errors.New("no items left to save")
	ErrItemIndex         = errors.New("no such review item")
)

// ItemState is the review state of one extracted item: Display, Editing
// or Removed.
type ItemState interface {
	isItemState()
}

// Display shows the current item.
type Display struct {
	Item core.ExtractedItem
}

// Editing holds the draft under edit and the item as it was before.
type Editing struct {
	Draft    core.ExtractedItem
	Original core.ExtractedItem
}

// Removed is terminal.
type Removed struct{}

func (Display) isItemState() {}
func (Editing) isItemState() {}
func (Removed) isItemState() {}

// Edit starts editing a displayed item.
func Edit(s ItemState) (ItemState, error) {
	d, ok := s.(Display)
	if !ok {
		return s, transitionError("edit", s)
	}
	return Editing{Draft: d.Item, Original: d.Item}, nil
}

// Change replaces the draft of an item being edited.
func Change(s ItemState, draft core.ExtractedItem) (ItemState, error) {
	e, ok := s.(Editing)
	if !ok {
		return s, transitionError("change", s)
	}
	e.Draft = draft
	return e, nil
}

// Save accepts the draft when it is valid against categories.
func Save(s ItemState, categories []core.Category) (ItemState, error) {
	e, ok := s.(Editing)
	if !ok {
		return s, transitionError("save", s)
	}
	if err := e.Draft.Validate(categories); err != nil {
		return s, err
	}
	return Display{Item: e.Draft}, nil
}

// Cancel discards the draft and restores the snapshot.
func Cancel(s ItemState) (ItemState, error) {
	e, ok := s.(Editing)
	if !ok {
		return s, transitionError("cancel", s)
	}
	return Display{Item: e.Original}, nil
}

// Remove drops a displayed item from the batch.
func Remove(s ItemState) (ItemState, error) {
	if _, ok := s.(Display); !ok {
		return s, transitionError("remove", s)
	}
	return Removed{}, nil
}

func transitionError(op string, s ItemState) error {
	return fmt.Errorf("%w: cannot %s from %s", ErrInvalidTransition, op, StateName(s))
}

// StateName names the variant for logs and templates.
func StateName(s ItemState) string {
	switch s.(type) {
	case Display:
		return "display"
	case Editing:
		return "editing"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// ItemError points at the review item that blocks the commit.
type ItemError struct {
	Index       int
	Description string
	Err         error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %q: %v", e.Description, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// Review is the state of one extraction under human review. Values are
// never mutated in place: every change returns a new Review.
type Review struct {
	ID        string
	CreatedAt time.Time
	Items     []ItemState
}

// NewReview puts every item in Display.
func NewReview(id string, items []core.ExtractedItem, now time.Time) Review {
	states := make([]ItemState, len(items))
	for i, it := range items {
		states[i] = Display{Item: it}
	}
	return Review{ID: id, CreatedAt: now, Items: states}
}

// Apply runs a transition on item i and returns the updated review.
func (r Review) Apply(i int, transition func(ItemState) (ItemState, error)) (Review, error) {
	if i < 0 || i >= len(r.Items) {
		return r, fmt.Errorf("%w: %d", ErrItemIndex, i)
	}
	next, err := transition(r.Items[i])
	if err != nil {
		return r, err
	}
	items := make([]ItemState, len(r.Items))
	copy(items, r.Items)
	items[i] = next
	r.Items = items
	return r, nil
}

// Remaining returns the items that are not removed, in order. Items under
// edit contribute their original snapshot.
func (r Review) Remaining() []core.ExtractedItem {
	out := make([]core.ExtractedItem, 0, len(r.Items))
	for _, s := range r.Items {
		switch v := s.(type) {
		case Display:
			out = append(out, v.Item)
		case Editing:
			out = append(out, v.Original)
		}
	}
	return out
}

// HasEditing reports whether any item is being edited.
func (r Review) HasEditing() bool {
	for _, s := range r.Items {
		if _, ok := s.(Editing); ok {
			return true
		}
	}
	return false
}

// Ready checks that the review can be committed: nothing under edit, at
// least one item left and every remaining item valid against categories.
func (r Review) Ready(categories []core.Category) error {
	if r.HasEditing() {
		return ErrStillEditing
	}
	remaining := 0
	for i, s := range r.Items {
		d, ok := s.(Display)
		if !ok {
			continue
		}
		remaining++
		if err := d.Item.Validate(categories); err != nil {
			return &ItemError{Index: i, Description: d.Item.Description, Err: err}
		}
	}
	if remaining == 0 {
		return ErrNothingToCommit
	}
	return nil
}

// Total sums the remaining items.
func (r Review) Total() core.Money {
	var m core.Money
	for _, it := range r.Remaining() {
		m.Cents += it.Amount.Cents
	}
	return m
}
