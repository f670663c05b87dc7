package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// MaxDescriptionLength bounds expense descriptions, counted in runes.
	MaxDescriptionLength = 200
	// MaxCategoryNameLength bounds category names, counted in runes.
	MaxCategoryNameLength = 50

	// OtherCategoryID is the id of the catch-all category.
	OtherCategoryID = "other"
)

type (
	Money struct {
		Cents int64
	}

	Category struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Icon string `json:"icon,omitempty"`
	}

	Expense struct {
		ID          string    `json:"id"`
		Amount      Money     `json:"amount"`
		Description string    `json:"description"`
		CategoryID  string    `json:"categoryId"`
		Date        time.Time `json:"date"`
		ReceiptURL  string    `json:"receiptUrl,omitempty"`
	}

	// ExpenseDraft is an expense that has not been assigned an id yet.
	ExpenseDraft struct {
		Amount      Money     `json:"amount"`
		Description string    `json:"description"`
		CategoryID  string    `json:"categoryId"`
		Date        time.Time `json:"date"`
		ReceiptURL  string    `json:"receiptUrl,omitempty"`
	}

	// ExtractedItem is a receipt line held in review before commit.
	ExtractedItem struct {
		Description string `json:"description"`
		Amount      Money  `json:"amount"`
		CategoryID  string `json:"categoryId"`
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrDescriptionLong  = fmt.Errorf("description too long (max %d characters)", MaxDescriptionLength)
	ErrEmptyCategory    = errors.New("empty category")
	ErrUnknownCategory  = errors.New("unknown category")
	ErrZeroDate         = errors.New("date cannot be zero")
	ErrEmptyName        = errors.New("category name cannot be empty")
	ErrNameTooLong      = fmt.Errorf("category name too long (max %d characters)", MaxCategoryNameLength)
)

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func validateDescription(desc string) error {
	if len(strings.TrimSpace(desc)) == 0 {
		return ErrEmptyDescription
	}
	if utf8.RuneCountInString(desc) > MaxDescriptionLength {
		return ErrDescriptionLong
	}
	return nil
}

func validateCategoryRef(id string, categories []Category) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmptyCategory
	}
	if categories != nil && !HasCategory(categories, id) {
		return fmt.Errorf("%w: %s", ErrUnknownCategory, id)
	}
	return nil
}

// Validate checks the item fields. When categories is nil the category
// reference is only checked for presence.
func (it ExtractedItem) Validate(categories []Category) error {
	if err := validateDescription(it.Description); err != nil {
		return err
	}
	if err := it.Amount.Validate(); err != nil {
		return err
	}
	return validateCategoryRef(it.CategoryID, categories)
}

// Validate checks the draft fields. When categories is nil the category
// reference is only checked for presence.
func (d ExpenseDraft) Validate(categories []Category) error {
	if err := validateDescription(d.Description); err != nil {
		return err
	}
	if err := d.Amount.Validate(); err != nil {
		return err
	}
	if err := validateCategoryRef(d.CategoryID, categories); err != nil {
		return err
	}
	if d.Date.IsZero() {
		return ErrZeroDate
	}
	return nil
}

// Draft returns the expense without its id.
func (e Expense) Draft() ExpenseDraft {
	return ExpenseDraft{
		Amount:      e.Amount,
		Description: e.Description,
		CategoryID:  e.CategoryID,
		Date:        e.Date,
		ReceiptURL:  e.ReceiptURL,
	}
}

// WithID materializes the draft as an expense.
func (d ExpenseDraft) WithID(id string) Expense {
	return Expense{
		ID:          id,
		Amount:      d.Amount,
		Description: d.Description,
		CategoryID:  d.CategoryID,
		Date:        d.Date,
		ReceiptURL:  d.ReceiptURL,
	}
}

func (e Expense) Validate(categories []Category) error {
	return e.Draft().Validate(categories)
}

func (c Category) Validate() error {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return ErrEmptyName
	}
	if utf8.RuneCountInString(name) > MaxCategoryNameLength {
		return ErrNameTooLong
	}
	return nil
}

// HasCategory reports whether id is one of the categories.
func HasCategory(categories []Category, id string) bool {
	for _, c := range categories {
		if c.ID == id {
			return true
		}
	}
	return false
}

// FindCategory returns the category with the given id.
func FindCategory(categories []Category, id string) (Category, bool) {
	for _, c := range categories {
		if c.ID == id {
			return c, true
		}
	}
	return Category{}, false
}

// CategoryIDs returns the ids in order.
func CategoryIDs(categories []Category) []string {
	ids := make([]string, len(categories))
	for i, c := range categories {
		ids[i] = c.ID
	}
	return ids
}

// UserError carries a message that is safe to show to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError wraps err with a user-facing message.
func NewUserError(userMessage string, err error) error {
	return &UserError{UserMessage: userMessage, Err: err}
}
