// Package memory is an in-process store, used for development and tests.
package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"scontrini/internal/core"
	"scontrini/internal/store"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu       sync.Mutex
	cats     []core.Category
	expenses []core.Expense
}

func New(cats []core.Category) *Store {
	return &Store{cats: dedupe(cats)}
}

// NewFromFiles seeds categories from base/seed_categories.txt. Each line is
// either a name or "id|name|icon". Falls back to the default categories.
func NewFromFiles(base string) *Store {
	cats := readSeed(filepath.Join(base, "seed_categories.txt"))
	if len(cats) == 0 {
		cats = core.DefaultCategories()
	}
	return New(cats)
}

func (s *Store) GetCategories(_ context.Context) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Category(nil), s.cats...), nil
}

func (s *Store) AddCategory(_ context.Context, c core.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.cats {
		if existing.ID == c.ID || strings.EqualFold(existing.Name, c.Name) {
			return fmt.Errorf("%w: %s", store.ErrDuplicateCategory, c.Name)
		}
	}
	s.cats = append(s.cats, c)
	return nil
}

func (s *Store) UpdateCategory(_ context.Context, c core.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := -1
	for i, existing := range s.cats {
		if existing.ID == c.ID {
			idx = i
			continue
		}
		if strings.EqualFold(existing.Name, c.Name) {
			return fmt.Errorf("%w: %s", store.ErrDuplicateCategory, c.Name)
		}
	}
	if idx < 0 {
		return fmt.Errorf("category %s: %w", c.ID, store.ErrNotFound)
	}
	s.cats[idx] = c
	return nil
}

func (s *Store) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.expenses {
		if e.CategoryID == id {
			return store.ErrCategoryInUse
		}
	}
	for i, c := range s.cats {
		if c.ID == id {
			s.cats = append(s.cats[:i:i], s.cats[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("category %s: %w", id, store.ErrNotFound)
}

func (s *Store) ListExpenses(_ context.Context, f store.ExpenseFilter) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Expense, 0, len(s.expenses))
	for _, e := range s.expenses {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	store.SortByDateDesc(out)
	return out, nil
}

func (s *Store) GetExpense(_ context.Context, id string) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.expenses {
		if e.ID == id {
			return e, nil
		}
	}
	return core.Expense{}, fmt.Errorf("expense %s: %w", id, store.ErrNotFound)
}

// AddExpensesBatch validates and appends under one lock, so a batch is
// either fully visible or not at all.
func (s *Store) AddExpensesBatch(_ context.Context, drafts []core.ExpenseDraft) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	created, err := store.Materialize(drafts, s.cats)
	if err != nil {
		return nil, err
	}
	s.expenses = append(s.expenses, created...)
	return append([]core.Expense(nil), created...), nil
}

func (s *Store) UpdateExpense(_ context.Context, e core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := e.Validate(s.cats); err != nil {
		return err
	}
	for i := range s.expenses {
		if s.expenses[i].ID == e.ID {
			s.expenses[i] = e
			return nil
		}
	}
	return fmt.Errorf("expense %s: %w", e.ID, store.ErrNotFound)
}

func (s *Store) DeleteExpense(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.expenses {
		if e.ID == id {
			s.expenses = append(s.expenses[:i:i], s.expenses[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("expense %s: %w", id, store.ErrNotFound)
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func readSeed(path string) []core.Category {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []core.Category
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, "|")
		c := core.Category{Name: strings.TrimSpace(parts[0])}
		if len(parts) >= 2 {
			c.ID = strings.TrimSpace(parts[0])
			c.Name = strings.TrimSpace(parts[1])
		}
		if len(parts) >= 3 {
			c.Icon = strings.TrimSpace(parts[2])
		}
		if c.ID == "" {
			c.ID = core.Slugify(c.Name)
		}
		out = append(out, c)
	}
	return dedupe(out)
}

func dedupe(in []core.Category) []core.Category {
	seen := map[string]struct{}{}
	out := make([]core.Category, 0, len(in))
	for _, c := range in {
		if strings.TrimSpace(c.ID) == "" {
			continue
		}
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}
