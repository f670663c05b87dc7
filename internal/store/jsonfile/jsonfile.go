// Package jsonfile keeps categories and expenses in two JSON documents
// under a data directory. Every write replaces the file atomically.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"scontrini/internal/core"
	"scontrini/internal/store"
)

const (
	expensesFile   = "expenses.json"
	categoriesFile = "categories.json"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu  sync.Mutex
	dir string
}

// New opens the store in dir, creating it and seeding categories when the
// categories document does not exist yet.
func New(dir string, seed []core.Category) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	s := &Store{dir: dir}
	if _, err := os.Stat(s.path(categoriesFile)); errors.Is(err, fs.ErrNotExist) {
		if err := writeJSON(s.path(categoriesFile), seed); err != nil {
			return nil, fmt.Errorf("seed categories: %w", err)
		}
	}
	return s, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

func (s *Store) GetCategories(_ context.Context) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return readJSON[core.Category](s.path(categoriesFile))
}

func (s *Store) AddCategory(_ context.Context, c core.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cats, err := readJSON[core.Category](s.path(categoriesFile))
	if err != nil {
		return err
	}
	for _, existing := range cats {
		if existing.ID == c.ID || strings.EqualFold(existing.Name, c.Name) {
			return fmt.Errorf("%w: %s", store.ErrDuplicateCategory, c.Name)
		}
	}
	return writeJSON(s.path(categoriesFile), append(cats, c))
}

func (s *Store) UpdateCategory(_ context.Context, c core.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cats, err := readJSON[core.Category](s.path(categoriesFile))
	if err != nil {
		return err
	}
	idx := -1
	for i, existing := range cats {
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
	cats[idx] = c
	return writeJSON(s.path(categoriesFile), cats)
}

func (s *Store) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	expenses, err := readJSON[core.Expense](s.path(expensesFile))
	if err != nil {
		return err
	}
	for _, e := range expenses {
		if e.CategoryID == id {
			return store.ErrCategoryInUse
		}
	}
	cats, err := readJSON[core.Category](s.path(categoriesFile))
	if err != nil {
		return err
	}
	for i, c := range cats {
		if c.ID == id {
			return writeJSON(s.path(categoriesFile), append(cats[:i:i], cats[i+1:]...))
		}
	}
	return fmt.Errorf("category %s: %w", id, store.ErrNotFound)
}

func (s *Store) ListExpenses(_ context.Context, f store.ExpenseFilter) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expenses, err := readJSON[core.Expense](s.path(expensesFile))
	if err != nil {
		return nil, err
	}
	out := expenses[:0]
	for _, e := range expenses {
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
	expenses, err := readJSON[core.Expense](s.path(expensesFile))
	if err != nil {
		return core.Expense{}, err
	}
	for _, e := range expenses {
		if e.ID == id {
			return e, nil
		}
	}
	return core.Expense{}, fmt.Errorf("expense %s: %w", id, store.ErrNotFound)
}

// AddExpensesBatch validates the whole batch before a single write.
func (s *Store) AddExpensesBatch(_ context.Context, drafts []core.ExpenseDraft) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cats, err := readJSON[core.Category](s.path(categoriesFile))
	if err != nil {
		return nil, err
	}
	created, err := store.Materialize(drafts, cats)
	if err != nil {
		return nil, err
	}
	expenses, err := readJSON[core.Expense](s.path(expensesFile))
	if err != nil {
		return nil, err
	}
	if err := writeJSON(s.path(expensesFile), append(expenses, created...)); err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Store) UpdateExpense(_ context.Context, e core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cats, err := readJSON[core.Category](s.path(categoriesFile))
	if err != nil {
		return err
	}
	if err := e.Validate(cats); err != nil {
		return err
	}
	expenses, err := readJSON[core.Expense](s.path(expensesFile))
	if err != nil {
		return err
	}
	for i := range expenses {
		if expenses[i].ID == e.ID {
			expenses[i] = e
			return writeJSON(s.path(expensesFile), expenses)
		}
	}
	return fmt.Errorf("expense %s: %w", e.ID, store.ErrNotFound)
}

func (s *Store) DeleteExpense(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	expenses, err := readJSON[core.Expense](s.path(expensesFile))
	if err != nil {
		return err
	}
	for i, e := range expenses {
		if e.ID == id {
			return writeJSON(s.path(expensesFile), append(expenses[:i:i], expenses[i+1:]...))
		}
	}
	return fmt.Errorf("expense %s: %w", id, store.ErrNotFound)
}

// Ping checks that the data directory is still reachable.
func (s *Store) Ping(context.Context) error {
	if _, err := os.Stat(s.dir); err != nil {
		return fmt.Errorf("stat data directory: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return nil }

// readJSON returns an empty slice when the file does not exist.
func readJSON[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []T{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

func writeJSON[T any](path string, v []T) error {
	if v == nil {
		v = []T{}
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
