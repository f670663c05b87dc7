package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"scontrini/internal/core"
	"scontrini/internal/store"
	"scontrini/internal/store/memory"
)

func TestCategoryService_AddCategory(t *testing.T) {
	fixed := time.UnixMilli(1700000000123)

	tests := []struct {
		name    string
		add     string
		wantID  string
		wantErr error
	}{
		{name: "slug from name", add: "Pet  Food!", wantID: "pet-food"},
		{name: "trimmed name", add: "  Gifts ", wantID: "gifts"},
		{name: "same name as existing", add: "grocery", wantErr: store.ErrDuplicateCategory},
		{name: "conflicting slug with different name", add: "Grocery!", wantID: "grocery-1700000000123"},
		{name: "empty slug", add: "!!!", wantID: "category"},
		{name: "duplicate name ignores case", add: "OTHER", wantErr: store.ErrDuplicateCategory},
		{name: "blank name", add: "   ", wantErr: core.ErrEmptyName},
		{name: "name too long", add: strings.Repeat("a", core.MaxCategoryNameLength+1), wantErr: core.ErrNameTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewCategoryService(memory.New(categories("grocery", "other")))
			svc.SetClock(func() time.Time { return fixed })

			got, err := svc.AddCategory(context.Background(), tt.add, "tag")

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("AddCategory(%q) error = %v, want %v", tt.add, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("AddCategory(%q) error = %v", tt.add, err)
			}
			if got.ID != tt.wantID {
				t.Errorf("AddCategory(%q) id = %q, want %q", tt.add, got.ID, tt.wantID)
			}

			list, _ := svc.ListCategories(context.Background())
			if !core.HasCategory(list, tt.wantID) {
				t.Errorf("category %q not listed after add", tt.wantID)
			}
		})
	}
}

func TestCategoryService_UpdateCategory(t *testing.T) {
	ctx := context.Background()
	svc := NewCategoryService(memory.New([]core.Category{
		{ID: "grocery", Name: "Grocery"},
		{ID: "other", Name: "Other"},
	}))

	name := "Food shopping"
	got, err := svc.UpdateCategory(ctx, "grocery", CategoryPatch{Name: &name})
	if err != nil {
		t.Fatalf("UpdateCategory() error = %v", err)
	}
	if got.ID != "grocery" || got.Name != name {
		t.Errorf("UpdateCategory() = %+v, want id kept and name changed", got)
	}

	clash := "other"
	if _, err := svc.UpdateCategory(ctx, "grocery", CategoryPatch{Name: &clash}); !errors.Is(err, store.ErrDuplicateCategory) {
		t.Errorf("rename onto existing name error = %v, want ErrDuplicateCategory", err)
	}

	same := "FOOD SHOPPING"
	if _, err := svc.UpdateCategory(ctx, "grocery", CategoryPatch{Name: &same}); err != nil {
		t.Errorf("changing only the case of its own name error = %v", err)
	}

	if _, err := svc.UpdateCategory(ctx, "missing", CategoryPatch{Name: &name}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("UpdateCategory(missing) error = %v, want ErrNotFound", err)
	}
}

func TestCategoryService_DeleteReferencedCategory(t *testing.T) {
	ctx := context.Background()
	st := memory.New(categories("grocery", "other"))
	cats := NewCategoryService(st)
	expenses := NewExpenseService(st, nil)

	added, err := expenses.AddExpense(ctx, core.ExpenseDraft{
		Amount: cents(350), Description: "Milk", CategoryID: "grocery",
	})
	if err != nil {
		t.Fatalf("AddExpense() error = %v", err)
	}

	err = cats.DeleteCategory(ctx, "grocery")
	if !errors.Is(err, store.ErrCategoryInUse) {
		t.Fatalf("DeleteCategory() error = %v, want ErrCategoryInUse", err)
	}

	list, _ := cats.ListCategories(ctx)
	if !core.HasCategory(list, "grocery") {
		t.Error("referenced category should still exist")
	}
	got, err := expenses.GetExpense(ctx, added.ID)
	if err != nil || got.CategoryID != "grocery" {
		t.Errorf("expense should be unchanged, got %+v, %v", got, err)
	}

	if err := cats.DeleteCategory(ctx, "other"); err != nil {
		t.Errorf("DeleteCategory(unreferenced) error = %v", err)
	}
	if err := cats.DeleteCategory(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("DeleteCategory(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestCategoryService_ListReturnsCopy(t *testing.T) {
	svc := NewCategoryService(memory.New(categories("grocery")))

	first, _ := svc.ListCategories(context.Background())
	first[0].Name = "mutated"
	second, _ := svc.ListCategories(context.Background())

	if second[0].Name != "grocery" {
		t.Errorf("ListCategories leaked shared slice: %q", second[0].Name)
	}
}

// heldCategoryStore blocks GetCategories until release is closed and
// reports the context state each call saw.
type heldCategoryStore struct {
	store.CategoryStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
	seen    chan error
}

func (h *heldCategoryStore) GetCategories(ctx context.Context) ([]core.Category, error) {
	h.once.Do(func() { close(h.entered) })
	<-h.release
	h.seen <- ctx.Err()
	return h.CategoryStore.GetCategories(ctx)
}

func TestCategoryService_ListCategoriesCancelledCallerDoesNotFailLoad(t *testing.T) {
	held := &heldCategoryStore{
		CategoryStore: memory.New(categories("grocery", "other")),
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
		seen:          make(chan error, 4),
	}
	svc := NewCategoryService(held)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := svc.ListCategories(ctx)
		first <- err
	}()

	<-held.entered
	cancel()
	if err := <-first; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller error = %v, want context.Canceled", err)
	}

	second := make(chan error, 1)
	go func() {
		got, err := svc.ListCategories(context.Background())
		if err == nil && len(got) != 2 {
			err = fmt.Errorf("got %d categories, want 2", len(got))
		}
		second <- err
	}()

	close(held.release)
	if err := <-held.seen; err != nil {
		t.Fatalf("shared load saw ctx error %v", err)
	}
	if err := <-second; err != nil {
		t.Fatalf("second caller: %v", err)
	}
}
