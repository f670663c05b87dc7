package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"scontrini/internal/core"
	"scontrini/internal/store"
)

// CategoryPatch is a partial category update. Nil fields are unchanged.
type CategoryPatch struct {
	Name *string
	Icon *string
}

// CategoryService manages the category set. Concurrent reads share a
// single store call.
type CategoryService struct {
	store store.CategoryStore
	group singleflight.Group
	now   func() time.Time
}

const categoryLoadTimeout = 10 * time.Second

func NewCategoryService(st store.CategoryStore) *CategoryService {
	return &CategoryService{store: st, now: time.Now}
}

// SetClock replaces the time source used for id suffixes.
func (s *CategoryService) SetClock(now func() time.Time) {
	s.now = now
}

// ListCategories returns a copy of the category set. The shared store call
// is detached from any single caller's cancellation; a caller whose ctx ends
// stops waiting without failing the others.
func (s *CategoryService) ListCategories(ctx context.Context) ([]core.Category, error) {
	ch := s.group.DoChan("categories", func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), categoryLoadTimeout)
		defer cancel()
		return s.store.GetCategories(loadCtx)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("list categories: %w", ctx.Err())
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, fmt.Errorf("list categories: %w", res.Err)
	}
	shared := res.Val.([]core.Category)
	out := make([]core.Category, len(shared))
	copy(out, shared)
	return out, nil
}

// AddCategory creates a category whose id is the slug of its name. A slug
// that is already taken gets the current unix milliseconds appended.
func (s *CategoryService) AddCategory(ctx context.Context, name, icon string) (core.Category, error) {
	c := core.Category{Name: strings.TrimSpace(name), Icon: strings.TrimSpace(icon)}
	if err := c.Validate(); err != nil {
		return core.Category{}, fmt.Errorf("invalid category: %w", err)
	}

	existing, err := s.ListCategories(ctx)
	if err != nil {
		return core.Category{}, err
	}
	if nameTaken(existing, c.Name, "") {
		return core.Category{}, fmt.Errorf("category %q: %w", c.Name, store.ErrDuplicateCategory)
	}

	c.ID = core.Slugify(c.Name)
	if core.HasCategory(existing, c.ID) {
		c.ID = fmt.Sprintf("%s-%d", c.ID, s.now().UnixMilli())
	}

	if err := s.store.AddCategory(ctx, c); err != nil {
		return core.Category{}, fmt.Errorf("add category: %w", err)
	}
	return c, nil
}

// UpdateCategory renames or re-icons a category. The id is kept.
func (s *CategoryService) UpdateCategory(ctx context.Context, id string, patch CategoryPatch) (core.Category, error) {
	existing, err := s.ListCategories(ctx)
	if err != nil {
		return core.Category{}, err
	}
	c, ok := core.FindCategory(existing, id)
	if !ok {
		return core.Category{}, fmt.Errorf("category %s: %w", id, store.ErrNotFound)
	}

	if patch.Name != nil {
		c.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Icon != nil {
		c.Icon = strings.TrimSpace(*patch.Icon)
	}
	if err := c.Validate(); err != nil {
		return core.Category{}, fmt.Errorf("invalid category: %w", err)
	}
	if nameTaken(existing, c.Name, id) {
		return core.Category{}, fmt.Errorf("category %q: %w", c.Name, store.ErrDuplicateCategory)
	}

	if err := s.store.UpdateCategory(ctx, c); err != nil {
		return core.Category{}, fmt.Errorf("update category: %w", err)
	}
	return c, nil
}

// DeleteCategory fails with store.ErrCategoryInUse while expenses still
// reference the category.
func (s *CategoryService) DeleteCategory(ctx context.Context, id string) error {
	if err := s.store.DeleteCategory(ctx, id); err != nil {
		return fmt.Errorf("delete category %s: %w", id, err)
	}
	return nil
}

func nameTaken(categories []core.Category, name, exceptID string) bool {
	for _, c := range categories {
		if c.ID != exceptID && strings.EqualFold(strings.TrimSpace(c.Name), name) {
			return true
		}
	}
	return false
}
