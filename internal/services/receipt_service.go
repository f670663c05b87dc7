package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"scontrini/internal/cache"
	"scontrini/internal/core"
	"scontrini/internal/receipt"
)

const maxReviews = 256

var (
	ErrReviewNotFound = errors.New("review session not found or expired")
	ErrUnknownAction  = errors.New("unknown review action")
)

// ReviewAction names a transition on one review item.
type ReviewAction string

const (
	ActionEdit   ReviewAction = "edit"
	ActionSave   ReviewAction = "save"
	ActionCancel ReviewAction = "cancel"
	ActionRemove ReviewAction = "remove"
)

// ScanResult is the outcome of an upload. Review is set only when items
// were found.
type ScanResult struct {
	Status receipt.Status
	Review receipt.Review
}

// ReceiptService runs the extraction pipeline and keeps review sessions
// server-side until they are committed, discarded or expire.
type ReceiptService struct {
	pipeline   *receipt.Pipeline
	suggester  *receipt.Suggester
	categories *CategoryService
	expenses   *ExpenseService
	reviews    *cache.LRUCache[receipt.Review]
	now        func() time.Time
}

func NewReceiptService(
	pipeline *receipt.Pipeline,
	suggester *receipt.Suggester,
	categories *CategoryService,
	expenses *ExpenseService,
	reviewTTL time.Duration,
) *ReceiptService {
	return &ReceiptService{
		pipeline:   pipeline,
		suggester:  suggester,
		categories: categories,
		expenses:   expenses,
		reviews:    cache.NewLRUCache[receipt.Review](maxReviews, reviewTTL),
		now:        time.Now,
	}
}

// Reviews exposes the session cache for periodic cleanup.
func (s *ReceiptService) Reviews() *cache.LRUCache[receipt.Review] {
	return s.reviews
}

// Scan extracts the items of an uploaded file and opens a review session.
func (s *ReceiptService) Scan(ctx context.Context, mime string, data []byte) (ScanResult, error) {
	categories, err := s.categories.ListCategories(ctx)
	if err != nil {
		return ScanResult{}, err
	}

	res, err := s.pipeline.Scan(ctx, mime, data, categories)
	if err != nil {
		return ScanResult{}, err
	}
	if res.Status == receipt.StatusNoItems {
		return ScanResult{Status: res.Status}, nil
	}

	review := receipt.NewReview(uuid.NewString(), res.Items, s.now())
	s.reviews.Set(review.ID, review)
	slog.InfoContext(ctx, "Opened review session", "review_id", review.ID, "item_count", len(res.Items))
	return ScanResult{Status: res.Status, Review: review}, nil
}

func (s *ReceiptService) Review(id string) (receipt.Review, error) {
	r, ok := s.reviews.Get(id)
	if !ok {
		return receipt.Review{}, ErrReviewNotFound
	}
	return r, nil
}

// Transition applies action to item index of review id. For ActionSave a
// non-nil draft replaces the edited values before validation.
func (s *ReceiptService) Transition(ctx context.Context, id string, index int, action ReviewAction, draft *core.ExtractedItem) (receipt.Review, error) {
	var fn func(receipt.ItemState) (receipt.ItemState, error)
	switch action {
	case ActionEdit:
		fn = receipt.Edit
	case ActionCancel:
		fn = receipt.Cancel
	case ActionRemove:
		fn = receipt.Remove
	case ActionSave:
		categories, err := s.categories.ListCategories(ctx)
		if err != nil {
			return receipt.Review{}, err
		}
		fn = func(st receipt.ItemState) (receipt.ItemState, error) {
			if draft != nil {
				next, err := receipt.Change(st, *draft)
				if err != nil {
					return st, err
				}
				st = next
			}
			return receipt.Save(st, categories)
		}
	default:
		return receipt.Review{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	r, err := s.reviews.Update(id, func(r receipt.Review) (receipt.Review, error) {
		return r.Apply(index, fn)
	})
	if errors.Is(err, cache.ErrMiss) {
		return receipt.Review{}, ErrReviewNotFound
	}
	return r, err
}

// Commit stores the remaining items of a review as one batch and closes
// the session. The session is claimed for the duration of the commit so a
// concurrent Commit of the same id gets ErrReviewNotFound. On failure the
// session is put back so the user can fix it.
func (s *ReceiptService) Commit(ctx context.Context, id string) ([]core.Expense, error) {
	r, ok := s.reviews.Take(id)
	if !ok {
		return nil, ErrReviewNotFound
	}

	created, err := s.commit(ctx, r)
	if err != nil {
		s.reviews.Set(id, r)
		return nil, err
	}
	return created, nil
}

func (s *ReceiptService) commit(ctx context.Context, r receipt.Review) ([]core.Expense, error) {
	categories, err := s.categories.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.Ready(categories); err != nil {
		return nil, err
	}
	return s.expenses.CommitBatch(ctx, r.Remaining())
}

// Discard drops a review session without saving.
func (s *ReceiptService) Discard(id string) {
	s.reviews.Delete(id)
}

// Suggest proposes a category id for description, or false when there is
// no suggestion.
func (s *ReceiptService) Suggest(ctx context.Context, description string) (string, bool) {
	categories, err := s.categories.ListCategories(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to load categories for suggestion", "error", err)
		return "", false
	}
	return s.suggester.Suggest(ctx, description, categories)
}
